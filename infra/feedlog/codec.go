package feedlog

import (
	"bytes"
	"encoding/gob"

	"tachyon/domain/orderbook"
)

// Gob payload codecs for the journaled snapshot types.

func EncodeQuote(q *orderbook.QuoteSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(q); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeQuote(data []byte) (*orderbook.QuoteSnapshot, error) {
	var q orderbook.QuoteSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&q); err != nil {
		return nil, err
	}
	return &q, nil
}

func EncodeTradeQuote(q *orderbook.TradeQuoteSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(q); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func DecodeTradeQuote(data []byte) (*orderbook.TradeQuoteSnapshot, error) {
	var q orderbook.TradeQuoteSnapshot
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&q); err != nil {
		return nil, err
	}
	return &q, nil
}
