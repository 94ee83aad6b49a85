package feedlog

import (
	"bytes"
	"encoding/binary"
	"errors"
	"hash/crc32"
)

type RecordType uint8

const (
	RecordQuote RecordType = iota + 1
	RecordTradeQuote
)

var ErrCorruptRecord = errors.New("feedlog: corrupted record")

// Record is one journaled feed message. Data is the opaque encoded
// snapshot; Seq is assigned by the log at append time.
type Record struct {
	Type RecordType
	Seq  uint64
	Time int64
	Data []byte
}

// Serializer frames records on disk.
type Serializer interface {
	Encode(*Record) ([]byte, error)
	Decode([]byte) (*Record, error)
}

// BinarySerializer frames a record as
// [len u32][crc32 u32][type u8][seq u64][time i64][data].
type BinarySerializer struct{}

func (BinarySerializer) Encode(rec *Record) ([]byte, error) {
	payload := new(bytes.Buffer)
	payload.WriteByte(byte(rec.Type))
	binary.Write(payload, binary.LittleEndian, rec.Seq)
	binary.Write(payload, binary.LittleEndian, rec.Time)
	payload.Write(rec.Data)

	body := payload.Bytes()
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, uint32(len(body)))
	binary.Write(buf, binary.LittleEndian, crc32.ChecksumIEEE(body))
	buf.Write(body)
	return buf.Bytes(), nil
}

func (BinarySerializer) Decode(body []byte) (*Record, error) {
	if len(body) < 17 {
		return nil, ErrCorruptRecord
	}
	return &Record{
		Type: RecordType(body[0]),
		Seq:  binary.LittleEndian.Uint64(body[1:9]),
		Time: int64(binary.LittleEndian.Uint64(body[9:17])),
		Data: body[17:],
	}, nil
}
