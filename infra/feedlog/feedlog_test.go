package feedlog

import (
	"os"
	"path/filepath"
	"testing"

	"tachyon/domain/orderbook"
)

func openTestLog(t *testing.T, cfg Config) (*Log, string) {
	t.Helper()
	dir := t.TempDir()
	cfg.Dir = dir
	l, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l, dir
}

func quote(ts int64) *orderbook.QuoteSnapshot {
	return &orderbook.QuoteSnapshot{
		Isin: "KR7005930003", Venue: "KRX", Timestamp: ts,
		AskLevels: []orderbook.LevelSnapshot{{Price: 100, Qty: 3}},
		BidLevels: []orderbook.LevelSnapshot{{Price: 99, Qty: 2}},
	}
}

func TestAppendReplayRoundTrip(t *testing.T) {
	l, dir := openTestLog(t, Config{})

	for i := int64(1); i <= 5; i++ {
		data, err := EncodeQuote(quote(i))
		if err != nil {
			t.Fatal(err)
		}
		if err := l.Append(&Record{Type: RecordQuote, Time: i, Data: data}); err != nil {
			t.Fatal(err)
		}
	}

	var got []*Record
	last, err := Replay(dir, nil, func(rec *Record) error {
		got = append(got, rec)
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 5 || last != 5 {
		t.Fatalf("replayed %d records, last seq %d, want 5/5", len(got), last)
	}
	for i, rec := range got {
		if rec.Seq != uint64(i+1) || rec.Type != RecordQuote {
			t.Fatalf("record %d = seq %d type %d", i, rec.Seq, rec.Type)
		}
		q, err := DecodeQuote(rec.Data)
		if err != nil {
			t.Fatal(err)
		}
		if q.Timestamp != int64(i+1) || q.AskLevels[0].Price != 100 {
			t.Errorf("record %d decoded wrong: %+v", i, q)
		}
	}
}

func TestReplayStopsAtTornTail(t *testing.T) {
	l, dir := openTestLog(t, Config{})
	data, _ := EncodeQuote(quote(1))
	if err := l.Append(&Record{Type: RecordQuote, Time: 1, Data: data}); err != nil {
		t.Fatal(err)
	}
	if err := l.Append(&Record{Type: RecordQuote, Time: 2, Data: data}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	// Chop a few bytes off the last frame, as a crash mid-write would.
	path := filepath.Join(dir, "feed.log")
	st, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Truncate(path, st.Size()-3); err != nil {
		t.Fatal(err)
	}

	var n int
	last, err := Replay(dir, nil, func(*Record) error {
		n++
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || last != 1 {
		t.Errorf("replayed %d records, last %d, want the intact record only", n, last)
	}
}

func TestReplayStopsAtBadCRC(t *testing.T) {
	l, dir := openTestLog(t, Config{})
	data, _ := EncodeQuote(quote(1))
	if err := l.Append(&Record{Type: RecordQuote, Time: 1, Data: data}); err != nil {
		t.Fatal(err)
	}
	l.Close()

	path := filepath.Join(dir, "feed.log")
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	raw[len(raw)-1] ^= 0xFF
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		t.Fatal(err)
	}

	n := 0
	if _, err := Replay(dir, nil, func(*Record) error { n++; return nil }); err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("corrupt record should be skipped, replayed %d", n)
	}
}

func TestSegmentRotation(t *testing.T) {
	l, dir := openTestLog(t, Config{SegmentSize: 64})

	data, _ := EncodeQuote(quote(1))
	for i := int64(1); i <= 6; i++ {
		if err := l.Append(&Record{Type: RecordQuote, Time: i, Data: data}); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) < 2 {
		t.Fatalf("expected rotated segments, dir has %d files", len(entries))
	}

	// Replay must stitch rotated segments and the active file in order.
	var seqs []uint64
	if _, err := Replay(dir, nil, func(rec *Record) error {
		seqs = append(seqs, rec.Seq)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 6 {
		t.Fatalf("replayed %d records, want 6", len(seqs))
	}
	for i, s := range seqs {
		if s != uint64(i+1) {
			t.Fatalf("sequence out of order: %v", seqs)
		}
	}
}

// Reopening a journal continues its sequence instead of restarting at 1.
func TestOpenContinuesSequence(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := EncodeQuote(quote(1))
	for i := 0; i < 2; i++ {
		if err := l.Append(&Record{Type: RecordQuote, Time: 1, Data: data}); err != nil {
			t.Fatal(err)
		}
	}
	l.Close()

	l2, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	if err := l2.Append(&Record{Type: RecordQuote, Time: 2, Data: data}); err != nil {
		t.Fatal(err)
	}

	var seqs []uint64
	if _, err := Replay(dir, nil, func(rec *Record) error {
		seqs = append(seqs, rec.Seq)
		return nil
	}); err != nil {
		t.Fatal(err)
	}
	if len(seqs) != 3 || seqs[0] != 1 || seqs[1] != 2 || seqs[2] != 3 {
		t.Fatalf("sequence across restart = %v, want [1 2 3]", seqs)
	}
}

// Rotation segments count toward the restored sequence too.
func TestOpenContinuesSequenceAfterRotation(t *testing.T) {
	dir := t.TempDir()
	l, err := Open(Config{Dir: dir, SegmentSize: 64})
	if err != nil {
		t.Fatal(err)
	}
	data, _ := EncodeQuote(quote(1))
	for i := 0; i < 3; i++ {
		if err := l.Append(&Record{Type: RecordQuote, Time: 1, Data: data}); err != nil {
			t.Fatal(err)
		}
	}
	l.Close() // every append rotated, active file is empty

	l2, err := Open(Config{Dir: dir})
	if err != nil {
		t.Fatal(err)
	}
	defer l2.Close()
	rec := &Record{Type: RecordQuote, Time: 2, Data: data}
	if err := l2.Append(rec); err != nil {
		t.Fatal(err)
	}
	if rec.Seq != 4 {
		t.Fatalf("seq after restart = %d, want 4", rec.Seq)
	}
}

func TestReplayMissingDir(t *testing.T) {
	n := 0
	last, err := Replay(filepath.Join(t.TempDir(), "absent"), nil, func(*Record) error { n++; return nil })
	if err != nil || n != 0 || last != 0 {
		t.Errorf("missing dir should replay nothing: n=%d last=%d err=%v", n, last, err)
	}
}

func TestTradeQuoteCodec(t *testing.T) {
	tq := &orderbook.TradeQuoteSnapshot{
		QuoteSnapshot: *quote(9),
		TradePrice:    100,
		TradeQty:      2,
		TradeSide:     orderbook.Bid,
	}
	data, err := EncodeTradeQuote(tq)
	if err != nil {
		t.Fatal(err)
	}
	back, err := DecodeTradeQuote(data)
	if err != nil {
		t.Fatal(err)
	}
	if back.TradePrice != 100 || back.TradeQty != 2 || back.TradeSide != orderbook.Bid {
		t.Errorf("trade leg lost: %+v", back)
	}
	if back.Timestamp != 9 || len(back.AskLevels) != 1 {
		t.Errorf("quote leg lost: %+v", back)
	}
}
