package feedlog

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const activeName = "feed.log"

type Config struct {
	Dir             string
	SegmentSize     int64
	SegmentDuration time.Duration
	FlushInterval   time.Duration
	Serializer      Serializer
}

// Log is an append-only journal of the incoming quote feed, rotated by
// size or age. It captures the engine's input for deterministic replay;
// book state itself is never persisted here.
type Log struct {
	cfg   Config
	mu    sync.Mutex
	file  *os.File
	bytes int64
	start time.Time
	seq   uint64
	done  chan struct{}
}

func Open(cfg Config) (*Log, error) {
	if cfg.Serializer == nil {
		cfg.Serializer = BinarySerializer{}
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(cfg.Dir, activeName),
		os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	// Continue the sequence where the journal left off, so record
	// numbers never repeat across restarts.
	last, err := Replay(cfg.Dir, cfg.Serializer, func(*Record) error { return nil })
	if err != nil {
		f.Close()
		return nil, err
	}
	l := &Log{
		cfg:   cfg,
		file:  f,
		bytes: st.Size(),
		start: time.Now(),
		seq:   last,
		done:  make(chan struct{}),
	}
	if cfg.FlushInterval > 0 {
		go l.autoFlush()
	}
	return l, nil
}

// Append journals rec, assigning its sequence number.
func (l *Log) Append(rec *Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.seq++
	rec.Seq = l.seq
	if rec.Time == 0 {
		rec.Time = time.Now().UnixNano()
	}
	data, err := l.cfg.Serializer.Encode(rec)
	if err != nil {
		return err
	}
	n, err := l.file.Write(data)
	if err != nil {
		return err
	}
	l.bytes += int64(n)
	if (l.cfg.SegmentSize > 0 && l.bytes > l.cfg.SegmentSize) ||
		(l.cfg.SegmentDuration > 0 && time.Since(l.start) > l.cfg.SegmentDuration) {
		return l.rotate()
	}
	return nil
}

func (l *Log) rotate() error {
	if err := l.file.Close(); err != nil {
		return err
	}
	active := filepath.Join(l.cfg.Dir, activeName)
	rotated := filepath.Join(l.cfg.Dir,
		time.Now().UTC().Format("20060102_150405.000000")+".log")
	if err := os.Rename(active, rotated); err != nil {
		return err
	}
	f, err := os.OpenFile(active, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	l.file = f
	l.bytes = 0
	l.start = time.Now()
	return nil
}

func (l *Log) autoFlush() {
	ticker := time.NewTicker(l.cfg.FlushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-l.done:
			return
		case <-ticker.C:
			l.mu.Lock()
			_ = l.file.Sync()
			l.mu.Unlock()
		}
	}
}

func (l *Log) Close() error {
	close(l.done)
	l.mu.Lock()
	defer l.mu.Unlock()
	_ = l.file.Sync()
	return l.file.Close()
}

// Replay feeds every journaled record to fn, rotated segments first
// (their timestamped names sort chronologically), active segment last.
// A corrupt tail stops the scan without error: a torn final write is
// expected after a crash. Returns the last replayed sequence.
func Replay(dir string, ser Serializer, fn func(*Record) error) (uint64, error) {
	if ser == nil {
		ser = BinarySerializer{}
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	var segments []string
	for _, e := range entries {
		if e.IsDir() || e.Name() == activeName || filepath.Ext(e.Name()) != ".log" {
			continue
		}
		segments = append(segments, e.Name())
	}
	sort.Strings(segments)
	segments = append(segments, activeName)

	var last uint64
	for _, name := range segments {
		n, err := replayFile(filepath.Join(dir, name), ser, fn)
		if err != nil {
			return last, err
		}
		if n > 0 {
			last = n
		}
	}
	return last, nil
}

func replayFile(path string, ser Serializer, fn func(*Record) error) (uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	defer f.Close()

	r := bufio.NewReaderSize(f, 1<<20)
	var last uint64
	for {
		var header [8]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			return last, nil // clean or torn end of segment
		}
		length := binary.LittleEndian.Uint32(header[:4])
		wantCRC := binary.LittleEndian.Uint32(header[4:])
		body := make([]byte, length)
		if _, err := io.ReadFull(r, body); err != nil {
			return last, nil
		}
		if crc32.ChecksumIEEE(body) != wantCRC {
			return last, nil
		}
		rec, err := ser.Decode(body)
		if err != nil {
			return last, nil
		}
		if err := fn(rec); err != nil {
			return last, err
		}
		last = rec.Seq
	}
}
