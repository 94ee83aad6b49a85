package bookstore

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"time"

	"github.com/cockroachdb/pebble"

	"tachyon/domain/orderbook"
)

// BookLevels is the persisted aggregate view of one book at one point
// in time. Only the published level window is stored, never individual
// resident orders; the core does not persist its own state.
type BookLevels struct {
	Isin  string
	Venue string
	Seq   uint64
	Taken time.Time
	Asks  []orderbook.LevelSnapshot
	Bids  []orderbook.LevelSnapshot
}

// Store keeps periodic BookLevels in pebble, keyed s:<isin>:<seq be64>
// so a reverse scan over the isin prefix finds the newest entry.
type Store struct {
	db *pebble.DB
}

func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func levelKey(isin string, seq uint64) []byte {
	key := make([]byte, 0, 2+len(isin)+1+8)
	key = append(key, 's', ':')
	key = append(key, isin...)
	key = append(key, ':')
	key = binary.BigEndian.AppendUint64(key, seq)
	return key
}

func levelPrefix(isin string) []byte {
	key := make([]byte, 0, 2+len(isin)+1)
	key = append(key, 's', ':')
	key = append(key, isin...)
	key = append(key, ':')
	return key
}

func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func (s *Store) Save(bl *BookLevels) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(bl); err != nil {
		return err
	}
	return s.db.Set(levelKey(bl.Isin, bl.Seq), buf.Bytes(), pebble.Sync)
}

// Latest returns the newest stored BookLevels for isin, ok=false when
// none exist.
func (s *Store) Latest(isin string) (*BookLevels, bool, error) {
	prefix := levelPrefix(isin)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()

	if !iter.Last() {
		return nil, false, iter.Error()
	}
	var bl BookLevels
	if err := gob.NewDecoder(bytes.NewReader(iter.Value())).Decode(&bl); err != nil {
		return nil, false, err
	}
	return &bl, true, nil
}
