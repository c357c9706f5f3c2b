// Package store persists committed application state in a tm-db
// key-value database.
//
// Layout:
//
//	latest            -> height (8 bytes, big endian)
//	commit/<height>   -> cramberry(Commit)
package store

import (
	"encoding/binary"
	"fmt"

	"github.com/blockberries/cramberry/pkg/cramberry"
	"github.com/pkg/errors"
	dbm "github.com/tendermint/tm-db"

	"github.com/blockberries/stagefund/types"
)

var (
	keyLatest    = []byte("latest")
	prefixCommit = []byte("commit/")
)

// Commit is one committed height.
type Commit struct {
	Height   uint64              `cramberry:"1"`
	AppHash  types.AppHash       `cramberry:"2"`
	Snapshot types.StateSnapshot `cramberry:"3"`
}

// Store wraps a tm-db database.
type Store struct {
	db dbm.DB
}

// New wraps an open database.
func New(db dbm.DB) *Store {
	return &Store{db: db}
}

// NewMem returns a store backed by an in-memory database.
func NewMem() *Store {
	return New(dbm.NewMemDB())
}

// Open opens (or creates) a goleveldb database named name under dir.
func Open(name, dir string) (*Store, error) {
	db, err := dbm.NewDB(name, dbm.GoLevelDBBackend, dir)
	if err != nil {
		return nil, errors.Wrapf(err, "open state db %s in %s", name, dir)
	}
	return New(db), nil
}

// Close closes the database.
func (s *Store) Close() error {
	return errors.Wrap(s.db.Close(), "close state db")
}

func commitKey(height uint64) []byte {
	key := make([]byte, len(prefixCommit)+8)
	copy(key, prefixCommit)
	binary.BigEndian.PutUint64(key[len(prefixCommit):], height)
	return key
}

// Save writes c and advances the latest pointer in one synced batch.
// Commits at or below retainBelow are pruned when retainBelow is
// non-zero.
func (s *Store) Save(c Commit, retainBelow uint64) error {
	data, err := cramberry.Marshal(c)
	if err != nil {
		return errors.Wrapf(err, "encode commit %d", c.Height)
	}
	var height [8]byte
	binary.BigEndian.PutUint64(height[:], c.Height)

	batch := s.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(commitKey(c.Height), data); err != nil {
		return errors.Wrapf(err, "stage commit %d", c.Height)
	}
	if err := batch.Set(keyLatest, height[:]); err != nil {
		return errors.Wrap(err, "stage latest height")
	}
	if retainBelow > 0 && retainBelow <= c.Height {
		if err := s.prune(batch, retainBelow); err != nil {
			return err
		}
	}
	return errors.Wrapf(batch.WriteSync(), "write commit %d", c.Height)
}

func (s *Store) prune(batch dbm.Batch, below uint64) error {
	it, err := s.db.Iterator(commitKey(0), commitKey(below))
	if err != nil {
		return errors.Wrap(err, "iterate commits")
	}
	defer it.Close()
	for ; it.Valid(); it.Next() {
		key := append([]byte(nil), it.Key()...)
		if err := batch.Delete(key); err != nil {
			return errors.Wrap(err, "stage prune")
		}
	}
	return errors.Wrap(it.Error(), "iterate commits")
}

// LatestHeight returns the last saved height, or 0 for an empty store.
func (s *Store) LatestHeight() (uint64, error) {
	raw, err := s.db.Get(keyLatest)
	if err != nil {
		return 0, errors.Wrap(err, "read latest height")
	}
	if raw == nil {
		return 0, nil
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("corrupt latest height: %d bytes", len(raw))
	}
	return binary.BigEndian.Uint64(raw), nil
}

// Load returns the commit at height.
func (s *Store) Load(height uint64) (Commit, bool, error) {
	raw, err := s.db.Get(commitKey(height))
	if err != nil {
		return Commit{}, false, errors.Wrapf(err, "read commit %d", height)
	}
	if raw == nil {
		return Commit{}, false, nil
	}
	var c Commit
	if err := cramberry.Unmarshal(raw, &c); err != nil {
		return Commit{}, false, errors.Wrapf(err, "decode commit %d", height)
	}
	return c, true, nil
}

// Latest returns the most recent commit. ok is false for an empty store.
func (s *Store) Latest() (c Commit, ok bool, err error) {
	h, err := s.LatestHeight()
	if err != nil || h == 0 {
		return Commit{}, false, err
	}
	c, ok, err = s.Load(h)
	if err == nil && !ok {
		err = fmt.Errorf("latest height %d has no commit", h)
	}
	return c, ok, err
}
