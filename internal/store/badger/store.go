// Package badger implements the store on an embedded BadgerDB.
//
// Keys:
//
//	det/<unix nanos, 8 bytes BE><sequence, 8 bytes BE>  -> msgpack DetectionEvent
//	user/<user id>                                       -> msgpack userRecord
package badger

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"profanity-stream-service/internal/models"
	"profanity-stream-service/internal/store"
)

const backendName = "badger"

var (
	detectionPrefix = []byte("det/")
	userPrefix      = []byte("user/")
	sequenceKey     = []byte("seq/det")
)

var _ store.Store = (*Store)(nil)

// Options configures the store.
type Options struct {
	// Dir is required unless InMemory is set.
	Dir      string
	InMemory bool
}

type userRecord struct {
	Username  string    `msgpack:"username"`
	CreatedAt time.Time `msgpack:"createdAt"`
}

// Store is safe for concurrent use.
type Store struct {
	db  *badgerdb.DB
	seq *badgerdb.Sequence
}

// Open opens or creates the database.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("badger store: Dir is required for on-disk mode")
	}
	dir := opts.Dir
	if opts.InMemory {
		// Disk-less mode refuses any directory.
		dir = ""
	}
	dbOpts := badgerdb.DefaultOptions(dir).
		WithLogger(zerologAdapter{log.With().Str("component", "badger").Logger()}).
		WithInMemory(opts.InMemory)
	db, err := badgerdb.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("badger store: open: %w", err)
	}
	seq, err := db.GetSequence(sequenceKey, 128)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("badger store: sequence: %w", err)
	}
	return &Store{db: db, seq: seq}, nil
}

// Backend implements store.Store.
func (s *Store) Backend() string { return backendName }

// Record implements store.Recorder in a single transaction.
func (s *Store) Record(_ context.Context, ev models.DetectionEvent) error {
	n, err := s.seq.Next()
	if err != nil {
		return fmt.Errorf("badger store: next sequence: %w", err)
	}
	val, err := msgpack.Marshal(&ev)
	if err != nil {
		return fmt.Errorf("badger store: encode detection: %w", err)
	}
	key := detectionKey(ev.Timestamp, n)
	return s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set(key, val)
	})
}

// Summary implements store.StatsReader by scanning from since onward.
func (s *Store) Summary(_ context.Context, userID string, since time.Time) (store.Summary, error) {
	var (
		count int64
		sum   float64
	)
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = detectionPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(timePrefix(since)); it.ValidForPrefix(detectionPrefix); it.Next() {
			var ev models.DetectionEvent
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("decode detection: %w", err)
			}
			if userID != "" && ev.UserID != userID {
				continue
			}
			count++
			sum += ev.Confidence
		}
		return nil
	})
	if err != nil {
		return store.Summary{}, fmt.Errorf("badger store: summary: %w", err)
	}
	if count == 0 {
		return store.Summary{}, nil
	}
	return store.Summary{Count: count, AvgConfidence: store.RoundConfidence(sum / float64(count))}, nil
}

// Recent implements store.StatsReader by scanning backwards from the newest
// key.
func (s *Store) Recent(_ context.Context, userID string, limit int) ([]models.DetectionEvent, error) {
	events := []models.DetectionEvent{}
	if limit <= 0 {
		return events, nil
	}
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.Prefix = detectionPrefix
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, detectionPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(detectionPrefix) && len(events) < limit; it.Next() {
			var ev models.DetectionEvent
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &ev)
			}); err != nil {
				return fmt.Errorf("decode detection: %w", err)
			}
			if userID != "" && ev.UserID != userID {
				continue
			}
			events = append(events, ev)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger store: recent: %w", err)
	}
	return events, nil
}

// UserExists implements store.UserDirectory.
func (s *Store) UserExists(_ context.Context, userID string) (bool, error) {
	err := s.db.View(func(txn *badgerdb.Txn) error {
		_, err := txn.Get(userKey(userID))
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("badger store: lookup user: %w", err)
	}
	return true, nil
}

// RegisterUser implements store.UserDirectory.
func (s *Store) RegisterUser(_ context.Context, userID, username string) error {
	val, err := msgpack.Marshal(&userRecord{Username: username, CreatedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("badger store: encode user: %w", err)
	}
	err = s.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get(userKey(userID)); err == nil {
			return store.ErrUserExists
		} else if !errors.Is(err, badgerdb.ErrKeyNotFound) {
			return err
		}
		return txn.Set(userKey(userID), val)
	})
	if errors.Is(err, store.ErrUserExists) {
		return err
	}
	if err != nil {
		return fmt.Errorf("badger store: register user: %w", err)
	}
	return nil
}

// Ping reports whether the database is open.
func (s *Store) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger store: closed")
	}
	return nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	return errors.Join(s.seq.Release(), s.db.Close())
}

func timePrefix(t time.Time) []byte {
	k := make([]byte, len(detectionPrefix)+8)
	copy(k, detectionPrefix)
	ns := t.UnixNano()
	if ns < 0 {
		ns = 0
	}
	binary.BigEndian.PutUint64(k[len(detectionPrefix):], uint64(ns))
	return k
}

func detectionKey(t time.Time, seq uint64) []byte {
	k := append(timePrefix(t), make([]byte, 8)...)
	binary.BigEndian.PutUint64(k[len(k)-8:], seq)
	return k
}

func userKey(userID string) []byte {
	return append(append([]byte{}, userPrefix...), userID...)
}

// zerologAdapter routes badger's logger into zerolog, dropping info and
// debug output.
type zerologAdapter struct {
	l zerolog.Logger
}

func (z zerologAdapter) Errorf(f string, v ...interface{})   { z.l.Error().Msgf(f, v...) }
func (z zerologAdapter) Warningf(f string, v ...interface{}) { z.l.Warn().Msgf(f, v...) }
func (z zerologAdapter) Infof(string, ...interface{})        {}
func (z zerologAdapter) Debugf(string, ...interface{})       {}
