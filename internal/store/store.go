// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

// Package store is Everly's document database: JSON documents grouped into
// collections, persisted in BadgerDB.
//
// Key layout:
//
//	doc/<collection>/<id>               JSON document
//	idx/<collection>/<index>/<value>    id of the document owning a unique value
//
// The store is the shared database handle passed to every module. It has no
// schema; each module owns the shape of its collections.
package store

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/metrics"
)

var (
	// ErrNotFound is returned when a document or index entry does not exist.
	ErrNotFound = errors.New("store: not found")

	// ErrConflict is returned when a unique index value is already taken.
	ErrConflict = errors.New("store: unique value already exists")

	// ErrClosed is returned for calls after Close.
	ErrClosed = errors.New("store: closed")
)

const (
	docPrefix   = "doc/"
	indexPrefix = "idx/"

	// maxUpdateAttempts bounds how often a read-write transaction is rerun
	// after losing a commit race to a concurrent writer.
	maxUpdateAttempts = 32
)

// Options configures Open.
type Options struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string

	// InMemory keeps all data in memory. Used by tests and ephemeral runs.
	InMemory bool
}

// Store is a goroutine-safe document store.
type Store struct {
	db        *badger.DB
	closed    bool
	mu        sync.RWMutex
	closeOnce sync.Once
}

// Open opens (or creates) the database.
func Open(opts Options) (*Store, error) {
	bopts := badger.DefaultOptions(opts.Path)
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	}
	bopts = bopts.WithLogger(&badgerLogger{logger: logging.WithComponent("badger")})

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}
	return &Store{db: db}, nil
}

// Close flushes and closes the database. Safe to call more than once.
func (s *Store) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		err = s.db.Close()
	})
	return err
}

// Ping reports whether the store accepts reads.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.db.View(func(*badger.Txn) error { return nil })
}

func (s *Store) check(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

// Get loads the document into out.
func (s *Store) Get(ctx context.Context, collection, id string, out any) (err error) {
	defer observe("get", collection, time.Now(), &err)
	if err = s.check(ctx); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return (&Tx{txn: txn}).Get(collection, id, out)
	})
}

// Put writes the document, replacing any previous version.
func (s *Store) Put(ctx context.Context, collection, id string, doc any) (err error) {
	defer observe("put", collection, time.Now(), &err)
	if err = s.check(ctx); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return (&Tx{txn: txn}).Put(collection, id, doc)
	})
}

// Delete removes the document. It returns ErrNotFound when absent.
func (s *Store) Delete(ctx context.Context, collection, id string) (err error) {
	defer observe("delete", collection, time.Now(), &err)
	if err = s.check(ctx); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return (&Tx{txn: txn}).Delete(collection, id)
	})
}

// Lookup resolves a unique index value to a document id.
func (s *Store) Lookup(ctx context.Context, collection, index, value string) (id string, err error) {
	defer observe("lookup", collection, time.Now(), &err)
	if err = s.check(ctx); err != nil {
		return "", err
	}
	err = s.db.View(func(txn *badger.Txn) error {
		var lerr error
		id, lerr = (&Tx{txn: txn}).Lookup(collection, index, value)
		return lerr
	})
	return id, err
}

// Scan calls fn for every document in the collection in key order. Returning
// a non-nil error from fn stops the scan and is returned.
func (s *Store) Scan(ctx context.Context, collection string, fn func(id string, raw []byte) error) (err error) {
	defer observe("scan", collection, time.Now(), &err)
	if err = s.check(ctx); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return scan(ctx, txn, collection, fn)
	})
}

func scan(ctx context.Context, txn *badger.Txn, collection string, fn func(id string, raw []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchValues = true
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(docKey(collection, ""))
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		item := it.Item()
		id := strings.TrimPrefix(string(item.Key()), string(prefix))
		if err := item.Value(func(val []byte) error { return fn(id, val) }); err != nil {
			return err
		}
	}
	return nil
}

// Count returns the number of documents in the collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	if err := s.check(ctx); err != nil {
		return 0, err
	}
	n := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(docKey(collection, ""))
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			n++
		}
		return nil
	})
	return n, err
}

// Update runs fn inside a read-write transaction. When the commit conflicts
// with a concurrent writer, fn runs again in a fresh transaction, so fn must
// reset any state it captures outside the transaction.
func (s *Store) Update(ctx context.Context, fn func(tx *Tx) error) error {
	if err := s.check(ctx); err != nil {
		return err
	}
	return s.update(ctx, func(txn *badger.Txn) error {
		return fn(&Tx{txn: txn})
	})
}

// update retries fn on badger.ErrConflict with jittered exponential backoff.
func (s *Store) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxUpdateAttempts; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) || attempt == maxUpdateAttempts-1 {
			break
		}
		metrics.RecordStoreConflictRetry()
		select {
		case <-time.After(conflictBackoff(attempt)):
		case <-ctx.Done():
			return ctx.Err()
		}
		if err := s.check(ctx); err != nil {
			return err
		}
	}
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("transaction conflict after %d attempts: %w", maxUpdateAttempts, err)
	}
	return err
}

// conflictBackoff waits 0.5-1ms on the first retry, doubling up to 16-32ms.
func conflictBackoff(attempt int) time.Duration {
	d := time.Millisecond << min(attempt, 5)
	return d/2 + rand.N(d/2)
}

// List decodes every document of the collection accepted by keep. A nil
// keep accepts everything.
func List[T any](ctx context.Context, s *Store, collection string, keep func(*T) bool) ([]T, error) {
	var out []T
	err := s.Scan(ctx, collection, collect(collection, keep, &out))
	return out, err
}

// ListTx is List inside a transaction. Inside Store.Update every document
// read joins the conflict check, so a concurrent write to any of them
// reruns the transaction.
func ListTx[T any](tx *Tx, collection string, keep func(*T) bool) ([]T, error) {
	var out []T
	err := tx.Scan(collection, collect(collection, keep, &out))
	return out, err
}

func collect[T any](collection string, keep func(*T) bool, out *[]T) func(string, []byte) error {
	return func(_ string, raw []byte) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("decode %s document: %w", collection, err)
		}
		if keep == nil || keep(&v) {
			*out = append(*out, v)
		}
		return nil
	}
}

// Tx is a view over a Badger transaction with document semantics.
type Tx struct {
	txn *badger.Txn
}

// Get loads a document.
func (t *Tx) Get(collection, id string, out any) error {
	item, err := t.txn.Get([]byte(docKey(collection, id)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

// Scan calls fn for every document of the collection in key order,
// including writes made earlier in the transaction.
func (t *Tx) Scan(collection string, fn func(id string, raw []byte) error) error {
	return scan(context.Background(), t.txn, collection, fn)
}

// Put writes a document.
func (t *Tx) Put(collection, id string, doc any) error {
	if id == "" {
		return fmt.Errorf("put %s: empty id", collection)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal %s/%s: %w", collection, id, err)
	}
	if err := t.txn.Set([]byte(docKey(collection, id)), data); err != nil {
		return fmt.Errorf("set %s/%s: %w", collection, id, err)
	}
	return nil
}

// Delete removes a document, returning ErrNotFound when absent.
func (t *Tx) Delete(collection, id string) error {
	key := []byte(docKey(collection, id))
	if _, err := t.txn.Get(key); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return t.txn.Delete(key)
}

// SetUnique claims value for id in a unique index. Claiming a value already
// owned by the same id is a no-op; owned by another id is ErrConflict.
func (t *Tx) SetUnique(collection, index, value, id string) error {
	key := []byte(indexKey(collection, index, value))
	item, err := t.txn.Get(key)
	switch {
	case err == nil:
		var owner string
		if verr := item.Value(func(v []byte) error { owner = string(v); return nil }); verr != nil {
			return verr
		}
		if owner != id {
			return fmt.Errorf("%s.%s=%q: %w", collection, index, value, ErrConflict)
		}
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return t.txn.Set(key, []byte(id))
	default:
		return err
	}
}

// DropUnique releases a unique index value. Missing entries are ignored.
func (t *Tx) DropUnique(collection, index, value string) error {
	err := t.txn.Delete([]byte(indexKey(collection, index, value)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// Lookup resolves a unique index value.
func (t *Tx) Lookup(collection, index, value string) (string, error) {
	item, err := t.txn.Get([]byte(indexKey(collection, index, value)))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	var id string
	err = item.Value(func(v []byte) error {
		id = string(v)
		return nil
	})
	return id, err
}

func docKey(collection, id string) string {
	return docPrefix + collection + "/" + id
}

func indexKey(collection, index, value string) string {
	return indexPrefix + collection + "/" + index + "/" + value
}

func observe(op, collection string, start time.Time, err *error) {
	e := *err
	if errors.Is(e, ErrNotFound) {
		e = nil
	}
	metrics.RecordStoreOperation(op, collection, time.Since(start), e)
}

// badgerLogger routes Badger's internal logging to zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l *badgerLogger) Errorf(f string, v ...interface{})   { l.logger.Error().Msgf(strings.TrimSpace(f), v...) }
func (l *badgerLogger) Warningf(f string, v ...interface{}) { l.logger.Warn().Msgf(strings.TrimSpace(f), v...) }
func (l *badgerLogger) Infof(f string, v ...interface{})    { l.logger.Debug().Msgf(strings.TrimSpace(f), v...) }
func (l *badgerLogger) Debugf(f string, v ...interface{})   { l.logger.Trace().Msgf(strings.TrimSpace(f), v...) }
