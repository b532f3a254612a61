// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

type note struct {
	ID    string `json:"id"`
	Owner string `json:"owner"`
	Text  string `json:"text"`
}

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Options{InMemory: true})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPutGetDelete(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	in := note{ID: "n1", Owner: "u1", Text: "Kyoto day one"}
	if err := s.Put(ctx, "notes", in.ID, in); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	var out note
	if err := s.Get(ctx, "notes", "n1", &out); err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if out != in {
		t.Errorf("Get() = %+v, want %+v", out, in)
	}

	if err := s.Delete(ctx, "notes", "n1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if err := s.Get(ctx, "notes", "n1", &out); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "notes", "n1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() = %v, want ErrNotFound", err)
	}
}

func TestCollectionsAreIsolated(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "notes", "1", note{ID: "1"})
	_ = s.Put(ctx, "notes_archive", "1", note{ID: "1"})
	_ = s.Put(ctx, "notes_archive", "2", note{ID: "2"})

	n, err := s.Count(ctx, "notes")
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("Count(notes) = %d, want 1", n)
	}
}

func TestList(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		owner := "u1"
		if i%2 == 1 {
			owner = "u2"
		}
		id := fmt.Sprintf("n%d", i)
		if err := s.Put(ctx, "notes", id, note{ID: id, Owner: owner}); err != nil {
			t.Fatal(err)
		}
	}

	all, err := List[note](ctx, s, "notes", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 6 {
		t.Errorf("List(nil) len = %d, want 6", len(all))
	}

	mine, err := List(ctx, s, "notes", func(n *note) bool { return n.Owner == "u1" })
	if err != nil {
		t.Fatal(err)
	}
	if len(mine) != 3 {
		t.Errorf("filtered len = %d, want 3", len(mine))
	}
	for _, n := range mine {
		if n.Owner != "u1" {
			t.Errorf("unexpected owner %q", n.Owner)
		}
	}
}

func TestUniqueIndex(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	err := s.Update(ctx, func(tx *Tx) error {
		if err := tx.Put("users", "u1", note{ID: "u1"}); err != nil {
			return err
		}
		return tx.SetUnique("users", "email", "ada@example.com", "u1")
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	id, err := s.Lookup(ctx, "users", "email", "ada@example.com")
	if err != nil || id != "u1" {
		t.Fatalf("Lookup() = %q, %v; want u1", id, err)
	}

	err = s.Update(ctx, func(tx *Tx) error {
		return tx.SetUnique("users", "email", "ada@example.com", "u2")
	})
	if !errors.Is(err, ErrConflict) {
		t.Errorf("claiming taken value = %v, want ErrConflict", err)
	}

	err = s.Update(ctx, func(tx *Tx) error {
		return tx.SetUnique("users", "email", "ada@example.com", "u1")
	})
	if err != nil {
		t.Errorf("re-claiming own value = %v, want nil", err)
	}

	_ = s.Update(ctx, func(tx *Tx) error { return tx.DropUnique("users", "email", "ada@example.com") })
	if _, err := s.Lookup(ctx, "users", "email", "ada@example.com"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Lookup() after drop = %v, want ErrNotFound", err)
	}
}

func TestClosedAndCanceled(t *testing.T) {
	s := setupTestStore(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.Put(ctx, "notes", "x", note{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Put() with canceled ctx = %v", err)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Ping(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Ping() after close = %v, want ErrClosed", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}
}

func TestPutRejectsEmptyID(t *testing.T) {
	s := setupTestStore(t)
	if err := s.Put(context.Background(), "notes", "", note{}); err == nil {
		t.Error("Put() with empty id should fail")
	}
}

type counter struct {
	N int `json:"n"`
}

func TestUpdateRetriesConflicts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	if err := s.Put(ctx, "counters", "c", counter{}); err != nil {
		t.Fatal(err)
	}

	const writers = 20
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	start := make(chan struct{})
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			err := s.Update(ctx, func(tx *Tx) error {
				var c counter
				if err := tx.Get("counters", "c", &c); err != nil {
					return err
				}
				c.N++
				return tx.Put("counters", "c", c)
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	if len(errs) > 0 {
		t.Fatalf("%d of %d updates failed, first: %v", len(errs), writers, errs[0])
	}
	var got counter
	if err := s.Get(ctx, "counters", "c", &got); err != nil {
		t.Fatal(err)
	}
	if got.N != writers {
		t.Errorf("counter = %d, want %d", got.N, writers)
	}
}

func TestUpdateDoesNotRetryCallbackErrors(t *testing.T) {
	s := setupTestStore(t)
	calls := 0
	want := errors.New("boom")
	err := s.Update(context.Background(), func(*Tx) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Update() error = %v, want %v", err, want)
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1", calls)
	}
}

func TestConflictBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		min, max time.Duration
	}{
		{0, 500 * time.Microsecond, time.Millisecond},
		{1, time.Millisecond, 2 * time.Millisecond},
		{5, 16 * time.Millisecond, 32 * time.Millisecond},
		{30, 16 * time.Millisecond, 32 * time.Millisecond},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("attempt %d", tt.attempt), func(t *testing.T) {
			for i := 0; i < 50; i++ {
				if d := conflictBackoff(tt.attempt); d < tt.min || d >= tt.max {
					t.Fatalf("conflictBackoff(%d) = %v, want [%v, %v)", tt.attempt, d, tt.min, tt.max)
				}
			}
		})
	}
}

func TestListTxRerunsOnConcurrentWrite(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	for _, n := range []note{{ID: "1", Owner: "u1", Text: "a"}, {ID: "2", Owner: "u2", Text: "b"}} {
		if err := s.Put(ctx, "notes", n.ID, n); err != nil {
			t.Fatal(err)
		}
	}

	calls := 0
	err := s.Update(ctx, func(tx *Tx) error {
		calls++
		mine, err := ListTx(tx, "notes", func(n *note) bool { return n.Owner == "u1" })
		if err != nil {
			return err
		}
		if calls == 1 {
			// Another writer edits the listed note before this commit.
			if err := s.Put(ctx, "notes", "1", note{ID: "1", Owner: "u1", Text: "edited"}); err != nil {
				return err
			}
		}
		for _, n := range mine {
			n.Text += "!"
			if err := tx.Put("notes", n.ID, n); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("callback ran %d times, want 2", calls)
	}

	var got note
	if err := s.Get(ctx, "notes", "1", &got); err != nil {
		t.Fatal(err)
	}
	if got.Text != "edited!" {
		t.Errorf("text = %q, want the concurrent edit kept", got.Text)
	}
}

func TestTxScanSeesPendingWrites(t *testing.T) {
	s := setupTestStore(t)
	err := s.Update(context.Background(), func(tx *Tx) error {
		if err := tx.Put("notes", "p", note{ID: "p"}); err != nil {
			return err
		}
		all, err := ListTx[note](tx, "notes", nil)
		if err != nil {
			return err
		}
		if len(all) != 1 || all[0].ID != "p" {
			t.Errorf("ListTx() = %+v, want the pending note", all)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}
