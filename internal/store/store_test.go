package store

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type record struct {
	ID   string
	Tags map[string]struct{}
	N    int
}

func (r record) Key() string { return r.ID }

func (r record) Clone() record {
	out := r
	out.Tags = make(map[string]struct{}, len(r.Tags))
	for k := range r.Tags {
		out.Tags[k] = struct{}{}
	}
	return out
}

func TestCreateGetDelete(t *testing.T) {
	s := NewMemory[record]()
	ctx := context.Background()

	if _, err := s.Create(ctx, record{ID: "a"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Create(ctx, record{ID: "a"}); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Get(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if err := s.Delete(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if err := s.Delete(ctx, "a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	s := NewMemory[record]()
	ctx := context.Background()
	_, _ = s.Create(ctx, record{ID: "a", Tags: map[string]struct{}{"x": {}}})

	got, _ := s.Get(ctx, "a")
	got.Tags["y"] = struct{}{}

	again, _ := s.Get(ctx, "a")
	if _, leaked := again.Tags["y"]; leaked {
		t.Fatal("mutation of returned copy leaked into the store")
	}
}

func TestUpdateIsAtomic(t *testing.T) {
	s := NewMemory[record]()
	ctx := context.Background()
	_, _ = s.Create(ctx, record{ID: "a"})

	// Concurrent bounded increments: the mutator's check-then-act must not
	// interleave, so the counter never exceeds the cap.
	const limit, workers = 5, 50
	var wg sync.WaitGroup
	var failed int
	var mu sync.Mutex
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, "a", func(r record) (record, error) {
				if r.N >= limit {
					return r, errors.New("full")
				}
				r.N++
				return r, nil
			})
			if err != nil {
				mu.Lock()
				failed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	got, _ := s.Get(ctx, "a")
	if got.N != limit {
		t.Fatalf("counter = %d, want %d", got.N, limit)
	}
	if failed != workers-limit {
		t.Fatalf("failed = %d, want %d", failed, workers-limit)
	}
}

func TestUpdateErrorLeavesStateUnchanged(t *testing.T) {
	s := NewMemory[record]()
	ctx := context.Background()
	_, _ = s.Create(ctx, record{ID: "a", N: 1})

	boom := errors.New("boom")
	_, err := s.Update(ctx, "a", func(r record) (record, error) {
		r.N = 99
		return r, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	got, _ := s.Get(ctx, "a")
	if got.N != 1 {
		t.Fatalf("state changed despite mutator error: N=%d", got.N)
	}
}

func TestFindOrdersByKey(t *testing.T) {
	s := NewMemory[record]()
	ctx := context.Background()
	for _, id := range []string{"c", "a", "b"} {
		_, _ = s.Create(ctx, record{ID: id, N: 1})
	}
	got, err := s.Find(ctx, func(r record) bool { return r.N == 1 })
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 3 || got[0].ID != "a" || got[2].ID != "c" {
		t.Fatalf("unexpected order: %#v", got)
	}
}
