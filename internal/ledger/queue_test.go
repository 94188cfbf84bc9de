package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/dvloznov/expense-bot/internal/domain"
)

func newQueueUnderTest(t *testing.T, store *fakeStore) *PostingQueue {
	t.Helper()
	poster := newTestPoster(store, true)
	q := NewPostingQueue(poster, 10, zerolog.Nop())
	q.Start(context.Background())
	t.Cleanup(func() { q.Stop(context.Background()) })
	return q
}

func TestPostingQueue_PostDelegatesToWriter(t *testing.T) {
	store := newFakeStore()
	q := newQueueUnderTest(t, store)

	ok := q.Post(context.Background(), []domain.ExpenseRecord{testRecord("Hosting", "102000", "25.50")})
	if !ok {
		t.Fatal("Post() = false, want true")
	}
	if len(store.appends) != 2 {
		t.Errorf("got %d appends, want 2", len(store.appends))
	}
}

func TestPostingQueue_EmptyBatchSucceedsWithoutEnqueue(t *testing.T) {
	store := newFakeStore()
	q := newQueueUnderTest(t, store)

	if !q.Post(context.Background(), nil) {
		t.Error("Post(nil) = false, want true")
	}
	if len(store.appends) != 0 {
		t.Errorf("Post(nil) reached the store: %d appends", len(store.appends))
	}
}

func TestPostingQueue_ConcurrentPostsAreSerialized(t *testing.T) {
	store := newFakeStore()
	q := newQueueUnderTest(t, store)

	const posts = 20
	var wg sync.WaitGroup
	for i := 0; i < posts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if !q.Post(context.Background(), []domain.ExpenseRecord{testRecord("Hosting", "1000", "0.25")}) {
				t.Error("concurrent Post() = false, want true")
			}
		}()
	}
	wg.Wait()

	// The single writer probes and appends without interleaving, so every
	// expense row lands at a distinct position.
	seen := make(map[int]bool)
	for _, call := range store.appends {
		if call.sheet != "Gastos" {
			continue
		}
		if seen[call.startRow] {
			t.Errorf("two expense batches written at row %d", call.startRow)
		}
		seen[call.startRow] = true
	}
	if len(seen) != posts {
		t.Errorf("got %d expense batches, want %d", len(seen), posts)
	}
}

func TestPostingQueue_ClosedQueueRejectsPosts(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, true)
	q := NewPostingQueue(poster, 10, zerolog.Nop())
	q.Start(context.Background())

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if q.Post(context.Background(), []domain.ExpenseRecord{testRecord("Hosting", "1000", "0.25")}) {
		t.Error("Post() on closed queue = true, want false")
	}
}

func TestPostingQueue_StopIsIdempotent(t *testing.T) {
	store := newFakeStore()
	poster := newTestPoster(store, true)
	q := NewPostingQueue(poster, 10, zerolog.Nop())
	q.Start(context.Background())

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("first Stop() error = %v", err)
	}
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}
