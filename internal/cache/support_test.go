package cache

import (
	"context"
	"errors"
	"sync"

	"github.com/saleemjadallah/Jiran-Backend-sub000/internal/infrastructure/kvstore"
)

// fakeDurable is an in-memory DurableStore with scriptable failures.
type fakeDurable struct {
	mu         sync.Mutex
	viewCounts map[string]int64
	statuses   map[string]string

	failIDs  map[string]error
	batchErr error

	addCalls  int
	markCalls int
}

func newFakeDurable() *fakeDurable {
	return &fakeDurable{
		viewCounts: make(map[string]int64),
		statuses:   make(map[string]string),
		failIDs:    make(map[string]error),
	}
}

func (f *fakeDurable) AddProductViews(ctx context.Context, deltas map[string]int64) (map[string]error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	failed := make(map[string]error)
	for id, delta := range deltas {
		if err, ok := f.failIDs[id]; ok {
			failed[id] = err
			continue
		}
		f.viewCounts[id] += delta
	}
	return failed, nil
}

func (f *fakeDurable) MarkOffersExpired(ctx context.Context, offerIDs []string) (map[string]error, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	failed := make(map[string]error)
	for _, id := range offerIDs {
		if err, ok := f.failIDs[id]; ok {
			failed[id] = err
			continue
		}
		if f.statuses[id] != OfferStatusPending {
			failed[id] = errors.New("offer not in pending state")
			continue
		}
		f.statuses[id] = OfferStatusExpired
	}
	return failed, nil
}

func (f *fakeDurable) GetOfferStatuses(ctx context.Context, offerIDs []string) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make(map[string]string)
	for _, id := range offerIDs {
		if status, ok := f.statuses[id]; ok {
			out[id] = status
		}
	}
	return out, nil
}

func (f *fakeDurable) viewCount(id string) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.viewCounts[id]
}

func (f *fakeDurable) status(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses[id]
}

func newTestStore() *kvstore.MemoryStore {
	return kvstore.NewMemoryStore(nil, nil, nil)
}
