package store

import (
	"context"
	"sort"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/hyperterse/hypercluster/core/domain"
)

// MemoryStore keeps products in process memory. In multi-process mode every
// worker has its own copy; use a database store to share the catalog.
type MemoryStore struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{products: make(map[string]domain.Product)}
}

func (s *MemoryStore) GetAll(ctx context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		out = append(out, p)
	}
	// ULIDs sort by creation time.
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) Save(ctx context.Context, in domain.ProductInput) (domain.Product, error) {
	p := domain.Product{
		ID:        ulid.Make().String(),
		Title:     in.Title,
		Price:     in.Price,
		Thumbnail: in.Thumbnail,
	}
	s.mu.Lock()
	s.products[p.ID] = p
	s.mu.Unlock()
	return p, nil
}

func (s *MemoryStore) GetByID(ctx context.Context, id string) (domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

func (s *MemoryStore) UpdateByID(ctx context.Context, id string, in domain.ProductInput) (domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	p := domain.Product{ID: id, Title: in.Title, Price: in.Price, Thumbnail: in.Thumbnail}
	s.products[id] = p
	return p, nil
}

func (s *MemoryStore) DeleteByID(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.products[id]; !ok {
		return domain.ErrProductNotFound
	}
	delete(s.products, id)
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
