package cart

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Store persists carts between a shopper's requests.
type Store interface {
	// Load returns the cart for cartID, or an empty cart if none is stored.
	Load(ctx context.Context, cartID string) (*Cart, error)

	// Save replaces the stored cart for cartID.
	Save(ctx context.Context, cartID string, c *Cart) error

	// Delete removes the stored cart. Deleting a missing cart is not an error.
	Delete(ctx context.Context, cartID string) error
}

// memoryStore keeps serialised carts in process memory.
type memoryStore struct {
	mu    sync.RWMutex
	carts map[string][]byte
}

// NewMemoryStore creates an in-process cart store.
func NewMemoryStore() Store {
	return &memoryStore{carts: make(map[string][]byte)}
}

func (s *memoryStore) Load(_ context.Context, cartID string) (*Cart, error) {
	if cartID == "" {
		return nil, fmt.Errorf("cartID is empty")
	}

	s.mu.RLock()
	data, ok := s.carts[cartID]
	s.mu.RUnlock()
	if !ok {
		return New(), nil
	}

	c := New()
	if err := json.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("failed to decode cart %s: %w", cartID, err)
	}
	return c, nil
}

func (s *memoryStore) Save(_ context.Context, cartID string, c *Cart) error {
	if cartID == "" {
		return fmt.Errorf("cartID is empty")
	}

	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode cart %s: %w", cartID, err)
	}

	s.mu.Lock()
	s.carts[cartID] = data
	s.mu.Unlock()
	return nil
}

func (s *memoryStore) Delete(_ context.Context, cartID string) error {
	s.mu.Lock()
	delete(s.carts, cartID)
	s.mu.Unlock()
	return nil
}
