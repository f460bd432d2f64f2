package mocks

import (
	"context"
	"sync"
	"testing"

	"gitlab.com/ucmsv2/idbroker/internal/domain/client"
	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
)

type ClientRepo struct {
	mu  sync.Mutex
	db  map[string]*client.Client
	err error
}

func NewClientRepo() *ClientRepo {
	return &ClientRepo{db: make(map[string]*client.Client)}
}

func (r *ClientRepo) GetClient(ctx context.Context, id string) (*client.Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.err != nil {
		return nil, r.err
	}
	c, ok := r.db[id]
	if !ok {
		return nil, errorx.NewNotFound()
	}
	return c, nil
}

func (r *ClientRepo) Fail(err error) *ClientRepo {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.err = err
	return r
}

func (r *ClientRepo) SeedClient(t *testing.T, c *client.Client) {
	t.Helper()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.db[c.ID()]; exists {
		t.Fatalf("client %s already exists", c.ID())
	}
	r.db[c.ID()] = c
}
