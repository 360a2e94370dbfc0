// Package store keeps each dashboard collection as a list inside its own bin.
//
// Every write is a whole-document overwrite: fetch the bin, change the list,
// put the entire list back. Updates are serialized per collection inside this
// process only. Another process writing the same bin still wins or loses
// silently; there is no conflict detection.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"prime_pips/internal/logging"
	"prime_pips/internal/models"

	"go.uber.org/zap"
)

// Backend is the subset of the document-store client the collections need.
type Backend interface {
	CreateBin(ctx context.Context, data any) (string, error)
	FetchBin(ctx context.Context, binID string, out any) error
	UpdateBin(ctx context.Context, binID string, data any) error
}

// Registry maps a collection kind to its bin id.
type Registry interface {
	Get(kind string) (string, bool)
	Set(kind, id string) error
}

type Store struct {
	Users         *Collection[models.User]
	Transactions  *Collection[models.Transaction]
	Notifications *Collection[models.Notification]
	Applications  *Collection[models.AgentApplication]
	Accounts      *Collection[models.AccountDetail]
	Messages      *Collection[models.Message]

	log *zap.Logger
}

func New(backend Backend, registry Registry, log *zap.Logger) *Store {
	log = logging.OrNop(log)
	return &Store{
		Users:         newCollection[models.User](backend, registry, "users", "users", log),
		Transactions:  newCollection[models.Transaction](backend, registry, "transactions", "transactions", log),
		Notifications: newCollection[models.Notification](backend, registry, "notifications", "notifications", log),
		Applications:  newCollection[models.AgentApplication](backend, registry, "agentApplications", "agentApplications", log),
		Accounts:      newCollection[models.AccountDetail](backend, registry, "accountDetails", "accountDetails", log),
		Messages:      newCollection[models.Message](backend, registry, "messages", "messages", log),
		log:           log,
	}
}

// binner is the untyped view of a collection used by EnsureBins.
type binner interface {
	Kind() string
	BinID(ctx context.Context) (string, error)
}

func (s *Store) all() []binner {
	return []binner{s.Users, s.Transactions, s.Notifications, s.Applications, s.Accounts, s.Messages}
}

// EnsureBins creates every bin that is not registered yet and returns kind -> id.
func (s *Store) EnsureBins(ctx context.Context) (map[string]string, error) {
	ids := make(map[string]string)
	for _, c := range s.all() {
		id, err := c.BinID(ctx)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c.Kind(), err)
		}
		ids[c.Kind()] = id
	}
	return ids, nil
}

// Collection is one typed list stored as {"<key>": [...]} in a single bin.
type Collection[T any] struct {
	backend  Backend
	registry Registry
	kind     string
	key      string
	log      *zap.Logger

	mu     sync.Mutex // serializes Update and lazy bin creation
	initMu sync.Mutex
}

func newCollection[T any](b Backend, r Registry, kind, key string, log *zap.Logger) *Collection[T] {
	return &Collection[T]{backend: b, registry: r, kind: kind, key: key, log: log}
}

func (c *Collection[T]) Kind() string { return c.kind }

// BinID returns the collection's bin, creating it with an empty list on first use.
func (c *Collection[T]) BinID(ctx context.Context) (string, error) {
	if id, ok := c.registry.Get(c.kind); ok {
		return id, nil
	}

	c.initMu.Lock()
	defer c.initMu.Unlock()
	if id, ok := c.registry.Get(c.kind); ok {
		return id, nil
	}

	id, err := c.backend.CreateBin(ctx, map[string]any{c.key: []T{}})
	if err != nil {
		return "", err
	}
	if err := c.registry.Set(c.kind, id); err != nil {
		return "", fmt.Errorf("register %s bin: %w", c.kind, err)
	}
	c.log.Info("🗂️ Created bin", zap.String("kind", c.kind), zap.String("bin", id))
	return id, nil
}

// List fetches the current contents. A document without the key reads as empty.
func (c *Collection[T]) List(ctx context.Context) ([]T, error) {
	id, err := c.BinID(ctx)
	if err != nil {
		return nil, err
	}
	return c.fetch(ctx, id)
}

// Replace overwrites the whole collection.
func (c *Collection[T]) Replace(ctx context.Context, items []T) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, err := c.BinID(ctx)
	if err != nil {
		return err
	}
	return c.put(ctx, id, items)
}

// Update runs fetch, fn, overwrite. If fn returns an error nothing is written.
func (c *Collection[T]) Update(ctx context.Context, fn func(items []T) ([]T, error)) ([]T, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := c.BinID(ctx)
	if err != nil {
		return nil, err
	}
	items, err := c.fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	updated, err := fn(items)
	if err != nil {
		return nil, err
	}
	if err := c.put(ctx, id, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

func (c *Collection[T]) fetch(ctx context.Context, id string) ([]T, error) {
	var doc map[string]json.RawMessage
	if err := c.backend.FetchBin(ctx, id, &doc); err != nil {
		return nil, err
	}

	raw, ok := doc[c.key]
	if !ok || string(raw) == "null" {
		return []T{}, nil
	}
	var items []T
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode %s: %w", c.kind, err)
	}
	return items, nil
}

func (c *Collection[T]) put(ctx context.Context, id string, items []T) error {
	if items == nil {
		items = []T{}
	}
	return c.backend.UpdateBin(ctx, id, map[string]any{c.key: items})
}
