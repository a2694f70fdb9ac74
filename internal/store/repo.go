package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/NobleWolf412/snipersight-trading-sub002/internal/signal"
	"github.com/NobleWolf412/snipersight-trading-sub002/internal/view"
)

const latestKey = "scan:latest"

// Repo persists scan batches and saved view state on top of a Store
type Repo struct {
	store  Store
	prefix string
	ttl    time.Duration
}

// NewRepo creates a repository; ttl bounds how long batches are kept (0 = forever)
func NewRepo(s Store, prefix string, ttl time.Duration) *Repo {
	return &Repo{store: s, prefix: prefix, ttl: ttl}
}

func (r *Repo) key(parts ...string) string {
	k := r.prefix
	for i, p := range parts {
		if i > 0 {
			k += ":"
		}
		k += p
	}
	return k
}

// SaveBatch stores a batch under its scan id and marks it as latest
func (r *Repo) SaveBatch(ctx context.Context, batch signal.Batch) error {
	id := batch.Metadata.ScanID
	if id == "" {
		return fmt.Errorf("batch has no scan id")
	}

	data, err := json.Marshal(batch)
	if err != nil {
		return fmt.Errorf("failed to encode batch %s: %w", id, err)
	}
	if err := r.store.Set(ctx, r.key("scan", id), data, r.ttl); err != nil {
		return err
	}
	return r.store.Set(ctx, r.key(latestKey), []byte(id), r.ttl)
}

// Batch loads the batch stored under id
func (r *Repo) Batch(ctx context.Context, id string) (signal.Batch, error) {
	var batch signal.Batch
	data, err := r.store.Get(ctx, r.key("scan", id))
	if err != nil {
		return batch, err
	}
	if err := json.Unmarshal(data, &batch); err != nil {
		return batch, fmt.Errorf("failed to decode batch %s: %w", id, err)
	}
	return batch, nil
}

// Latest loads the most recently saved batch
func (r *Repo) Latest(ctx context.Context) (signal.Batch, error) {
	id, err := r.store.Get(ctx, r.key(latestKey))
	if err != nil {
		return signal.Batch{}, err
	}
	return r.Batch(ctx, string(id))
}

// SaveView stores an operator's view state under id
func (r *Repo) SaveView(ctx context.Context, id string, state view.State) error {
	data, err := json.Marshal(state.Normalized())
	if err != nil {
		return fmt.Errorf("failed to encode view %s: %w", id, err)
	}
	return r.store.Set(ctx, r.key("view", id), data, 0)
}

// View loads a saved view; unknown ids yield the default state
func (r *Repo) View(ctx context.Context, id string) (view.State, error) {
	data, err := r.store.Get(ctx, r.key("view", id))
	if errors.Is(err, ErrNotFound) {
		return view.DefaultState(), nil
	}
	if err != nil {
		return view.State{}, err
	}

	var state view.State
	if err := json.Unmarshal(data, &state); err != nil {
		return view.State{}, fmt.Errorf("failed to decode view %s: %w", id, err)
	}
	return state.Normalized(), nil
}

// Ping checks the underlying store is reachable
func (r *Repo) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}
