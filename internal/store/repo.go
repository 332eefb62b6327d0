package store

import (
	"context"
	"errors"
	"time"
)

// ErrNoChange may be returned by an UpdateFunc to leave the stored value untouched.
var ErrNoChange = errors.New("no change")

// UpdateFunc receives the current value (nil, false when absent) and returns the value to store.
type UpdateFunc func(cur []byte, found bool) ([]byte, error)

// UpdateManyFunc receives the current values of the requested keys (absent keys are
// missing from the map) and returns the values to store. Keys left out of the result
// are not written.
type UpdateManyFunc func(cur map[string][]byte) (map[string][]byte, error)

// KV is a small versioned key/value store. Every write replaces the whole value.
type KV interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update runs a read-modify-write of key inside one transaction.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	// UpdateMany is Update over several keys: all writes commit together or not at all.
	UpdateMany(ctx context.Context, keys []string, fn UpdateManyFunc) error
}

// Journal records delivery outcomes.
type Journal interface {
	LogDelivery(ctx context.Context, d Delivery) error
	RecentDeliveries(ctx context.Context, limit int) ([]Delivery, error)
}

// Repo is everything the service persists.
type Repo interface {
	KV
	Journal
	Close() error
}

// Delivery outcomes.
const (
	OutcomeDelivered  = "delivered"
	OutcomeFailed     = "failed"
	OutcomeSuppressed = "suppressed"
	OutcomeDropped    = "dropped"
)

// Delivery is one row of the delivery log.
type Delivery struct {
	ID         int64
	Category   string
	TemplateID string
	Outcome    string
	Detail     string
	At         time.Time
}
