// Package memory holds thread-safe in-memory stores for development and tests.
package memory

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jwalitptl/frontdesk/internal/clock"
	"github.com/jwalitptl/frontdesk/internal/model"
	"github.com/jwalitptl/frontdesk/internal/repository"
)

type entry[T any] struct {
	seq  int
	item *T
}

// collection stores copies of T and answers model.Query lookups.
type collection[T any] struct {
	mu    sync.RWMutex
	clock clock.Clock
	seq   int
	items map[uuid.UUID]*entry[T]

	base  func(*T) *model.Base
	field func(*T, string) (string, bool)
	clone func(*T) *T
}

func (c *collection[T]) create(item *T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.base(item)
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	now := c.clock.Now().UTC()
	b.CreatedAt = now
	b.UpdatedAt = now

	c.seq++
	c.items[b.ID] = &entry[T]{seq: c.seq, item: c.clone(item)}
}

func (c *collection[T]) update(item *T, merge func(stored, in *T)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	b := c.base(item)
	e, ok := c.items[b.ID]
	if !ok {
		return fmt.Errorf("%s: %w", b.ID, repository.ErrNotFound)
	}
	b.UpdatedAt = c.clock.Now().UTC()
	next := c.clone(e.item)
	merge(next, item)
	c.base(next).UpdatedAt = b.UpdatedAt
	e.item = next
	return nil
}

func (c *collection[T]) delete(id uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.items[id]; !ok {
		return fmt.Errorf("%s: %w", id, repository.ErrNotFound)
	}
	delete(c.items, id)
	return nil
}

func (c *collection[T]) find(q model.Query) ([]*T, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	matched := make([]*entry[T], 0, len(c.items))
	for _, e := range c.items {
		if q.Field != "" {
			v, ok := c.field(e.item, q.Field)
			if !ok {
				return nil, fmt.Errorf("%w: %s", repository.ErrUnknownField, q.Field)
			}
			if v != q.Value {
				continue
			}
		}
		matched = append(matched, e)
	}

	if q.OrderBy != "" && q.OrderBy != model.FieldTimestamp {
		if _, ok := c.field(new(T), q.OrderBy); !ok {
			return nil, fmt.Errorf("%w: %s", repository.ErrUnknownField, q.OrderBy)
		}
	}

	// Insertion order breaks timestamp ties.
	sort.Slice(matched, func(i, j int) bool {
		a, b := matched[i], matched[j]
		less := a.seq < b.seq
		if q.OrderBy != "" {
			av, _ := c.field(a.item, q.OrderBy)
			bv, _ := c.field(b.item, q.OrderBy)
			if q.OrderBy == model.FieldTimestamp {
				ta, tb := c.base(a.item).CreatedAt, c.base(b.item).CreatedAt
				if !ta.Equal(tb) {
					less = ta.Before(tb)
				}
			} else if av != bv {
				less = av < bv
			}
		}
		if q.Direction == model.Descending {
			return !less
		}
		return less
	})

	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}

	out := make([]*T, 0, len(matched))
	for _, e := range matched {
		out = append(out, c.clone(e.item))
	}
	return out, nil
}
