// Package pool limits how many nodes of a named pool run at the same time.
package pool

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"
)

// Pools hands out slots per pool name. Pools without a limit never block.
type Pools struct {
	slots map[string]*semaphore.Weighted
	sizes map[string]int64
}

// New creates pools from name -> number of slots. Non-positive sizes mean unlimited.
func New(sizes map[string]int64) *Pools {
	p := &Pools{
		slots: make(map[string]*semaphore.Weighted, len(sizes)),
		sizes: make(map[string]int64, len(sizes)),
	}
	for name, size := range sizes {
		if size <= 0 {
			continue
		}
		p.slots[name] = semaphore.NewWeighted(size)
		p.sizes[name] = size
	}

	return p
}

// Acquire blocks until a slot of name is free and returns the function releasing it.
func (p *Pools) Acquire(ctx context.Context, name string) (func(), error) {
	if p == nil {
		return func() {}, nil
	}

	sem, ok := p.slots[name]
	if !ok {
		return func() {}, nil
	}

	err := sem.Acquire(ctx, 1)
	if err != nil {
		return nil, errors.Wrapf(err, "unable to acquire a slot in pool %s", name)
	}

	return func() { sem.Release(1) }, nil
}

// Size returns the number of slots of name, 0 when unlimited.
func (p *Pools) Size(name string) int64 {
	if p == nil {
		return 0
	}

	return p.sizes[name]
}

// Names returns the limited pools in lexical order.
func (p *Pools) Names() []string {
	if p == nil {
		return nil
	}

	names := make([]string, 0, len(p.sizes))
	for name := range p.sizes {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}
