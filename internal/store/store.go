// Package store provides the in-memory graph.Store backing task graphs.
//
// It differs from the store bundled with github.com/dominikbraun/graph in two ways: vertices
// are listed in insertion order so renderers and manifests are deterministic, and vertex
// properties can be updated in place after a vertex was added.
package store

import (
	"sync"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
)

// CustomStore is a graph.Store whose vertex properties can be updated.
type CustomStore[K comparable, T any] interface {
	graph.Store[K, T]
	UpdateVertex(k K, options ...func(*graph.VertexProperties)) error
}

type vertex[T any] struct {
	value T
	props graph.VertexProperties
}

// MemoryStore keeps vertices and edges in maps guarded by a single lock.
type MemoryStore[K comparable, T any] struct {
	mu       sync.RWMutex
	order    []K
	vertices map[K]*vertex[T]
	edges    map[K]map[K]graph.Edge[K] // source -> target -> edge
	preds    map[K]map[K]struct{}      // target -> sources
}

// NewMemoryStore creates an empty store.
func NewMemoryStore[K comparable, T any]() *MemoryStore[K, T] {
	return &MemoryStore[K, T]{
		vertices: make(map[K]*vertex[T]),
		edges:    make(map[K]map[K]graph.Edge[K]),
		preds:    make(map[K]map[K]struct{}),
	}
}

func (s *MemoryStore[K, T]) AddVertex(k K, t T, p graph.VertexProperties) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.vertices[k]; exists {
		return graph.ErrVertexAlreadyExists
	}
	if p.Attributes == nil {
		p.Attributes = make(map[string]string)
	}

	s.vertices[k] = &vertex[T]{value: t, props: p}
	s.order = append(s.order, k)

	return nil
}

// ListVertices returns the vertex hashes in insertion order.
func (s *MemoryStore[K, T]) ListVertices() ([]K, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return append([]K(nil), s.order...), nil
}

func (s *MemoryStore[K, T]) VertexCount() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.order), nil
}

func (s *MemoryStore[K, T]) Vertex(k K) (T, graph.VertexProperties, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, found := s.vertices[k]
	if !found {
		var zero T
		return zero, graph.VertexProperties{}, graph.ErrVertexNotFound
	}

	return v.value, v.props, nil
}

// UpdateVertex applies options to the stored properties of k.
func (s *MemoryStore[K, T]) UpdateVertex(k K, options ...func(*graph.VertexProperties)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, found := s.vertices[k]
	if !found {
		return graph.ErrVertexNotFound
	}
	for _, apply := range options {
		apply(&v.props)
	}

	return nil
}

func (s *MemoryStore[K, T]) RemoveVertex(k K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.vertices[k]; !found {
		return graph.ErrVertexNotFound
	}
	if len(s.edges[k]) > 0 || len(s.preds[k]) > 0 {
		return graph.ErrVertexHasEdges
	}

	delete(s.vertices, k)
	delete(s.edges, k)
	delete(s.preds, k)
	for i, hash := range s.order {
		if hash == k {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	return nil
}

func (s *MemoryStore[K, T]) AddEdge(source, target K, edge graph.Edge[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.link(source, target, edge)

	return nil
}

func (s *MemoryStore[K, T]) UpdateEdge(source, target K, edge graph.Edge[K]) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, found := s.edges[source][target]; !found {
		return graph.ErrEdgeNotFound
	}
	s.link(source, target, edge)

	return nil
}

func (s *MemoryStore[K, T]) link(source, target K, edge graph.Edge[K]) {
	if s.edges[source] == nil {
		s.edges[source] = make(map[K]graph.Edge[K])
	}
	if s.preds[target] == nil {
		s.preds[target] = make(map[K]struct{})
	}
	s.edges[source][target] = edge
	s.preds[target][source] = struct{}{}
}

func (s *MemoryStore[K, T]) RemoveEdge(source, target K) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.edges[source], target)
	delete(s.preds[target], source)

	return nil
}

func (s *MemoryStore[K, T]) Edge(source, target K) (graph.Edge[K], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	edge, found := s.edges[source][target]
	if !found {
		return graph.Edge[K]{}, graph.ErrEdgeNotFound
	}

	return edge, nil
}

// ListEdges returns edges grouped by source, sources and targets in vertex insertion order.
func (s *MemoryStore[K, T]) ListEdges() ([]graph.Edge[K], error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]graph.Edge[K], 0)
	for _, source := range s.order {
		targets := s.edges[source]
		if len(targets) == 0 {
			continue
		}
		for _, target := range s.order {
			if edge, found := targets[target]; found {
				out = append(out, edge)
			}
		}
	}

	return out, nil
}

// CreatesCycle reports whether an edge source -> target would close a cycle, that is whether
// target already reaches source through predecessors.
func (s *MemoryStore[K, T]) CreatesCycle(source, target K) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, found := s.vertices[source]; !found {
		return false, errors.Wrapf(graph.ErrVertexNotFound, "source %v", source)
	}
	if _, found := s.vertices[target]; !found {
		return false, errors.Wrapf(graph.ErrVertexNotFound, "target %v", target)
	}
	if source == target {
		return true, nil
	}

	seen := map[K]bool{source: true}
	queue := []K{source}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for pred := range s.preds[current] {
			if pred == target {
				return true, nil
			}
			if !seen[pred] {
				seen[pred] = true
				queue = append(queue, pred)
			}
		}
	}

	return false, nil
}

var _ CustomStore[string, string] = (*MemoryStore[string, string])(nil)
