package store_test

import (
	"testing"

	"github.com/dominikbraun/graph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-preprocess/internal/store"
)

func TestInsertionOrder(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore[string, int]()
	for i, id := range []string{"copy_to_local", "dicom_to_nifti_pipeline", "cleanup_local"} {
		require.NoError(t, s.AddVertex(id, i, graph.VertexProperties{}))
	}
	assert.ErrorIs(t, s.AddVertex("copy_to_local", 9, graph.VertexProperties{}), graph.ErrVertexAlreadyExists)

	ids, err := s.ListVertices()
	require.NoError(t, err)
	assert.Equal(t, []string{"copy_to_local", "dicom_to_nifti_pipeline", "cleanup_local"}, ids)

	require.NoError(t, s.AddEdge("dicom_to_nifti_pipeline", "cleanup_local", graph.Edge[string]{Source: "dicom_to_nifti_pipeline", Target: "cleanup_local"}))
	require.NoError(t, s.AddEdge("copy_to_local", "dicom_to_nifti_pipeline", graph.Edge[string]{Source: "copy_to_local", Target: "dicom_to_nifti_pipeline"}))

	edges, err := s.ListEdges()
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, "copy_to_local", edges[0].Source)
	assert.Equal(t, "dicom_to_nifti_pipeline", edges[1].Source)
}

func TestUpdateVertex(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore[string, string]()
	require.NoError(t, s.AddVertex("cleanup_local", "cleanup", graph.VertexProperties{Weight: 30}))

	require.NoError(t, s.UpdateVertex("cleanup_local", func(p *graph.VertexProperties) { p.Weight = 10 }))
	_, props, err := s.Vertex("cleanup_local")
	require.NoError(t, err)
	assert.Equal(t, 10, props.Weight)
	assert.NotNil(t, props.Attributes)

	assert.ErrorIs(t, s.UpdateVertex("missing"), graph.ErrVertexNotFound)
}

func TestEdgesAndRemoval(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore[string, string]()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.AddVertex(id, id, graph.VertexProperties{}))
	}

	_, err := s.Edge("a", "b")
	assert.ErrorIs(t, err, graph.ErrEdgeNotFound)
	assert.ErrorIs(t, s.UpdateEdge("a", "b", graph.Edge[string]{}), graph.ErrEdgeNotFound)

	require.NoError(t, s.AddEdge("a", "b", graph.Edge[string]{Source: "a", Target: "b"}))
	require.NoError(t, s.UpdateEdge("a", "b", graph.Edge[string]{Source: "a", Target: "b", Properties: graph.EdgeProperties{Weight: 2}}))
	edge, err := s.Edge("a", "b")
	require.NoError(t, err)
	assert.Equal(t, 2, edge.Properties.Weight)

	assert.ErrorIs(t, s.RemoveVertex("a"), graph.ErrVertexHasEdges)
	require.NoError(t, s.RemoveEdge("a", "b"))
	require.NoError(t, s.RemoveVertex("a"))
	assert.ErrorIs(t, s.RemoveVertex("a"), graph.ErrVertexNotFound)

	n, err := s.VertexCount()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestCreatesCycle(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore[string, string]()
	for _, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, s.AddVertex(id, id, graph.VertexProperties{}))
	}
	require.NoError(t, s.AddEdge("a", "b", graph.Edge[string]{Source: "a", Target: "b"}))
	require.NoError(t, s.AddEdge("b", "c", graph.Edge[string]{Source: "b", Target: "c"}))

	tcs := map[string]struct {
		source, target string
		want           bool
	}{
		"closing edge":   {source: "c", target: "a", want: true},
		"self loop":      {source: "b", target: "b", want: true},
		"forward edge":   {source: "a", target: "c", want: false},
		"unrelated edge": {source: "d", target: "a", want: false},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := s.CreatesCycle(tc.source, tc.target)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}

	_, err := s.CreatesCycle("missing", "a")
	assert.ErrorIs(t, err, graph.ErrVertexNotFound)
}

func TestGraphWithStore(t *testing.T) {
	t.Parallel()

	g := graph.NewWithStore(func(s string) string { return s }, graph.Store[string, string](store.NewMemoryStore[string, string]()),
		graph.Directed(), graph.Acyclic(), graph.PreventCycles())
	for _, id := range []string{"a", "b"} {
		require.NoError(t, g.AddVertex(id))
	}
	require.NoError(t, g.AddEdge("a", "b"))
	assert.ErrorIs(t, g.AddEdge("b", "a"), graph.ErrEdgeCreatesCycle)
}
