package pipeline

import (
	"sort"
	"strconv"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/store"
	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

// EdgeKind types the edges of a DAG.
type EdgeKind string

const (
	// EdgeUpstream links a node to the node it waits for.
	EdgeUpstream EdgeKind = "upstream"

	edgeKindAttribute = "kind"
)

// Edge is a typed dependency between two nodes.
type Edge struct {
	From string
	To   string
	Kind EdgeKind
}

// DefaultArgs are applied by the scheduler to every node of the DAG.
type DefaultArgs struct {
	Owner          string
	Retries        int
	RetryDelay     time.Duration
	Email          []string
	EmailOnFailure bool
	EmailOnRetry   bool
}

// DAG is a directed acyclic graph of nodes.
type DAG struct {
	ID            string
	DefaultArgs   DefaultArgs
	MaxActiveRuns int

	graph graph.Graph[string, *Node]
	store store.CustomStore[string, *Node]
	index map[string]int
	opts  []model.PipelineOption
}

// Option configures a DAG.
type Option func(d *DAG)

// WithDefaultArgs sets the arguments applied to every node.
func WithDefaultArgs(args DefaultArgs) Option {
	return func(d *DAG) {
		d.DefaultArgs = args
	}
}

// WithMaxActiveRuns limits how many runs of the DAG a scheduler may start at once.
func WithMaxActiveRuns(n int) Option {
	return func(d *DAG) {
		d.MaxActiveRuns = n
	}
}

// WithPipelineOptions attaches observers such as a drawer or a measure.
func WithPipelineOptions(opts ...model.PipelineOption) Option {
	return func(d *DAG) {
		d.opts = append(d.opts, opts...)
	}
}

// New creates an empty DAG.
func New(id string, opts ...Option) (*DAG, error) {
	if id == "" {
		return nil, errors.New("dag id must not be empty")
	}

	st := store.NewMemoryStore[string, *Node]()
	dag := &DAG{
		ID:    id,
		store: st,
		graph: graph.NewWithStore(nodeHash, graph.Store[string, *Node](st), graph.Directed(), graph.Acyclic(), graph.PreventCycles()),
		index: make(map[string]int),
	}

	for _, opt := range opts {
		opt(dag)
	}

	for _, opt := range dag.opts {
		err := opt.New()
		if err != nil {
			return nil, errors.Wrap(err, "unable to apply pipeline option")
		}
	}

	return dag, nil
}

func nodeHash(n *Node) string {
	return n.ID
}

// AddNode adds node below upstream and returns its handle.
func (d *DAG) AddNode(node *Node, upstream Step) (Step, error) {
	if d == nil {
		return Step{}, ErrDAGMustBeSet
	}
	if node == nil {
		return Step{}, ErrNodeMustBeSet
	}
	if node.ID == "" {
		return Step{}, ErrEmptyNodeID
	}
	if node.Task == nil {
		return Step{}, errors.Wrap(ErrNilTask, node.ID)
	}

	parentInfo := model.StartStep
	if !upstream.IsRoot() {
		parent, err := d.Node(upstream.ID)
		if err != nil {
			return Step{}, errors.Wrapf(ErrUnknownUpstream, "%s below %s", node.ID, upstream.ID)
		}
		parentInfo = parent.Info()
	}

	node.upstream = upstream.ID

	err := d.graph.AddVertex(node,
		graph.VertexWeight(node.Priority),
		graph.VertexAttribute("pool", node.Pool),
		graph.VertexAttribute("timeout", node.Timeout.String()),
	)
	if err != nil {
		if errors.Is(err, graph.ErrVertexAlreadyExists) {
			return Step{}, errors.Wrap(ErrNodeExists, node.ID)
		}
		return Step{}, errors.Wrapf(err, "unable to add node %s", node.ID)
	}
	d.index[node.ID] = len(d.index)

	if !upstream.IsRoot() {
		err = d.graph.AddEdge(upstream.ID, node.ID, graph.EdgeAttribute(edgeKindAttribute, string(EdgeUpstream)))
		if err != nil {
			return Step{}, errors.Wrapf(err, "unable to link %s to %s", upstream.ID, node.ID)
		}
	}

	for _, opt := range d.opts {
		err := opt.PrepareStep(parentInfo, node.Info())
		if err != nil {
			return Step{}, errors.Wrap(err, "unable to run prepare step option")
		}
	}

	return node.Step(), nil
}

// SetPriority overrides the priority of an existing node.
func (d *DAG) SetPriority(id string, priority int) (Step, error) {
	node, err := d.Node(id)
	if err != nil {
		return Step{}, err
	}

	node.Priority = priority
	err = d.store.UpdateVertex(id, func(p *graph.VertexProperties) {
		p.Weight = priority
	})
	if err != nil {
		return Step{}, errors.Wrapf(err, "unable to update node %s", id)
	}

	for _, opt := range d.opts {
		err := opt.UpdateStep(node.Info())
		if err != nil {
			return Step{}, errors.Wrap(err, "unable to run update step option")
		}
	}

	return node.Step(), nil
}

// Node returns the node with the given id.
func (d *DAG) Node(id string) (*Node, error) {
	node, err := d.graph.Vertex(id)
	if err != nil {
		return nil, errors.Wrap(ErrUnknownNode, id)
	}

	return node, nil
}

// Len returns the number of nodes.
func (d *DAG) Len() int {
	return len(d.index)
}

// Nodes returns every node in topological order. Among nodes ready at the same time the
// highest priority comes first, then the earliest added.
func (d *DAG) Nodes() ([]*Node, error) {
	ids, err := graph.StableTopologicalSort(d.graph, func(a, b string) bool {
		na, _ := d.graph.Vertex(a)
		nb, _ := d.graph.Vertex(b)
		if na.Priority != nb.Priority {
			return na.Priority > nb.Priority
		}
		return d.index[a] < d.index[b]
	})
	if err != nil {
		return nil, errors.Wrap(err, "unable to sort nodes")
	}

	nodes := make([]*Node, 0, len(ids))
	for _, id := range ids {
		node, err := d.Node(id)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// IDs returns the node ids in insertion order.
func (d *DAG) IDs() []string {
	ids, _ := d.store.ListVertices()
	return ids
}

// Edges returns every edge, grouped by source in insertion order.
func (d *DAG) Edges() ([]Edge, error) {
	edges, err := d.graph.Edges()
	if err != nil {
		return nil, errors.Wrap(err, "unable to list edges")
	}

	out := make([]Edge, 0, len(edges))
	for _, edge := range edges {
		out = append(out, Edge{
			From: edge.Source,
			To:   edge.Target,
			Kind: EdgeKind(edge.Properties.Attributes[edgeKindAttribute]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return d.index[out[i].From] < d.index[out[j].From]
		}
		return d.index[out[i].To] < d.index[out[j].To]
	})

	return out, nil
}

// Downstream returns the ids of the nodes depending on id, in insertion order.
func (d *DAG) Downstream(id string) ([]string, error) {
	adjacency, err := d.graph.AdjacencyMap()
	if err != nil {
		return nil, errors.Wrap(err, "unable to get adjacency map")
	}

	children, ok := adjacency[id]
	if !ok {
		return nil, errors.Wrap(ErrUnknownNode, id)
	}

	out := make([]string, 0, len(children))
	for child := range children {
		out = append(out, child)
	}
	sort.Slice(out, func(i, j int) bool {
		return d.index[out[i]] < d.index[out[j]]
	})

	return out, nil
}

// Upstream returns the id of the node id depends on, empty for a first node.
func (d *DAG) Upstream(id string) (string, error) {
	node, err := d.Node(id)
	if err != nil {
		return "", err
	}

	return node.Upstream(), nil
}

// Terminal returns the most recently added node.
func (d *DAG) Terminal() (*Node, error) {
	ids := d.IDs()
	if len(ids) == 0 {
		return nil, errors.Wrap(ErrUnknownNode, "empty dag")
	}

	return d.Node(ids[len(ids)-1])
}

// Leaves returns the nodes without downstream, in insertion order.
func (d *DAG) Leaves() ([]*Node, error) {
	adjacency, err := d.graph.AdjacencyMap()
	if err != nil {
		return nil, errors.Wrap(err, "unable to get adjacency map")
	}

	var leaves []*Node
	for _, id := range d.IDs() {
		if len(adjacency[id]) > 0 {
			continue
		}
		node, err := d.Node(id)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, node)
	}

	return leaves, nil
}

// Graph exposes the underlying graph to renderers.
func (d *DAG) Graph() graph.Graph[string, *Node] {
	return d.graph
}

// Options returns the pipeline options attached to the DAG.
func (d *DAG) Options() []model.PipelineOption {
	return d.opts
}

// Finish runs the Finish hook of every pipeline option.
func (d *DAG) Finish() error {
	for _, opt := range d.opts {
		err := opt.Finish()
		if err != nil {
			return errors.Wrap(err, "unable to finish pipeline option")
		}
	}

	return nil
}

func (d *DAG) String() string {
	return d.ID + " (" + strconv.Itoa(d.Len()) + " nodes)"
}
