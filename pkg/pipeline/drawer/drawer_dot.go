package drawer

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"text/template"
	"time"

	"github.com/dominikbraun/graph"
	"github.com/pkg/errors"
	"gopkg.in/go-playground/colors.v1" //nolint

	"github.com/askiada/go-preprocess/internal/store"
	"github.com/askiada/go-preprocess/pkg/pipeline/measure"
	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

// PoolColours are the fill colours of the nodes of each pool, as RGB triples.
var PoolColours = map[string][3]uint8{
	"io_intensive":        {173, 216, 230},
	"image_preprocessing": {255, 218, 185},
}

// DOTDrawer renders the task graph in the graphviz DOT language.
type DOTDrawer struct {
	graph    graph.Graph[string, string]
	order    []string
	out      io.Writer
	fileName string
}

// NewDOTDrawer creates a drawer writing to out.
func NewDOTDrawer(out io.Writer) *DOTDrawer {
	return &DOTDrawer{
		out:   out,
		graph: graph.NewWithStore(graph.StringHash, graph.Store[string, string](store.NewMemoryStore[string, string]()), graph.Directed()),
	}
}

// NewFileDrawer creates a drawer writing to fileName.
func NewFileDrawer(fileName string) *DOTDrawer {
	d := NewDOTDrawer(nil)
	d.fileName = fileName

	return d
}

// AddStep adds a step to the graph.
func (d *DOTDrawer) AddStep(step *model.StepInfo) error {
	err := d.graph.AddVertex(step.Name, graph.VertexWeight(step.Priority))
	if err != nil {
		return errors.Wrap(err, "unable to add vertex")
	}

	d.order = append(d.order, step.Name)

	return d.UpdateStep(step)
}

// UpdateStep sets the shape, colour and label of a step.
func (d *DOTDrawer) UpdateStep(step *model.StepInfo) error {
	_, properties, err := d.graph.VertexWithProperties(step.Name)
	if err != nil {
		return errors.Wrapf(err, "unable to get %s vertex properties", step.Name)
	}

	attrs := properties.Attributes
	switch step.Type {
	case model.RootStepType:
		attrs["shape"] = "circle"
		return nil
	case model.NotifyStepType:
		attrs["shape"] = "ellipse"
	case model.CleanupType:
		attrs["shape"] = "note"
	default:
		attrs["shape"] = "box"
	}

	if rgb, ok := PoolColours[step.Pool]; ok {
		colour, err := colors.RGB(rgb[0], rgb[1], rgb[2])
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}
		attrs["style"] = "filled"
		attrs["fillcolor"] = colour.ToHEX().String()
	}

	if step.Timeout > 0 {
		attrs["tooltip"] = "timeout " + step.Timeout.String()
	}
	attrs["xlabel"] = "priority " + strconv.Itoa(step.Priority)

	return nil
}

// AddLink adds a link between parent and child steps.
func (d *DOTDrawer) AddLink(parentName, childName string) error {
	err := d.graph.AddEdge(parentName, childName)
	if err != nil {
		return errors.Wrapf(err, "unable to add edge from %s to %s", parentName, childName)
	}

	return nil
}

// SetTotalTime labels the step with a total duration.
func (d *DOTDrawer) SetTotalTime(stepName string, total time.Duration) error {
	_, properties, err := d.graph.VertexWithProperties(stepName)
	if err != nil {
		return errors.Wrapf(err, "unable to get %s vertex properties", stepName)
	}

	properties.Attributes["xlabel"] = total.String()

	return nil
}

const maxRGB = 240

// AddMeasure colours the border of every measured step from blue (fastest) to red (slowest).
func (d *DOTDrawer) AddMeasure(msr measure.Measure) error {
	metrics := msr.AllMetrics()

	var minValue, maxValue time.Duration
	for name, mt := range metrics {
		if name == model.StartStep.Name || name == model.EndStep.Name {
			continue
		}
		avg := mt.AVGDuration()
		if avg == 0 {
			continue
		}
		if minValue == 0 || avg < minValue {
			minValue = avg
		}
		if avg > maxValue {
			maxValue = avg
		}
	}

	for _, name := range d.order {
		mt, ok := metrics[name]
		if !ok || name == model.StartStep.Name || name == model.EndStep.Name {
			continue
		}

		avg := mt.AVGDuration()
		if avg == 0 {
			continue
		}

		fraction := 1.0
		if maxValue > minValue {
			fraction = float64(avg-minValue) / float64(maxValue-minValue)
		}

		colour, err := colors.RGB(uint8(maxRGB*fraction), 0, uint8(maxRGB-maxRGB*fraction)) //nolint
		if err != nil {
			return errors.Wrap(err, "unable to get colour")
		}

		_, properties, err := d.graph.VertexWithProperties(name)
		if err != nil {
			return errors.Wrap(err, "unable to get vertex properties")
		}

		properties.Attributes["color"] = colour.ToHEX().String()
		properties.Attributes["penwidth"] = "3"
		properties.Attributes["xlabel"] += fmt.Sprintf(", avg: %s, attempts: %d", avg, mt.Attempts())
	}

	return nil
}

// Draw links every dangling step to the end step and writes the graph.
func (d *DOTDrawer) Draw() error {
	err := d.linkEnd()
	if err != nil {
		return err
	}

	out := d.out
	if d.fileName != "" {
		file, err := os.Create(d.fileName)
		if err != nil {
			return errors.Wrapf(err, "unable to create file %s", d.fileName)
		}
		defer file.Close()
		out = file
	}

	err = dot(d.graph, d.order, out)
	if err != nil {
		return errors.Wrapf(err, "unable to write dot graph")
	}

	return nil
}

func (d *DOTDrawer) linkEnd() error {
	end := model.EndStep.Name
	if _, err := d.graph.Vertex(end); err != nil {
		return nil
	}

	adjacencyMap, err := d.graph.AdjacencyMap()
	if err != nil {
		return errors.Wrap(err, "unable to get adjacency map")
	}

	for _, name := range d.order {
		if name == end || name == model.StartStep.Name || len(adjacencyMap[name]) > 0 {
			continue
		}
		err := d.graph.AddEdge(name, end, graph.EdgeAttribute("style", "dashed"))
		if err != nil && !errors.Is(err, graph.ErrEdgeAlreadyExists) {
			return errors.Wrapf(err, "unable to link %s to %s", name, end)
		}
	}

	return nil
}

//nolint:lll //this is a template
const dotTemplate = `strict {{.GraphType}} {
	{{range $k, $v := .Attributes}}
		{{$k}}="{{$v}}";
	{{end}}
	{{range $s := .Statements}}
		"{{.Source}}" {{if .Target}}{{$.EdgeOperator}} "{{.Target}}" [ {{range $k, $v := .EdgeAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.EdgeWeight}} ]{{else}}[ {{range $k, $v := .HTMLAttributes}}{{$k}}={{$v}}, {{end}} {{range $k, $v := .SourceAttributes}}{{$k}}="{{$v}}", {{end}} weight={{.SourceWeight}} ]{{end}};
	{{end}}
	}
	`

type description struct {
	GraphType    string
	Attributes   map[string]string
	EdgeOperator string
	Statements   []statement
}

type statement struct {
	Source           interface{}
	Target           interface{}
	SourceAttributes map[string]string
	HTMLAttributes   map[string]string
	EdgeAttributes   map[string]string
	SourceWeight     int
	EdgeWeight       int
}

func dot[K comparable, T any](g graph.Graph[K, T], order []K, wrt io.Writer, options ...func(*description)) error {
	desc, err := generateDOT(g, order, options...)
	if err != nil {
		return fmt.Errorf("failed to generate DOT description: %w", err)
	}

	return renderDOT(wrt, desc)
}

// GraphAttribute is a functional option for the DOT rendering.
func GraphAttribute(key, value string) func(*description) {
	return func(d *description) {
		d.Attributes[key] = value
	}
}

// generateDOT walks vertices and their targets in order so the output is stable.
func generateDOT[K comparable, T any](gra graph.Graph[K, T], order []K, options ...func(*description)) (description, error) {
	desc := description{
		GraphType:    "graph",
		Attributes:   make(map[string]string),
		EdgeOperator: "--",
		Statements:   make([]statement, 0),
	}

	for _, option := range options {
		option(&desc)
	}

	if gra.Traits().IsDirected {
		desc.GraphType = "digraph"
		desc.EdgeOperator = "->"
	}

	adjacencyMap, err := gra.AdjacencyMap()
	if err != nil {
		return desc, errors.Wrap(err, "unable to get adjacency map")
	}

	for _, vertex := range order {
		_, sourceProperties, err := gra.VertexWithProperties(vertex)
		if err != nil {
			return desc, errors.Wrap(err, "unable to get vertex properties")
		}

		attributes := make(map[string]string, len(sourceProperties.Attributes))
		htmlAttributes := make(map[string]string)
		for k, v := range sourceProperties.Attributes {
			if k == "xlabel" {
				htmlAttributes["label"] = fmt.Sprintf(`<%+v <BR /> <FONT POINT-SIZE="12">%s</FONT>>`, vertex, v)
				continue
			}
			attributes[k] = v
		}

		desc.Statements = append(desc.Statements, statement{
			Source:           vertex,
			SourceWeight:     sourceProperties.Weight,
			SourceAttributes: attributes,
			HTMLAttributes:   htmlAttributes,
		})

		adjacencies := adjacencyMap[vertex]
		for _, adjacency := range order {
			edge, ok := adjacencies[adjacency]
			if !ok {
				continue
			}
			desc.Statements = append(desc.Statements, statement{
				Source:         vertex,
				Target:         adjacency,
				EdgeWeight:     edge.Properties.Weight,
				EdgeAttributes: edge.Properties.Attributes,
			})
		}
	}

	return desc, nil
}

func renderDOT(wrt io.Writer, desc description) error {
	tpl, err := template.New("dotTemplate").Parse(dotTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse template: %w", err)
	}

	err = tpl.Execute(wrt, desc)
	if err != nil {
		return errors.Wrap(err, "unable to execute template")
	}

	return nil
}

var _ Drawer = (*DOTDrawer)(nil)
