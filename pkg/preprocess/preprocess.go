// Package preprocess assembles the task graph of a dataset from the list of requested
// stage names.
//
// The graph is a chain following a fixed stage order. Two gates shape it: the session
// is either copied to a local folder or used in place, and the DICOM to Nifti
// conversion runs when it is requested or when a requested stage needs it. When both
// the copy and the conversion are part of the graph, a cleanup node hangs off the
// conversion node with the priority of the copy node.
package preprocess

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/pkg/config"
	"github.com/askiada/go-preprocess/pkg/pipeline"
	"github.com/askiada/go-preprocess/pkg/stages"
)

const (
	dagSuffix = "_pre_process_images"

	defaultOwner      = "airflow"
	defaultRetries    = 1
	defaultRetryDelay = 120 * time.Second
)

// Stage groups, in execution order.
var (
	SharedPreparation = []string{stages.CopyToLocal}
	DicomPreparation  = []string{stages.ImagesSelection, stages.DicomSelectT1, stages.DicomToNifti}
	Preprocessing     = []string{stages.MPMMaps, stages.NeuroMorphometricAtlas}
	Finalisation      = []string{stages.ExportFeatures, stages.CatalogToI2B2}
)

// StagesRequiringConversion need the Nifti files produced by dicom_to_nifti.
var StagesRequiringConversion = []string{stages.MPMMaps, stages.NeuroMorphometricAtlas}

// Request describes the graph of one dataset.
type Request struct {
	Dataset string
	// Section is the configuration section of the dataset. Defaults to Dataset.
	Section string
	// Pipelines lists the requested stage names, in any order.
	Pipelines     []string
	EmailErrorsTo []string
	MaxActiveRuns int
}

func (r Request) section() string {
	if r.Section != "" {
		return r.Section
	}

	return r.Dataset
}

// DAGID returns the id of the graph of dataset.
func DAGID(dataset string) string {
	return strings.ReplaceAll(strings.ToLower(dataset), " ", "_") + dagSuffix
}

// Plan returns the stages built for requested, in execution order, and the requested
// names that are not part of any group.
func Plan(requested []string) (plan, ignored []string) {
	want := make(map[string]bool, len(requested))
	for _, name := range requested {
		want[name] = true
	}

	known := make(map[string]bool)
	for _, group := range [][]string{SharedPreparation, DicomPreparation, Preprocessing, Finalisation} {
		for _, name := range group {
			known[name] = true
		}
	}
	for _, name := range requested {
		if !known[name] {
			ignored = append(ignored, name)
		}
	}

	copyToLocal := want[stages.CopyToLocal]
	conversion := want[stages.DicomToNifti]
	for _, name := range StagesRequiringConversion {
		conversion = conversion || want[name]
	}

	plan = []string{stages.CheckLocalFreeSpace, stages.PreparePipeline}
	if copyToLocal {
		plan = append(plan, stages.CopyToLocal)
	} else {
		plan = append(plan, stages.RegisterLocal)
	}

	for _, name := range DicomPreparation {
		switch {
		case name == stages.DicomToNifti && conversion:
			plan = append(plan, stages.DicomToNifti)
			if copyToLocal {
				plan = append(plan, stages.CleanupLocal)
			}
		case want[name]:
			plan = append(plan, name)
		}
	}

	for _, group := range [][]string{Preprocessing, Finalisation} {
		for _, name := range group {
			if want[name] {
				plan = append(plan, name)
			}
		}
	}

	return append(plan, stages.NotifySuccess), ignored
}

// Build assembles the graph of req from resolved settings. Settings must have been
// loaded for the stages returned by Plan.
func Build(ctx context.Context, req Request, s stages.Settings, deps stages.Deps, opts ...pipeline.Option) (*pipeline.DAG, error) {
	if req.Dataset == "" {
		return nil, errors.New("dataset is required")
	}

	plan, ignored := Plan(req.Pipelines)
	if len(ignored) > 0 {
		ctxlog.FromContext(ctx).Debug("ignoring unknown stages", "dataset", req.Dataset, "stages", ignored)
	}

	maxActiveRuns := req.MaxActiveRuns
	if maxActiveRuns <= 0 {
		maxActiveRuns = 1
	}

	opts = append([]pipeline.Option{
		pipeline.WithDefaultArgs(pipeline.DefaultArgs{
			Owner:          defaultOwner,
			Retries:        defaultRetries,
			RetryDelay:     defaultRetryDelay,
			Email:          req.EmailErrorsTo,
			EmailOnFailure: true,
			EmailOnRetry:   true,
		}),
		pipeline.WithMaxActiveRuns(maxActiveRuns),
	}, opts...)

	d, err := pipeline.New(DAGID(req.Dataset), opts...)
	if err != nil {
		return nil, err
	}

	var (
		upstream = pipeline.Root
		copyStep pipeline.Step
		convStep pipeline.Step
	)
	for _, name := range plan {
		if name == stages.CleanupLocal {
			cleanup, err := stages.Build(name, d, convStep, s, deps)
			if err != nil {
				return nil, err
			}
			// The cleanup node runs with the priority of the copy node.
			_, err = d.SetPriority(cleanup.ID, copyStep.Priority)
			if err != nil {
				return nil, err
			}
			continue
		}

		step, err := stages.Build(name, d, upstream, s, deps)
		if err != nil {
			return nil, err
		}

		switch name {
		case stages.CopyToLocal:
			copyStep = step
		case stages.DicomToNifti:
			convStep = step
		}
		upstream = step
	}

	ctxlog.FromContext(ctx).Info("dag assembled", "dag", d.ID, "nodes", d.Len())

	return d, nil
}

// Load resolves the settings of req from store and assembles its graph.
func Load(ctx context.Context, store *config.Store, req Request, deps stages.Deps, opts ...pipeline.Option) (*pipeline.DAG, stages.Settings, error) {
	plan, _ := Plan(req.Pipelines)

	s, err := stages.LoadSettings(store, req.section(), plan)
	if err != nil {
		return nil, stages.Settings{}, errors.Wrapf(err, "unable to load settings of %s", req.Dataset)
	}
	if req.Dataset != "" {
		s.Dataset = req.Dataset
	}

	d, err := Build(ctx, req, s, deps, opts...)
	if err != nil {
		return nil, stages.Settings{}, err
	}

	return d, s, nil
}
