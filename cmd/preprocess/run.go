package main

import (
	"context"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/internal/pool"
	"github.com/askiada/go-preprocess/pkg/catalog"
	"github.com/askiada/go-preprocess/pkg/config"
	"github.com/askiada/go-preprocess/pkg/external"
	"github.com/askiada/go-preprocess/pkg/notify"
	"github.com/askiada/go-preprocess/pkg/objectstore"
	"github.com/askiada/go-preprocess/pkg/pipeline"
	"github.com/askiada/go-preprocess/pkg/pipeline/drawer"
	"github.com/askiada/go-preprocess/pkg/pipeline/measure"
	"github.com/askiada/go-preprocess/pkg/preprocess"
	"github.com/askiada/go-preprocess/pkg/scheduler"
	"github.com/askiada/go-preprocess/pkg/stages"
)

type runOptions struct {
	matlab  string
	pools   map[string]int64
	drawDOT string
}

func newRunCmd(opts *options) *cobra.Command {
	ro := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run SESSION_FOLDER...",
		Short: "Run the task graph on session folders, the folder name being the session id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := opts.store(ctx)
			if err != nil {
				return err
			}
			req, err := opts.request(store)
			if err != nil {
				return err
			}

			return runSessions(ctx, cmd, store, req, ro, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&ro.matlab, "matlab", "matlab", "matlab binary running the SPM functions")
	flags.StringToInt64Var(&ro.pools, "pool", map[string]int64{
		stages.PoolIOIntensive:        2,
		stages.PoolImagePreprocessing: 1,
	}, "slots per pool")
	flags.StringVar(&ro.drawDOT, "draw", "", "write the graph with measured timings to this DOT file")

	return cmd
}

func runSessions(ctx context.Context, cmd *cobra.Command, store *config.Store, req preprocess.Request, ro *runOptions, folders []string) error {
	plan, _ := preprocess.Plan(req.Pipelines)
	section := req.Section
	if section == "" {
		section = req.Dataset
	}

	s, err := stages.LoadSettings(store, section, plan)
	if err != nil {
		return err
	}
	s.Dataset = req.Dataset

	deps, closeDeps, err := newDeps(ctx, s, ro)
	if err != nil {
		return err
	}
	defer closeDeps()

	msr := measure.NewDefaultMeasure()
	pipeOpts := []pipeline.Option{pipeline.WithPipelineOptions(measure.PipelineMeasure(msr))}
	if ro.drawDOT != "" {
		pipeOpts = append(pipeOpts, pipeline.WithPipelineOptions(drawer.PipelineDrawer(drawer.NewFileDrawer(ro.drawDOT), msr)))
	}

	dag, err := preprocess.Build(ctx, req, s, deps, pipeOpts...)
	if err != nil {
		return err
	}

	sessions := make([]pipeline.Session, 0, len(folders))
	for _, folder := range folders {
		abs, err := filepath.Abs(folder)
		if err != nil {
			return errors.Wrapf(err, "unable to resolve %s", folder)
		}
		sessions = append(sessions, pipeline.Session{ID: filepath.Base(abs), Folder: abs})
	}

	local := scheduler.NewLocal(scheduler.WithPools(pool.New(ro.pools)), scheduler.WithNotifier(notify.Log{}))
	reports, runErr := scheduler.RunSessions(ctx, local, dag, sessions)

	err = dag.Finish()
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	err = enc.Encode(reports)
	if err != nil {
		return errors.Wrap(err, "unable to encode reports")
	}
	err = enc.Close()
	if err != nil {
		return errors.Wrap(err, "unable to flush reports")
	}

	return runErr
}

// newDeps connects to the catalog and the object store when the stages need them.
func newDeps(ctx context.Context, s stages.Settings, ro *runOptions) (stages.Deps, func(), error) {
	logger := ctxlog.FromContext(ctx)
	deps := stages.Deps{Runner: external.MatlabRunner{Binary: ro.matlab}}
	closeFn := func() {}

	if s.CatalogURL != "" {
		db, err := catalog.Open(ctx, catalog.Config{URL: s.CatalogURL})
		if err != nil {
			return stages.Deps{}, closeFn, err
		}
		closeFn = func() {
			if err := db.Close(); err != nil {
				logger.Warn("unable to close catalog database", "error", err)
			}
		}

		pg := catalog.NewPostgres(db)
		err = pg.Migrate(ctx)
		if err != nil {
			closeFn()
			return stages.Deps{}, func() {}, err
		}
		deps.Catalog = pg
	}

	if s.Includes(stages.ExportFeatures) {
		objects, err := objectstore.New(s.Features)
		if err != nil {
			closeFn()
			return stages.Deps{}, func() {}, err
		}
		err = objects.EnsureBucket(ctx)
		if err != nil {
			closeFn()
			return stages.Deps{}, func() {}, err
		}
		deps.Objects = objects
	}

	return deps, closeFn, nil
}
