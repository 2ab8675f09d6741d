package main

import (
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-preprocess/pkg/catalog"
	"github.com/askiada/go-preprocess/pkg/external"
	"github.com/askiada/go-preprocess/pkg/objectstore"
	"github.com/askiada/go-preprocess/pkg/pipeline"
	"github.com/askiada/go-preprocess/pkg/pipeline/drawer"
	"github.com/askiada/go-preprocess/pkg/preprocess"
	"github.com/askiada/go-preprocess/pkg/scheduler"
	"github.com/askiada/go-preprocess/pkg/stages"
)

const formatDOT = "dot"

func newGraphCmd(opts *options) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Print the task graph of the dataset as DOT, YAML or JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := opts.store(ctx)
			if err != nil {
				return err
			}
			req, err := opts.request(store)
			if err != nil {
				return err
			}

			// Nothing runs: collaborators only need to exist.
			deps := stages.Deps{
				Runner:  external.MatlabRunner{},
				Catalog: &catalog.Memory{},
				Objects: &objectstore.Memory{},
			}

			var pipeOpts []pipeline.Option
			if format == formatDOT {
				pipeOpts = append(pipeOpts, pipeline.WithPipelineOptions(drawer.PipelineDrawer(drawer.NewDOTDrawer(cmd.OutOrStdout()), nil)))
			}

			dag, _, err := preprocess.Load(ctx, store, req, deps, pipeOpts...)
			if err != nil {
				return err
			}

			switch format {
			case formatDOT:
				return dag.Finish()
			case scheduler.FormatYAML, scheduler.FormatJSON:
				return scheduler.WriteManifest(cmd.OutOrStdout(), dag, format)
			default:
				return errors.Wrap(scheduler.ErrUnknownFormat, format)
			}
		},
	}

	cmd.Flags().StringVar(&format, "format", formatDOT, "dot, yaml or json")

	return cmd
}
