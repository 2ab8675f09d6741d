package main

import (
	"context"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/pkg/config"
	"github.com/askiada/go-preprocess/pkg/preprocess"
)

const envPrefix = "PREPROCESS"

// options are the flags shared by every command.
type options struct {
	configPath string
	dataset    string
	section    string
	pipelines  []string
	emails     []string
	logLevel   string
	logFormat  string
}

func newRootCmd(outW, logW io.Writer) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "preprocess",
		Short:         "Assemble and run the image preprocessing graph of a dataset",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			logger := ctxlog.New(opts.logLevel, opts.logFormat, logW)
			cmd.SetContext(ctxlog.WithLogger(cmd.Context(), logger))
		},
	}
	cmd.SetOut(outW)
	cmd.SetErr(logW)

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "INI configuration file")
	flags.StringVar(&opts.dataset, "dataset", "", "dataset name")
	flags.StringVar(&opts.section, "section", "", "configuration section of the dataset, defaults to the dataset name")
	flags.StringSliceVar(&opts.pipelines, "pipelines", nil, "requested stages, e.g. copy_to_local,mpm_maps")
	flags.StringSliceVar(&opts.emails, "email-errors-to", nil, "addresses notified on failure and retry")
	flags.StringVar(&opts.logLevel, "log-level", "info", "debug, info, warn or error")
	flags.StringVar(&opts.logFormat, "log-format", "text", "text or json")

	cmd.AddCommand(newGraphCmd(opts), newRunCmd(opts), newSelectCmd())

	return cmd
}

// store loads the configuration file, then applies PREPROCESS_<SECTION>__<KEY> variables.
func (o *options) store(ctx context.Context) (*config.Store, error) {
	store := config.New()
	if o.configPath != "" {
		var err error
		store, err = config.Load(o.configPath)
		if err != nil {
			return nil, err
		}
	}

	n := store.ApplyEnv(envPrefix)
	ctxlog.FromContext(ctx).Debug("configuration loaded", "file", o.configPath, "env_overrides", n)

	return store, nil
}

// request builds the assembler request. MAX_ACTIVE_RUNS is read from the dataset section.
func (o *options) request(store *config.Store) (preprocess.Request, error) {
	if o.dataset == "" {
		return preprocess.Request{}, errors.New("--dataset is required")
	}

	req := preprocess.Request{
		Dataset:       o.dataset,
		Section:       o.section,
		Pipelines:     splitNames(o.pipelines),
		EmailErrorsTo: o.emails,
	}

	section := req.Section
	if section == "" {
		section = req.Dataset
	}
	if store.Has(section, "MAX_ACTIVE_RUNS") {
		n, err := store.Int(section, "MAX_ACTIVE_RUNS")
		if err != nil {
			return preprocess.Request{}, err
		}
		req.MaxActiveRuns = n
	}

	return req, nil
}

func splitNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		if name != "" {
			out = append(out, name)
		}
	}

	return out
}
