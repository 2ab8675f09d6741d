package stages

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/internal/fsutil"
	"github.com/askiada/go-preprocess/pkg/catalog"
	"github.com/askiada/go-preprocess/pkg/objectstore"
	"github.com/askiada/go-preprocess/pkg/pipeline"
)

// BuildExportFeatures uploads the feature tables of the session and registers them in the
// catalog with their object key.
func BuildExportFeatures(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error) {
	err := requireDep(ExportFeatures, deps.Objects != nil, "an object store")
	if err != nil {
		return pipeline.Step{}, err
	}
	err = requireDep(ExportFeatures, deps.Catalog != nil, "a catalog")
	if err != nil {
		return pipeline.Step{}, err
	}

	format := s.Atlas.TableFormat
	if format == "" {
		format = defaultTableFormat
	}
	ext := "." + strings.TrimPrefix(format, ".")

	doc := "# Export features\n\n" +
		"Uploads the __" + ext + "__ feature tables of the session to the bucket __" + s.Features.Bucket + "__ " +
		"and registers them in the data catalog.\n"

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		empty, err := fsutil.IsEmptyDir(in.Folder)
		if err != nil {
			return pipeline.Output{}, err
		}
		if empty {
			return pipeline.Output{}, pipeline.Skip("no feature table in " + in.Folder)
		}

		files, err := fsutil.Files(in.Folder)
		if err != nil {
			return pipeline.Output{}, err
		}

		logger := ctxlog.FromContext(ctx)
		exported := 0
		for _, file := range files {
			if !strings.EqualFold(filepath.Ext(file), ext) {
				continue
			}

			key, err := deps.Objects.Upload(ctx, objectstore.ObjectKey(s.Dataset, in.Session.ID, ExportFeatures, file), file)
			if err != nil {
				return pipeline.Output{}, err
			}

			err = registerFile(ctx, deps.Catalog, in, ExportFeatures, file, key)
			if err != nil {
				return pipeline.Output{}, err
			}

			logger.Debug("feature table exported", "file", file, "key", key)
			exported++
		}

		if exported == 0 {
			return pipeline.Output{}, pipeline.Skip("no " + ext + " feature table in " + in.Folder)
		}

		logger.Info("features exported", "files", exported, "bucket", s.Features.Bucket)

		return pipeline.Output{Folder: in.Folder}, nil
	})

	return addNode(d, upstream, s, ExportFeatures, doc, map[string]string{
		"table_format": format,
		"bucket":       s.Features.Bucket,
	}, task)
}

// BuildCatalogToI2B2 registers every file the run produced for the session.
func BuildCatalogToI2B2(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error) {
	err := requireDep(CatalogToI2B2, deps.Catalog != nil, "a catalog")
	if err != nil {
		return pipeline.Step{}, err
	}

	doc := "# Catalog to I2B2\n\n" +
		"Registers the files produced for the session in the data catalog.\n"

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		registered := 0
		for _, sf := range s.stageFolders() {
			folder := sessionFolder(sf.folder, in)
			empty, err := fsutil.IsEmptyDir(folder)
			if err != nil {
				return pipeline.Output{}, err
			}
			if empty {
				continue
			}

			files, err := fsutil.Files(folder)
			if err != nil {
				return pipeline.Output{}, err
			}

			for _, file := range files {
				err := registerFile(ctx, deps.Catalog, in, sf.stage, file, "")
				if err != nil {
					return pipeline.Output{}, err
				}
				registered++
			}
		}

		ctxlog.FromContext(ctx).Info("session files registered", "files", registered)

		return pipeline.Output{Folder: in.Folder}, nil
	})

	return addNode(d, upstream, s, CatalogToI2B2, doc, nil, task)
}

func registerFile(ctx context.Context, reg catalog.Registry, in pipeline.Input, stage, file, key string) error {
	entry, err := catalog.NewEntry(file)
	if err != nil {
		return err
	}

	entry.RunID = in.Session.RunID
	entry.SessionID = in.Session.ID
	entry.Stage = stage
	entry.ObjectKey = key

	err = reg.Register(ctx, entry)
	if err != nil {
		return errors.Wrapf(err, "unable to register %s", file)
	}

	return nil
}
