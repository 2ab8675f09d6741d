package stages

import (
	"context"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/internal/diskspace"
	"github.com/askiada/go-preprocess/pkg/dicominfo"
	"github.com/askiada/go-preprocess/pkg/pipeline"
)

// BuildCheckLocalFreeSpace fails the session early when a local folder is short of space.
func BuildCheckLocalFreeSpace(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error) {
	free := deps.FreeSpace
	if free == nil {
		free = diskspace.Free
	}
	folders := s.LocalFolders()

	doc := "# Check local free space\n\n" +
		"Fails when one of the local folders has less than __" + humanize.Bytes(s.MinFreeSpace) + "__ available:\n\n" +
		bulletList(folders)

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		err := diskspace.Check(free, s.MinFreeSpace, folders...)
		if err != nil {
			return pipeline.Output{}, err
		}

		ctxlog.FromContext(ctx).Debug("enough local free space", "folders", folders, "min", humanize.Bytes(s.MinFreeSpace))

		return pipeline.Output{Folder: in.Folder}, nil
	})

	return addNode(d, upstream, s, CheckLocalFreeSpace, doc, map[string]string{
		"min_free_space": humanize.Bytes(s.MinFreeSpace),
		"folders":        strings.Join(folders, ","),
	}, task)
}

// BuildPreparePipeline checks the session folder and logs the DICOM series it holds.
func BuildPreparePipeline(d *pipeline.DAG, upstream pipeline.Step, s Settings, _ Deps) (pipeline.Step, error) {
	doc := "# Prepare pipeline\n\n" +
		"Checks that the session folder given in the run configuration exists and lists the DICOM series it holds.\n"

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		if in.Session.ID == "" {
			return pipeline.Output{}, errors.New("session id is required")
		}

		info, err := os.Stat(in.Folder)
		if err != nil {
			return pipeline.Output{}, errors.Wrap(err, "unable to stat session folder")
		}
		if !info.IsDir() {
			return pipeline.Output{}, errors.Errorf("session folder %s is not a folder", in.Folder)
		}

		summary, err := dicominfo.Scan(in.Folder)
		if err != nil {
			return pipeline.Output{}, err
		}

		logger := ctxlog.FromContext(ctx)
		logger.Info("session folder scanned", "folder", in.Folder, "dicom_files", summary.Files, "other_files", summary.Other, "series", len(summary.Series))
		for _, series := range summary.Series {
			logger.Debug("dicom series", "uid", series.UID, "description", series.Description, "modality", series.Modality, "protocol", series.Protocol, "files", series.Files)
		}

		return pipeline.Output{Folder: in.Folder}, nil
	})

	return addNode(d, upstream, s, PreparePipeline, doc, nil, task)
}

func bulletList(items []string) string {
	var sb strings.Builder
	for _, item := range items {
		sb.WriteString("* __")
		sb.WriteString(item)
		sb.WriteString("__\n")
	}

	return sb.String()
}
