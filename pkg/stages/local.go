package stages

import (
	"context"
	"os"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/internal/fsutil"
	"github.com/askiada/go-preprocess/pkg/pipeline"
)

// BuildCopyToLocal copies the session folder to COPY_TO_LOCAL_FOLDER/<session id>.
func BuildCopyToLocal(d *pipeline.DAG, upstream pipeline.Step, s Settings, _ Deps) (pipeline.Step, error) {
	root := s.CopyToLocalFolder
	doc := "# Copy to local\n\n" +
		"Copies the session files to a local folder to speed up processing.\n\n" +
		"* Local folder: __" + root + "__\n"

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		dst := sessionFolder(root, in)
		n, err := fsutil.CopyTree(in.Folder, dst)
		if err != nil {
			return pipeline.Output{}, err
		}

		ctxlog.FromContext(ctx).Info("session copied to local folder", "from", in.Folder, "to", dst, "files", n)

		return pipeline.Output{Folder: dst}, nil
	})

	return addNode(d, upstream, s, CopyToLocal, doc, map[string]string{"local_folder": root}, task)
}

// BuildRegisterLocal uses the session folder where it is, without copying it.
func BuildRegisterLocal(d *pipeline.DAG, upstream pipeline.Step, s Settings, _ Deps) (pipeline.Step, error) {
	doc := "# Register local\n\n" +
		"Uses the session folder in place: the files are already stored on a local disk.\n"

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		info, err := os.Stat(in.Folder)
		if err != nil {
			return pipeline.Output{}, errors.Wrap(err, "unable to stat session folder")
		}
		if !info.IsDir() {
			return pipeline.Output{}, errors.Errorf("session folder %s is not a folder", in.Folder)
		}

		ctxlog.FromContext(ctx).Info("session folder registered", "folder", in.Folder)

		return pipeline.Output{Folder: in.Folder}, nil
	})

	return addNode(d, upstream, s, RegisterLocal, doc, nil, task)
}

// BuildCleanupLocal removes COPY_TO_LOCAL_FOLDER/<session id> once it has been converted.
func BuildCleanupLocal(d *pipeline.DAG, upstream pipeline.Step, s Settings, _ Deps) (pipeline.Step, error) {
	root := s.CopyToLocalFolder
	if root == "" {
		return pipeline.Step{}, errors.Wrap(ErrMissingDependency, "cleanup_local needs the copy to local folder")
	}

	doc := "# Cleanup local files\n\n" +
		"Removes the locally stored files as they have been processed already.\n\n" +
		"* Local folder: __" + root + "__\n"

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		target := sessionFolder(root, in)
		err := os.RemoveAll(target)
		if err != nil {
			return pipeline.Output{}, errors.Wrapf(err, "unable to remove %s", target)
		}

		ctxlog.FromContext(ctx).Info("local copy removed", "folder", target)

		return pipeline.Output{Folder: in.Folder}, nil
	})

	return addNode(d, upstream, s, CleanupLocal, doc, map[string]string{"local_folder": root}, task)
}
