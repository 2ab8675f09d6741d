package stages

import (
	"context"

	"github.com/askiada/go-preprocess/pkg/pipeline"
	"github.com/askiada/go-preprocess/pkg/selection"
)

// BuildImagesSelection keeps the images matching the selection CSV.
func BuildImagesSelection(d *pipeline.DAG, upstream pipeline.Step, s Settings, _ Deps) (pipeline.Step, error) {
	sel := s.ImagesSelection
	doc := "# Select DICOM/NIFTI images\n\n" +
		"Selects only the images matching the criteria of __" + sel.CSVPath + "__, " +
		"for example only the baseline visits and the T1 images.\n\n" +
		"Selected files are stored in the following locations:\n\n" +
		"* Local folder: __" + sel.LocalFolder + "__\n"

	task := pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		dst := sessionFolder(sel.LocalFolder, in)
		_, err := selection.Select(ctx, selection.Request{
			RulesFile:  sel.CSVPath,
			SourceRoot: in.Folder,
			DestRoot:   dst,
			SessionID:  in.Session.ID,
		})
		if err != nil {
			return pipeline.Output{}, err
		}

		return pipeline.Output{Folder: dst}, nil
	})

	return addNode(d, upstream, s, ImagesSelection, doc, map[string]string{
		"local_folder": sel.LocalFolder,
		"csv_path":     sel.CSVPath,
	}, task)
}
