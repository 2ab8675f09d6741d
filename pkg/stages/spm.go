package stages

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/askiada/go-preprocess/internal/ctxlog"
	"github.com/askiada/go-preprocess/internal/fsutil"
	"github.com/askiada/go-preprocess/pkg/dicominfo"
	"github.com/askiada/go-preprocess/pkg/external"
	"github.com/askiada/go-preprocess/pkg/pipeline"
)

const datasetConfigEnv = "DATASET_CONFIG"

// spmArgs builds the arguments of the SPM function from the upstream input and the
// session output folder.
type spmArgs func(parent, output string, in pipeline.Input) []string

// spmCall describes an SPM stage.
type spmCall struct {
	stage    string
	settings SPMSettings
	args     spmArgs
	// describe logs what the function is about to process.
	describe func(ctx context.Context, in pipeline.Input)
}

func (c spmCall) job(s Settings, args []string) external.Job {
	job := external.Job{
		Kind:     external.KindSPM,
		Function: c.settings.Function,
		Args:     args,
		Paths:    []string{s.MiscLibraryPath(), filepath.Join(s.PipelinesPath, c.settings.PipelineDir)},
	}
	if s.DatasetConfig != "" {
		job.Env = map[string]string{datasetConfigEnv: s.DatasetConfig}
	}

	return job
}

// task calls the function and skips the session when it produced nothing.
func (c spmCall) task(s Settings, runner external.Runner) pipeline.Task {
	return pipeline.TaskFunc(func(ctx context.Context, in pipeline.Input) (pipeline.Output, error) {
		if c.describe != nil {
			c.describe(ctx, in)
		}

		parent, err := parentFolder(in)
		if err != nil {
			return pipeline.Output{}, err
		}
		output := sessionFolder(c.settings.LocalFolder, in)

		res, err := runner.Run(ctx, c.job(s, c.args(parent, output, in)))
		if err != nil {
			return pipeline.Output{}, err
		}

		empty, err := fsutil.IsEmptyDir(output)
		if err != nil {
			return pipeline.Output{}, err
		}
		if empty {
			return pipeline.Output{}, pipeline.Skip(c.settings.Function + " produced no output in " + output)
		}

		ctxlog.FromContext(ctx).Info("spm function done", "stage", c.stage, "function", c.settings.Function, "output", output, "elapsed", res.Elapsed)

		return pipeline.Output{Folder: output}, nil
	})
}

func (c spmCall) params(s Settings) map[string]string {
	params := map[string]string{
		"spm_function":  c.settings.Function,
		"matlab_paths":  strings.Join(c.job(s, nil).Paths, ":"),
		"local_folder":  c.settings.LocalFolder,
		"pipeline_path": filepath.Join(s.PipelinesPath, c.settings.PipelineDir),
	}
	if c.settings.ServerFolder != "" {
		params["server_folder"] = c.settings.ServerFolder
	}
	if c.settings.ProtocolsFile != "" {
		params["protocols_file"] = c.settings.ProtocolsFile
	}

	return params
}

func buildSPM(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps, c spmCall, doc string) (pipeline.Step, error) {
	err := requireDep(c.stage, deps.Runner != nil, "an external runner")
	if err != nil {
		return pipeline.Step{}, err
	}

	return addNode(d, upstream, s, c.stage, doc, c.params(s), c.task(s, deps.Runner))
}

func spmDoc(title, summary string, c spmCall) string {
	doc := "# " + title + "\n\n" + summary + "\n\n" +
		"SPM function: __" + c.settings.Function + "__\n\n" +
		"Results are stored in the following locations:\n\n" +
		"* Local folder: __" + c.settings.LocalFolder + "__\n"
	if c.settings.ServerFolder != "" {
		doc += "* Remote folder: __" + c.settings.ServerFolder + "__\n"
	}

	return doc
}

// BuildDicomSelectT1 keeps the T1 weighted DICOM series of the session.
func BuildDicomSelectT1(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error) {
	c := spmCall{
		stage:    DicomSelectT1,
		settings: s.SelectT1,
		args: func(parent, output string, in pipeline.Input) []string {
			return []string{parent, s.SelectT1.LocalFolder, in.Session.ID, s.SelectT1.ProtocolsFile}
		},
	}
	doc := spmDoc("Select T1 DICOM images", "Selects only T1 images from a set of various DICOM images.", c)

	return buildSPM(d, upstream, s, deps, c, doc)
}

// BuildDicomToNifti converts the DICOM files of the session to Nifti.
func BuildDicomToNifti(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error) {
	c := spmCall{
		stage:    DicomToNifti,
		settings: s.Nifti,
		args: func(parent, output string, in pipeline.Input) []string {
			return []string{
				parent,
				in.Session.ID,
				s.Nifti.LocalFolder,
				s.Nifti.ServerFolder,
				s.Nifti.ProtocolsFile,
				s.Nifti.Program,
			}
		},
		describe: func(ctx context.Context, in pipeline.Input) {
			logger := ctxlog.FromContext(ctx).With("stage", DicomToNifti, "folder", in.Folder)
			summary, err := dicominfo.Scan(in.Folder)
			if err != nil {
				logger.Debug("unable to describe dicom series", "error", err)
				return
			}
			logger.Debug("dicom series to convert", "series", len(summary.Series), "files", summary.Files)
		},
	}
	doc := spmDoc("DICOM to Nifti pipeline", "Converts all DICOM files to Nifti format.", c)

	return buildSPM(d, upstream, s, deps, c, doc)
}

// BuildMPMMaps computes the Multiparametric Maps of the session.
func BuildMPMMaps(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error) {
	c := spmCall{
		stage:    MPMMaps,
		settings: s.MPM,
		args: func(parent, output string, in pipeline.Input) []string {
			return []string{parent, s.MPM.LocalFolder, in.Session.ID, s.MPM.ProtocolsFile}
		},
	}
	doc := spmDoc("MPM Maps pipeline", "Computes the Multiparametric Maps (MPMs) and brain segmentation in different tissue maps.", c)

	return buildSPM(d, upstream, s, deps, c, doc)
}

// BuildNeuroMorphometricAtlas computes the per-region volumes of the session.
func BuildNeuroMorphometricAtlas(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error) {
	c := spmCall{
		stage:    NeuroMorphometricAtlas,
		settings: s.Atlas,
		args: func(parent, output string, in pipeline.Input) []string {
			return []string{
				parent,
				in.Session.ID,
				s.Atlas.LocalFolder,
				s.Atlas.ServerFolder,
				s.Atlas.ProtocolsFile,
				s.Atlas.TableFormat,
				s.Atlas.TPMTemplate,
			}
		},
	}
	doc := spmDoc("NeuroMorphometric Atlas pipeline",
		"Computes an individual Atlas based on the NeuroMorphometrics Atlas. This is based on the NeuroMorphometrics Toolbox.\n"+
			"This delivers three files:\n\n"+
			"1. Atlas File (*.nii)\n"+
			"2. Volumes of the Morphometric Atlas structures (*.txt)\n"+
			"3. CSV File (.csv) containing the volume, globals, and Multiparametric Maps (R2*, R1, MT, PD) for each structure defined in the Subject Atlas.", c)

	return buildSPM(d, upstream, s, deps, c, doc)
}
