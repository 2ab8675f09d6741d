package stages

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/diskspace"
	"github.com/askiada/go-preprocess/pkg/catalog"
	"github.com/askiada/go-preprocess/pkg/external"
	"github.com/askiada/go-preprocess/pkg/notify"
	"github.com/askiada/go-preprocess/pkg/objectstore"
	"github.com/askiada/go-preprocess/pkg/pipeline"
	"github.com/askiada/go-preprocess/pkg/pipeline/model"
)

// Stage names, as requested by callers.
const (
	CheckLocalFreeSpace    = "check_local_free_space"
	PreparePipeline        = "prepare_pipeline"
	CopyToLocal            = "copy_to_local"
	RegisterLocal          = "register_local"
	ImagesSelection        = "images_selection"
	DicomSelectT1          = "dicom_select_t1"
	DicomToNifti           = "dicom_to_nifti"
	CleanupLocal           = "cleanup_local"
	MPMMaps                = "mpm_maps"
	NeuroMorphometricAtlas = "neuro_morphometric_atlas"
	ExportFeatures         = "export_features"
	CatalogToI2B2          = "catalog_to_i2b2"
	NotifySuccess          = "notify_success"
)

// Pools shared with the scheduler.
const (
	PoolIOIntensive        = "io_intensive"
	PoolImagePreprocessing = "image_preprocessing"
)

const (
	defaultIncrement = 10
	mpmIncrement     = 5
)

var (
	ErrUnknownStage      = errors.New("unknown stage")
	ErrMissingDependency = errors.New("missing dependency")
)

// Deps are the collaborators node tasks call at run time.
type Deps struct {
	Runner    external.Runner
	Catalog   catalog.Registry
	Objects   objectstore.Uploader
	FreeSpace diskspace.FreeFunc
}

// Builder adds the node of one stage below upstream.
type Builder func(d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error)

// Stage describes how a stage is scheduled.
type Stage struct {
	Name      string
	NodeID    string
	Type      model.StepType
	Operator  string
	Pool      string
	Timeout   time.Duration
	Increment int
	Build     Builder
}

var registry = map[string]Stage{}

func register(st Stage) {
	if st.Type == "" {
		st.Type = model.StageStepType
	}
	if st.Increment == 0 {
		st.Increment = defaultIncrement
	}
	registry[st.Name] = st
}

func init() {
	register(Stage{Name: CheckLocalFreeSpace, NodeID: "check_local_free_space", Operator: "go", Timeout: time.Hour, Build: BuildCheckLocalFreeSpace})
	register(Stage{Name: PreparePipeline, NodeID: "prepare_pipeline", Operator: "go", Timeout: time.Hour, Build: BuildPreparePipeline})
	register(Stage{Name: CopyToLocal, NodeID: "copy_to_local", Operator: "go", Pool: PoolIOIntensive, Timeout: 3 * time.Hour, Build: BuildCopyToLocal})
	register(Stage{Name: RegisterLocal, NodeID: "register_local", Operator: "go", Timeout: time.Hour, Build: BuildRegisterLocal})
	register(Stage{Name: ImagesSelection, NodeID: "images_selection_pipeline", Operator: "go", Pool: PoolIOIntensive, Timeout: 6 * time.Hour, Build: BuildImagesSelection})
	register(Stage{Name: DicomSelectT1, NodeID: "dicom_select_T1_pipeline", Operator: "spm", Pool: PoolIOIntensive, Timeout: 24 * time.Hour, Build: BuildDicomSelectT1})
	register(Stage{Name: DicomToNifti, NodeID: "dicom_to_nifti_pipeline", Operator: "spm", Pool: PoolIOIntensive, Timeout: 24 * time.Hour, Build: BuildDicomToNifti})
	register(Stage{Name: CleanupLocal, NodeID: "cleanup_local", Type: model.CleanupType, Operator: "go", Timeout: time.Hour, Build: BuildCleanupLocal})
	register(Stage{Name: MPMMaps, NodeID: "mpm_maps_pipeline", Operator: "spm", Pool: PoolImagePreprocessing, Timeout: 24 * time.Hour, Increment: mpmIncrement, Build: BuildMPMMaps})
	register(Stage{Name: NeuroMorphometricAtlas, NodeID: "neuro_morphometric_atlas_pipeline", Operator: "spm", Pool: PoolImagePreprocessing, Timeout: 24 * time.Hour, Build: BuildNeuroMorphometricAtlas})
	register(Stage{Name: ExportFeatures, NodeID: "features_to_i2b2", Operator: "go", Pool: PoolIOIntensive, Timeout: 6 * time.Hour, Build: BuildExportFeatures})
	register(Stage{Name: CatalogToI2B2, NodeID: "catalog_to_i2b2", Operator: "go", Pool: PoolIOIntensive, Timeout: 6 * time.Hour, Build: BuildCatalogToI2B2})
	register(Stage{Name: NotifySuccess, NodeID: "notify_success", Type: model.NotifyStepType, Operator: "trigger", Timeout: time.Hour, Build: BuildNotifySuccess})
}

// Lookup returns the stage called name.
func Lookup(name string) (Stage, bool) {
	st, ok := registry[name]

	return st, ok
}

// Build adds the node of the stage called name below upstream.
func Build(name string, d *pipeline.DAG, upstream pipeline.Step, s Settings, deps Deps) (pipeline.Step, error) {
	st, ok := Lookup(name)
	if !ok {
		return pipeline.Step{}, errors.Wrap(ErrUnknownStage, name)
	}

	return st.Build(d, upstream, s, deps)
}

// addNode fills the scheduling metadata shared by every stage and adds the node.
func addNode(d *pipeline.DAG, upstream pipeline.Step, s Settings, name, doc string, params map[string]string, task pipeline.Task) (pipeline.Step, error) {
	st, ok := Lookup(name)
	if !ok {
		return pipeline.Step{}, errors.Wrap(ErrUnknownStage, name)
	}

	node := &pipeline.Node{
		ID:               st.NodeID,
		Type:             st.Type,
		Priority:         upstream.Priority + st.Increment,
		Timeout:          s.Timeout(name),
		Pool:             st.Pool,
		Doc:              doc + dependsOn(upstream),
		Operator:         st.Operator,
		Params:           params,
		OnSkipTrigger:    notify.TargetSkipped,
		OnFailureTrigger: notify.TargetFailed,
		Task:             task,
	}

	step, err := d.AddNode(node, upstream)
	if err != nil {
		return pipeline.Step{}, errors.Wrapf(err, "unable to add %s", st.NodeID)
	}

	return step, nil
}

func dependsOn(upstream pipeline.Step) string {
	if upstream.IsRoot() {
		return ""
	}

	return fmt.Sprintf("\nDepends on: __%s__\n", upstream.ID)
}

func requireDep(name string, ok bool, dep string) error {
	if ok {
		return nil
	}

	return errors.Wrapf(ErrMissingDependency, "%s needs %s", name, dep)
}

// sessionFolder is where a stage writing below root stores the session.
func sessionFolder(root string, in pipeline.Input) string {
	return filepath.Join(root, in.Session.ID)
}

// parentFolder is the absolute parent of the upstream output folder.
func parentFolder(in pipeline.Input) (string, error) {
	parent, err := filepath.Abs(filepath.Join(in.Folder, ".."))
	if err != nil {
		return "", errors.Wrapf(err, "unable to resolve parent of %s", in.Folder)
	}

	return parent, nil
}
