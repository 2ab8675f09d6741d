package stages

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/askiada/go-preprocess/internal/diskspace"
	"github.com/askiada/go-preprocess/pkg/config"
	"github.com/askiada/go-preprocess/pkg/objectstore"
)

// DataFactorySection holds the settings shared by every dataset for the export stages.
const DataFactorySection = "data-factory"

const (
	defaultMinFreeSpace = "1 GB"
	defaultTableFormat  = "csv"
	miscLibraryDir      = "../Miscellaneous&Others"
)

// SPMSettings configures one SPM stage.
type SPMSettings struct {
	Function      string
	PipelineDir   string
	LocalFolder   string
	ServerFolder  string
	ProtocolsFile string
	// Program is the converter binary handed to dicom_to_nifti.
	Program     string
	TPMTemplate string
	TableFormat string
}

// SelectionSettings configures images_selection.
type SelectionSettings struct {
	LocalFolder string
	CSVPath     string
}

// Settings is every configuration value the requested stages need.
type Settings struct {
	Section string
	// Dataset names the dataset in object keys and documentation. Defaults to Section.
	Dataset       string
	Stages        []string
	PipelinesPath string
	DatasetConfig string
	ProtocolsFile string
	MinFreeSpace  uint64
	Timeouts      map[string]time.Duration

	CopyToLocalFolder string
	ImagesSelection   SelectionSettings
	SelectT1          SPMSettings
	Nifti             SPMSettings
	MPM               SPMSettings
	Atlas             SPMSettings

	CatalogURL string
	Features   objectstore.Config
}

// Includes reports whether stage is part of the settings.
func (s Settings) Includes(stage string) bool {
	for _, name := range s.Stages {
		if name == stage {
			return true
		}
	}

	return false
}

// Timeout returns the configured timeout of stage, or its default.
func (s Settings) Timeout(stage string) time.Duration {
	if d, ok := s.Timeouts[stage]; ok {
		return d
	}
	if st, ok := Lookup(stage); ok {
		return st.Timeout
	}

	return time.Hour
}

// MiscLibraryPath is the shared matlab library added to every SPM call.
func (s Settings) MiscLibraryPath() string {
	return s.PipelinesPath + "/" + miscLibraryDir
}

type stageFolder struct {
	stage  string
	folder string
}

// stageFolders pairs the included stages with the local folder they write to.
func (s Settings) stageFolders() []stageFolder {
	candidates := []stageFolder{
		{CopyToLocal, s.CopyToLocalFolder},
		{ImagesSelection, s.ImagesSelection.LocalFolder},
		{DicomSelectT1, s.SelectT1.LocalFolder},
		{DicomToNifti, s.Nifti.LocalFolder},
		{MPMMaps, s.MPM.LocalFolder},
		{NeuroMorphometricAtlas, s.Atlas.LocalFolder},
	}

	var out []stageFolder
	for _, c := range candidates {
		if c.folder != "" && s.Includes(c.stage) {
			out = append(out, c)
		}
	}

	return out
}

// LocalFolders returns the local folders written by the included stages.
func (s Settings) LocalFolders() []string {
	folders := s.stageFolders()
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		out = append(out, f.folder)
	}

	return out
}

// OutputFolders returns the session output folders of the included stages.
func (s Settings) OutputFolders(sessionID string) []string {
	folders := s.LocalFolders()
	out := make([]string, 0, len(folders))
	for _, f := range folders {
		out = append(out, filepath.Join(f, sessionID))
	}

	return out
}

type resolver struct {
	store   *config.Store
	section string
	err     error
}

func (r *resolver) get(key string) string {
	if r.err != nil {
		return ""
	}

	v, err := r.store.Get(r.section, key)
	if err != nil {
		r.err = err
	}

	return v
}

func (r *resolver) bool(key string) bool {
	if r.err != nil {
		return false
	}

	v, err := r.store.Bool(r.section, key)
	if err != nil {
		r.err = err
	}

	return v
}

// LoadSettings resolves the settings of stages from section. Defaults are registered
// first, so a key is only missing when neither the configuration nor a default sets it.
func LoadSettings(store *config.Store, section string, stages []string) (Settings, error) {
	s := Settings{
		Section:  section,
		Dataset:  section,
		Stages:   append([]string(nil), stages...),
		Timeouts: make(map[string]time.Duration),
	}

	registerDefaults(store, section)
	r := &resolver{store: store, section: section}

	for _, stage := range stages {
		if _, ok := Lookup(stage); !ok {
			return Settings{}, errors.Wrap(ErrUnknownStage, stage)
		}

		key := strings.ToUpper(stage) + "_TIMEOUT"
		if store.Has(section, key) {
			d, err := store.Duration(section, key)
			if err != nil {
				return Settings{}, err
			}
			s.Timeouts[stage] = d
		}
	}

	if s.Includes(CheckLocalFreeSpace) {
		size, err := diskspace.ParseSize(r.get("MIN_FREE_SPACE"))
		if r.err == nil && err != nil {
			return Settings{}, errors.Wrap(err, "MIN_FREE_SPACE")
		}
		s.MinFreeSpace = size
	}

	if s.Includes(CopyToLocal) || s.Includes(CleanupLocal) {
		s.CopyToLocalFolder = r.get("COPY_TO_LOCAL_FOLDER")
	}

	if s.Includes(ImagesSelection) {
		s.ImagesSelection = SelectionSettings{
			LocalFolder: r.get("IMAGES_SELECTION_LOCAL_FOLDER"),
			CSVPath:     r.get("IMAGES_SELECTION_CSV_PATH"),
		}
	}

	needsSPM := s.Includes(DicomSelectT1) || s.Includes(DicomToNifti) || s.Includes(MPMMaps) || s.Includes(NeuroMorphometricAtlas)
	if needsSPM {
		s.PipelinesPath = r.get("PIPELINES_PATH")
		s.DatasetConfig = r.get("DATASET_CONFIG")
	}

	if s.Includes(DicomSelectT1) {
		s.SelectT1 = SPMSettings{
			Function:      r.get("DICOM_SELECT_T1_SPM_FUNCTION"),
			PipelineDir:   "SelectT1_Pipeline",
			LocalFolder:   r.get("DICOM_SELECT_T1_LOCAL_FOLDER"),
			ProtocolsFile: r.get("DICOM_SELECT_T1_PROTOCOLS_FILE"),
		}
	}

	if s.Includes(DicomToNifti) {
		s.Nifti = SPMSettings{
			Function:      r.get("NIFTI_SPM_FUNCTION"),
			PipelineDir:   "Nifti_Conversion_Pipeline",
			LocalFolder:   r.get("NIFTI_LOCAL_FOLDER"),
			ServerFolder:  r.get("NIFTI_SERVER_FOLDER"),
			ProtocolsFile: r.get("PROTOCOLS_FILE"),
			Program:       r.get("DCM2NII_PROGRAM"),
		}
	}

	if s.Includes(MPMMaps) {
		s.MPM = SPMSettings{
			Function:      r.get("MPM_MAPS_SPM_FUNCTION"),
			PipelineDir:   "MPMs_Pipeline",
			LocalFolder:   r.get("MPM_MAPS_LOCAL_FOLDER"),
			ProtocolsFile: r.get("PROTOCOLS_FILE"),
		}
	}

	if s.Includes(NeuroMorphometricAtlas) {
		s.Atlas = SPMSettings{
			Function:      r.get("NEURO_MORPHOMETRIC_ATLAS_SPM_FUNCTION"),
			PipelineDir:   "NeuroMorphometric_Pipeline",
			LocalFolder:   r.get("NEURO_MORPHOMETRIC_ATLAS_LOCAL_FOLDER"),
			ServerFolder:  r.get("NEURO_MORPHOMETRIC_ATLAS_SERVER_FOLDER"),
			ProtocolsFile: r.get("PROTOCOLS_FILE"),
			TPMTemplate:   r.get("NEURO_MORPHOMETRIC_ATLAS_TPM_TEMPLATE"),
			TableFormat:   r.get("NEURO_MORPHOMETRIC_ATLAS_TABLE_FORMAT"),
		}
	}

	if s.Includes(ExportFeatures) && s.Atlas.TableFormat == "" {
		s.Atlas.TableFormat = r.get("NEURO_MORPHOMETRIC_ATLAS_TABLE_FORMAT")
	}

	if r.err != nil {
		return Settings{}, r.err
	}

	df := &resolver{store: store, section: DataFactorySection}
	if s.Includes(ExportFeatures) || s.Includes(CatalogToI2B2) {
		s.CatalogURL = df.get("CATALOG_DATABASE_URL")
	}
	if s.Includes(ExportFeatures) {
		s.Features = objectstore.Config{
			Endpoint:  df.get("FEATURES_S3_ENDPOINT"),
			AccessKey: df.get("FEATURES_S3_ACCESS_KEY"),
			SecretKey: df.get("FEATURES_S3_SECRET_KEY"),
			Bucket:    df.get("FEATURES_S3_BUCKET"),
			Region:    df.get("FEATURES_S3_REGION"),
			UseSSL:    df.bool("FEATURES_S3_USE_SSL"),
		}
	}
	if df.err != nil {
		return Settings{}, df.err
	}

	return s, nil
}

func registerDefaults(store *config.Store, section string) {
	store.SetDefault(section, "DATASET_CONFIG", "")
	store.SetDefault(section, "MIN_FREE_SPACE", defaultMinFreeSpace)
	store.SetDefault(section, "DICOM_SELECT_T1_SPM_FUNCTION", "selectT1")
	store.SetDefault(section, "NIFTI_SPM_FUNCTION", "DCM2NII_LREN")
	store.SetDefault(section, "MPM_MAPS_SPM_FUNCTION", "Preproc_mpm_maps")
	store.SetDefault(section, "NEURO_MORPHOMETRIC_ATLAS_SPM_FUNCTION", "NeuroMorphometric_pipeline")
	store.SetDefault(section, "NEURO_MORPHOMETRIC_ATLAS_TABLE_FORMAT", defaultTableFormat)

	if pipelinesPath, err := store.Get(section, "PIPELINES_PATH"); err == nil {
		store.SetDefault(section, "DCM2NII_PROGRAM", pipelinesPath+"/Nifti_Conversion_Pipeline/dcm2nii")
		store.SetDefault(section, "NEURO_MORPHOMETRIC_ATLAS_TPM_TEMPLATE", pipelinesPath+"/"+miscLibraryDir+"/nwTPM_sl3.nii")
	}
	if protocols, err := store.Get(section, "PROTOCOLS_FILE"); err == nil {
		store.SetDefault(section, "DICOM_SELECT_T1_PROTOCOLS_FILE", protocols)
	}

	store.SetDefault(DataFactorySection, "FEATURES_S3_REGION", "")
	store.SetDefault(DataFactorySection, "FEATURES_S3_USE_SSL", "false")
}
