package stages_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/askiada/go-preprocess/pkg/config"
	"github.com/askiada/go-preprocess/pkg/stages"
)

func baseStore() *config.Store {
	s := config.New()
	s.Set("demo", "PIPELINES_PATH", "/opt/pipelines")
	s.Set("demo", "PROTOCOLS_FILE", "/opt/protocols.txt")
	s.Set("demo", "COPY_TO_LOCAL_FOLDER", "/data/local")
	s.Set("demo", "IMAGES_SELECTION_LOCAL_FOLDER", "/data/selection")
	s.Set("demo", "IMAGES_SELECTION_CSV_PATH", "/data/selection.csv")
	s.Set("demo", "DICOM_SELECT_T1_LOCAL_FOLDER", "/data/t1")
	s.Set("demo", "NIFTI_LOCAL_FOLDER", "/data/nifti")
	s.Set("demo", "NIFTI_SERVER_FOLDER", "/server/nifti")
	s.Set("demo", "MPM_MAPS_LOCAL_FOLDER", "/data/mpm")
	s.Set("demo", "NEURO_MORPHOMETRIC_ATLAS_LOCAL_FOLDER", "/data/atlas")
	s.Set("demo", "NEURO_MORPHOMETRIC_ATLAS_SERVER_FOLDER", "/server/atlas")

	return s
}

func TestLoadSettingsDefaults(t *testing.T) {
	t.Parallel()

	s, err := stages.LoadSettings(baseStore(), "demo", []string{
		stages.CheckLocalFreeSpace, stages.CopyToLocal, stages.DicomSelectT1, stages.DicomToNifti,
		stages.MPMMaps, stages.NeuroMorphometricAtlas,
	})
	require.NoError(t, err)

	assert.Equal(t, "demo", s.Dataset)
	assert.Equal(t, uint64(1000*1000*1000), s.MinFreeSpace)
	assert.Equal(t, "DCM2NII_LREN", s.Nifti.Function)
	assert.Equal(t, "/opt/pipelines/Nifti_Conversion_Pipeline/dcm2nii", s.Nifti.Program)
	assert.Equal(t, "selectT1", s.SelectT1.Function)
	assert.Equal(t, "/opt/protocols.txt", s.SelectT1.ProtocolsFile)
	assert.Equal(t, "Preproc_mpm_maps", s.MPM.Function)
	assert.Equal(t, "NeuroMorphometric_pipeline", s.Atlas.Function)
	assert.Equal(t, "csv", s.Atlas.TableFormat)
	assert.Equal(t, "/opt/pipelines/../Miscellaneous&Others/nwTPM_sl3.nii", s.Atlas.TPMTemplate)
	assert.Equal(t, "/opt/pipelines/../Miscellaneous&Others", s.MiscLibraryPath())
	assert.Empty(t, s.DatasetConfig)
	assert.Equal(t, []string{"/data/local", "/data/t1", "/data/nifti", "/data/mpm", "/data/atlas"}, s.LocalFolders())
	assert.Equal(t, "/data/nifti/s1", s.OutputFolders("s1")[2])
}

func TestLoadSettingsExplicitWinsOverDefault(t *testing.T) {
	t.Parallel()

	store := baseStore()
	store.Set("demo", "NIFTI_SPM_FUNCTION", "custom_convert")
	store.Set("demo", "DICOM_SELECT_T1_PROTOCOLS_FILE", "/opt/t1.txt")
	store.Set("demo", "DICOM_TO_NIFTI_TIMEOUT", "90m")

	s, err := stages.LoadSettings(store, "demo", []string{stages.DicomSelectT1, stages.DicomToNifti})
	require.NoError(t, err)

	assert.Equal(t, "custom_convert", s.Nifti.Function)
	assert.Equal(t, "/opt/t1.txt", s.SelectT1.ProtocolsFile)
	assert.Equal(t, 90*time.Minute, s.Timeout(stages.DicomToNifti))
	assert.Equal(t, 24*time.Hour, s.Timeout(stages.DicomSelectT1))
}

func TestLoadSettingsMissingConfiguration(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		stages []string
		key    string
		data   bool
	}{
		"pipelines path":   {stages: []string{stages.MPMMaps}, key: "PIPELINES_PATH"},
		"local folder":     {stages: []string{stages.DicomToNifti}, key: "NIFTI_LOCAL_FOLDER"},
		"selection folder": {stages: []string{stages.ImagesSelection}, key: "IMAGES_SELECTION_LOCAL_FOLDER"},
		"copy folder":      {stages: []string{stages.CleanupLocal}, key: "COPY_TO_LOCAL_FOLDER"},
		"catalog url":      {stages: []string{stages.CatalogToI2B2}, key: "CATALOG_DATABASE_URL", data: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			store := config.New()
			if tc.key != "PIPELINES_PATH" {
				store.Set("demo", "PIPELINES_PATH", "/opt/pipelines")
				store.Set("demo", "PROTOCOLS_FILE", "/opt/protocols.txt")
			}

			_, err := stages.LoadSettings(store, "demo", tc.stages)
			require.ErrorIs(t, err, config.ErrMissingConfiguration)

			var missing *config.MissingConfigurationError
			require.True(t, errors.As(err, &missing))
			assert.Equal(t, tc.key, missing.Key)
			if tc.data {
				assert.Equal(t, stages.DataFactorySection, missing.Section)
			} else {
				assert.Equal(t, "demo", missing.Section)
			}
		})
	}
}

func TestLoadSettingsUnknownStage(t *testing.T) {
	t.Parallel()

	_, err := stages.LoadSettings(baseStore(), "demo", []string{"register_remote"})
	assert.ErrorIs(t, err, stages.ErrUnknownStage)
}

func TestLoadSettingsFeatures(t *testing.T) {
	t.Parallel()

	store := baseStore()
	store.Set(stages.DataFactorySection, "CATALOG_DATABASE_URL", "postgres://localhost/catalog")
	store.Set(stages.DataFactorySection, "FEATURES_S3_ENDPOINT", "localhost:9000")
	store.Set(stages.DataFactorySection, "FEATURES_S3_ACCESS_KEY", "access")
	store.Set(stages.DataFactorySection, "FEATURES_S3_SECRET_KEY", "secret")
	store.Set(stages.DataFactorySection, "FEATURES_S3_BUCKET", "features")

	s, err := stages.LoadSettings(store, "demo", []string{stages.ExportFeatures})
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/catalog", s.CatalogURL)
	assert.Equal(t, "features", s.Features.Bucket)
	assert.False(t, s.Features.UseSSL)
	assert.Equal(t, "csv", s.Atlas.TableFormat)
	require.NoError(t, s.Features.Validate())
}
