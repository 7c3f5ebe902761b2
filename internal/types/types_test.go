package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilesStorageState_TotalBase64Size(t *testing.T) {
	state := FilesStorageState{
		Resume: &StoredFile{ID: "r", Base64Size: 100},
		SupportingDocs: []StoredFile{
			{ID: "a", Base64Size: 10},
			{ID: "b", Base64Size: 5},
		},
	}

	assert.Equal(t, int64(115), state.TotalBase64Size())
	assert.Len(t, state.All(), 3)
	assert.Equal(t, "r", state.All()[0].ID)
}

func TestFilesStorageState_EmptyDecodesToZeroValue(t *testing.T) {
	var state FilesStorageState
	require.NoError(t, json.Unmarshal([]byte(`{"resume":null,"supportingDocs":[]}`), &state))

	assert.Nil(t, state.Resume)
	assert.Empty(t, state.All())
	assert.Zero(t, state.TotalBase64Size())
}

func TestFileCategory_Valid(t *testing.T) {
	assert.True(t, CategoryResume.Valid())
	assert.True(t, CategorySupporting.Valid())
	assert.False(t, FileCategory("cover").Valid())
}

func TestGenerationStage_PercentagesAreMonotonic(t *testing.T) {
	stages := []GenerationStage{
		StageAnalyzingJobPosting,
		StageGeneratingResumeSuggestions,
		StageGeneratingFullResume,
		StageCreatingCoverLetter,
		StageCompleted,
	}
	for i := 1; i < len(stages); i++ {
		assert.Greater(t, stages[i].Percentage(), stages[i-1].Percentage())
	}
	assert.Equal(t, 100, StageCompleted.Percentage())
}

func TestNewGenerationProgress(t *testing.T) {
	p := NewGenerationProgress(42, StageCreatingCoverLetter, "Generating tailored cover letter...")

	assert.Equal(t, 42, p.TabID)
	assert.Equal(t, "creating_cover_letter", p.Stage)
	assert.Equal(t, 70, p.StagePercentage)
}

func TestGenerationResult_OmitsMissingFullResume(t *testing.T) {
	data, err := json.Marshal(GenerationResult{CompanyName: "Acme"})
	require.NoError(t, err)

	assert.NotContains(t, string(data), "full_resume")
	assert.Contains(t, string(data), `"company_name":"Acme"`)
}
