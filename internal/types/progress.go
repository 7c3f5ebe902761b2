package types

// GenerationStage identifies a step of the generation pipeline. Its value is the
// progress percentage shown while the step runs.
type GenerationStage int

const (
	StageAnalyzingJobPosting         GenerationStage = 0
	StageGeneratingResumeSuggestions GenerationStage = 10
	StageGeneratingFullResume        GenerationStage = 40
	StageCreatingCoverLetter         GenerationStage = 70
	StageCompleted                   GenerationStage = 100
)

// String returns the stage name used in logs and events.
func (s GenerationStage) String() string {
	switch s {
	case StageAnalyzingJobPosting:
		return "analyzing_job_posting"
	case StageGeneratingResumeSuggestions:
		return "generating_resume_suggestions"
	case StageGeneratingFullResume:
		return "generating_full_resume"
	case StageCreatingCoverLetter:
		return "creating_cover_letter"
	case StageCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Percentage returns the progress percentage of the stage.
func (s GenerationStage) Percentage() int { return int(s) }

// GenerationProgress is the transient state of an in-flight generation session.
type GenerationProgress struct {
	TabID           int    `json:"tab_id"`
	Stage           string `json:"stage"`
	StagePercentage int    `json:"stage_percentage"`
	Message         string `json:"message"`
}

// NewGenerationProgress builds the progress snapshot for a stage.
func NewGenerationProgress(tabID int, stage GenerationStage, message string) GenerationProgress {
	return GenerationProgress{
		TabID:           tabID,
		Stage:           stage.String(),
		StagePercentage: stage.Percentage(),
		Message:         message,
	}
}
