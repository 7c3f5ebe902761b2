package types

// ExtractedJobPostingDetails is the structured job posting returned by the evaluation endpoint.
type ExtractedJobPostingDetails struct {
	JobTitle               string   `json:"job_title"`
	CompanyName            string   `json:"company_name"`
	JobDescription         string   `json:"job_description"`
	Responsibilities       []string `json:"responsibilities"`
	Requirements           []string `json:"requirements"`
	Location               string   `json:"location"`
	OtherAdditionalDetails string   `json:"other_additional_details"`
}

// ResumeSuggestion is one targeted edit to the applicant's resume.
type ResumeSuggestion struct {
	Where      string `json:"where"`
	Suggestion string `json:"suggestion"`
	Reason     string `json:"reason"`
}

// ResumeSection is a titled block of a generated resume.
type ResumeSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// FullResume is a complete structured resume tailored to a posting.
type FullResume struct {
	ApplicantName  string          `json:"applicant_name"`
	ContactInfo    string          `json:"contact_info"`
	Summary        string          `json:"summary"`
	Skills         []string        `json:"skills"`
	Sections       []ResumeSection `json:"sections"`
	FullResumeText string          `json:"full_resume_text"`
}

// CoverLetter is the cover letter endpoint's response.
type CoverLetter struct {
	JobTitleName  string `json:"job_title_name"`
	CompanyName   string `json:"company_name"`
	ApplicantName string `json:"applicant_name"`
	CoverLetter   string `json:"cover_letter"`
	Location      string `json:"location"`
}

// GenerationResult is the combined output of one generation session for a tab.
type GenerationResult struct {
	JobTitleName               string                     `json:"job_title_name"`
	CompanyName                string                     `json:"company_name"`
	ApplicantName              string                     `json:"applicant_name"`
	CoverLetter                string                     `json:"cover_letter"`
	Location                   string                     `json:"location"`
	ResumeSuggestions          []ResumeSuggestion         `json:"resume_suggestions"`
	ExtractedJobPostingDetails ExtractedJobPostingDetails `json:"extracted_job_posting_details"`
	FullResume                 *FullResume                `json:"full_resume,omitempty"`
}
