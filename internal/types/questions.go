package types

// AnsweredQuestion is an application question together with its generated answer.
type AnsweredQuestion struct {
	ID                     string `json:"id"`
	Question               string `json:"question"`
	AdditionalRequirements string `json:"additionalRequirements,omitempty"`
	Answer                 string `json:"answer"`
	CreatedAt              string `json:"createdAt"`
}
