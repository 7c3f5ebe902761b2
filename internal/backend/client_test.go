package backend

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/one-click-apply/internal/backend/backendtest"
	"github.com/jonathan/one-click-apply/internal/schemas"
	"github.com/jonathan/one-click-apply/internal/types"
)

func sampleRequest() GenerationRequest {
	return GenerationRequest{
		ExtractedJobPostingDetails: types.ExtractedJobPostingDetails{JobTitle: "Backend Engineer"},
		ResumeDoc:                  types.UploadedDocument{Base64Content: "cmVzdW1l", FileType: "application/pdf", Name: "resume.pdf"},
		BrowserID:                  "browser-1",
	}
}

func TestClient_UserCredits(t *testing.T) {
	fake := backendtest.New(t)
	fake.SetCredits("browser-1", 7)

	credits, err := New(fake.URL()).UserCredits(context.Background(), "browser-1")
	require.NoError(t, err)
	assert.Equal(t, 7, credits)
}

func TestClient_CreateCheckoutSession(t *testing.T) {
	fake := backendtest.New(t)

	url, err := New(fake.URL()).CreateCheckoutSession(context.Background(), "browser-1", "15")
	require.NoError(t, err)
	assert.Equal(t, "https://checkout.example/session/15", url)

	bodies := fake.Bodies(pathCheckout)
	require.Len(t, bodies, 1)
	assert.Equal(t, "browser-1", bodies[0]["browser_id"])
	assert.Equal(t, "15", bodies[0]["package"])
}

func TestClient_EvaluateJobPosting(t *testing.T) {
	fake := backendtest.New(t)
	c := New(fake.URL())

	details, err := c.EvaluateJobPosting(context.Background(), EvaluationRequest{WebsiteURL: "https://jobs.example/1", BrowserID: "b"})
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", details.JobTitle)
	assert.Equal(t, []string{"Go", "PostgreSQL"}, details.Requirements)

	bodies := fake.Bodies(pathEvaluate)
	require.Len(t, bodies, 1)
	assert.Equal(t, "https://jobs.example/1", bodies[0]["website_url"])
	assert.NotContains(t, bodies[0], "raw_job_html_content")

	fake.RejectPosting()
	_, err = c.EvaluateJobPosting(context.Background(), EvaluationRequest{RawJobHTMLContent: "hello", BrowserID: "b"})
	assert.ErrorIs(t, err, ErrNotJobPosting)
}

func TestClient_GenerationEndpoints(t *testing.T) {
	fake := backendtest.New(t)
	c := New(fake.URL())
	ctx := context.Background()

	suggestions, err := c.GenerateResumeSuggestions(ctx, sampleRequest())
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "Skills", suggestions[0].Where)

	resume, err := c.GenerateFullResume(ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", resume.ApplicantName)
	require.Len(t, resume.Sections, 1)

	letter, err := c.GenerateCoverLetter(ctx, sampleRequest())
	require.NoError(t, err)
	assert.Equal(t, "Dear Acme, ...", letter.CoverLetter)

	answer, err := c.AnswerQuestion(ctx, QuestionRequest{GenerationRequest: sampleRequest(), Question: "Why Acme?"})
	require.NoError(t, err)
	assert.Equal(t, "Answer to: Why Acme?", answer.Answer)

	body := fake.Bodies(pathQuestionAnswer)[0]
	assert.Equal(t, "Why Acme?", body["question"])
	assert.NotContains(t, body, "additional_requirements")
	assert.NotContains(t, body, "supporting_docs")
	assert.Contains(t, body, "resume_doc")
}

func TestClient_DetailPropagatedVerbatim(t *testing.T) {
	fake := backendtest.New(t)
	fake.Fail(pathSuggestions, http.StatusTooManyRequests, "You have run out of credits. Please purchase more.")

	_, err := New(fake.URL()).GenerateResumeSuggestions(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, "You have run out of credits. Please purchase more.", err.Error())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusTooManyRequests, apiErr.Status)
	assert.True(t, IsAPIError(err))
}

func TestClient_ValidationDetailList(t *testing.T) {
	fake := backendtest.New(t)
	fake.FailRaw(pathCoverLetter, http.StatusUnprocessableEntity, `{"detail": [{"msg": "field required"}, {"msg": "value is not a valid string"}]}`)

	_, err := New(fake.URL()).GenerateCoverLetter(context.Background(), sampleRequest())
	require.Error(t, err)
	assert.Equal(t, "field required; value is not a valid string", err.Error())
}

func TestClient_ErrorWithoutDetail(t *testing.T) {
	fake := backendtest.New(t)
	fake.FailRaw(pathFullResume, http.StatusBadGateway, "<html>bad gateway</html>")

	_, err := New(fake.URL()).GenerateFullResume(context.Background(), sampleRequest())
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "Bad Gateway", apiErr.Detail)
}

func TestClient_SchemaMismatchRejected(t *testing.T) {
	fake := backendtest.New(t)
	fake.FailRaw(pathSuggestions, http.StatusOK, `{"resume_suggestions": "not a list"}`)

	_, err := New(fake.URL()).GenerateResumeSuggestions(context.Background(), sampleRequest())
	require.Error(t, err)
	var vErr *schemas.ValidationError
	assert.ErrorAs(t, err, &vErr)
	assert.False(t, IsAPIError(err))
}
