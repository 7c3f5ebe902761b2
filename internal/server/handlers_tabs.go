package server

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/session"
	"github.com/jonathan/one-click-apply/internal/tabs"
	"github.com/jonathan/one-click-apply/internal/types"
)

// GenerateRequest starts a generation session.
type GenerateRequest struct {
	JobPostingContent string `json:"jobPostingContent,omitempty" validate:"max=300000"`
}

// QuestionRequest asks one application question.
type QuestionRequest struct {
	Question               string `json:"question" validate:"required,max=2000"`
	AdditionalRequirements string `json:"additionalRequirements,omitempty" validate:"max=2000"`
}

// PanelResponse reports the side-panel state of a tab.
type PanelResponse struct {
	TabID int             `json:"tabId"`
	State tabs.PanelState `json:"state"`
}

// resolveTab returns the {id} tab; zero selects the active tab.
func (s *Server) resolveTab(ctx context.Context, r *http.Request) (int, error) {
	id, err := tabID(r)
	if err != nil {
		return 0, err
	}
	if id != 0 {
		return id, nil
	}
	cur, err := s.Coordinator.CurrentURL(ctx)
	if err != nil {
		return 0, err
	}
	return cur.TabID, nil
}

func (s *Server) handleListTabs(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.Coordinator.Tabs())
}

func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolveTab(r.Context(), r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, PanelResponse{TabID: id, State: s.Coordinator.PanelState(id)})
}

func (s *Server) handlePutPage(w http.ResponseWriter, r *http.Request) {
	id, err := tabID(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	var page tabs.Page
	if err := s.decode(r, &page); err != nil {
		s.errorResponse(w, err)
		return
	}
	if err := s.Coordinator.SetPage(id, page); err != nil {
		s.errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolveTab(r.Context(), r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	res, ok, err := s.Data.Result(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolveTab(r.Context(), r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.Sessions.Tracker().Get(id))
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	id, err := tabID(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	var req GenerateRequest
	if err := s.decodeOptional(r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}

	res, err := s.Sessions.Run(r.Context(), id, session.Options{JobPostingContent: req.JobPostingContent})
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

// handleGenerateStream runs a session and streams each stage as a "progress"
// event, then a "result" or "error" event.
func (s *Server) handleGenerateStream(w http.ResponseWriter, r *http.Request) {
	id, err := tabID(r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	var req GenerateRequest
	if err := s.decodeOptional(r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	res, err := s.Sessions.Run(r.Context(), id, session.Options{
		JobPostingContent: req.JobPostingContent,
		OnProgress: func(p types.GenerationProgress) {
			if err := sse.WriteEvent("progress", p); err != nil {
				s.Log.Warn("failed to write progress event", zap.Error(err))
			}
		},
	})
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	if err := sse.WriteEvent("result", res); err != nil {
		s.Log.Warn("failed to write result event", zap.Error(err))
	}
}

func (s *Server) handleListQuestions(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolveTab(r.Context(), r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	list, err := s.Questions.List(r.Context(), id)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if list == nil {
		list = []types.AnsweredQuestion{}
	}
	s.jsonResponse(w, http.StatusOK, list)
}

func (s *Server) handleAnswerQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolveTab(r.Context(), r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	var req QuestionRequest
	if err := s.decode(r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}
	q, err := s.Questions.Answer(r.Context(), id, req.Question, req.AdditionalRequirements)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, q)
}

func (s *Server) handleDeleteQuestion(w http.ResponseWriter, r *http.Request) {
	id, err := s.resolveTab(r.Context(), r)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	if err := s.Questions.Delete(r.Context(), id, r.PathValue("qid")); err != nil {
		s.errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleHostEvent(w http.ResponseWriter, r *http.Request) {
	var e coordinator.Event
	if err := s.decode(r, &e); err != nil {
		s.errorResponse(w, err)
		return
	}
	if err := s.Coordinator.HandleEvent(r.Context(), e); err != nil {
		s.errorResponse(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
