package server

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/jonathan/one-click-apply/internal/coordinator"
	"github.com/jonathan/one-click-apply/internal/server/middleware"
)

// keepAliveInterval spaces comments on idle event streams.
const keepAliveInterval = 25 * time.Second

// CheckoutRequest buys a credit package.
type CheckoutRequest struct {
	Package string `json:"package" validate:"required"`
}

// CheckoutResponse carries the payment page URL.
type CheckoutResponse struct {
	URL string `json:"url"`
}

// IdentityResponse carries the browser identity.
type IdentityResponse struct {
	BrowserID string `json:"browserId"`
}

// handleMessage answers a message from an extension surface. Handler failures
// are reported in the body with status 200.
func (s *Server) handleMessage(w http.ResponseWriter, r *http.Request) {
	var msg coordinator.Message
	if err := s.decode(r, &msg); err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, s.Coordinator.Dispatch(r.Context(), msg))
}

func (s *Server) handleExternalMessage(w http.ResponseWriter, r *http.Request) {
	var msg coordinator.Message
	if err := s.decode(r, &msg); err != nil {
		s.errorResponse(w, err)
		return
	}
	if caller, ok := middleware.Caller(r.Context()); ok {
		s.Log.Debug("external message", zap.String("caller", caller), zap.String("action", msg.Action))
	}
	s.jsonResponse(w, http.StatusOK, s.Coordinator.DispatchExternal(r.Context(), msg))
}

// handleEvents streams bus events. With ?tabId=N, tab-scoped events of other
// tabs are dropped; broadcasts always pass.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	filter := 0
	if v := r.URL.Query().Get("tabId"); v != "" {
		id, err := strconv.Atoi(v)
		if err != nil {
			s.errorResponse(w, ErrBadRequest)
			return
		}
		filter = id
	}

	// Subscribe before the headers go out so no event published after the
	// client sees the stream is missed.
	sub, cancel := s.Bus.Subscribe()
	defer cancel()

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, err)
		return
	}

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if err := sse.WriteComment(); err != nil {
				return
			}
		case e, ok := <-sub:
			if !ok {
				return
			}
			if filter != 0 && e.TabID != 0 && e.TabID != filter {
				continue
			}
			if err := sse.WriteEvent(string(e.Type), e); err != nil {
				return
			}
		}
	}
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	b, err := s.Credits.Balance(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, b)
}

func (s *Server) handleCheckout(w http.ResponseWriter, r *http.Request) {
	var req CheckoutRequest
	if err := s.decode(r, &req); err != nil {
		s.errorResponse(w, err)
		return
	}
	url, err := s.Credits.Checkout(r.Context(), req.Package)
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, CheckoutResponse{URL: url})
}

func (s *Server) handleIdentity(w http.ResponseWriter, r *http.Request) {
	id, err := s.Identity.GetOrCreate(r.Context())
	if err != nil {
		s.errorResponse(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, IdentityResponse{BrowserID: id})
}
