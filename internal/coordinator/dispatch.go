package coordinator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// Message actions.
const (
	ActionGetCurrentURL    = "getCurrentUrl"
	ActionGetPageContent   = "getPageContent"
	ActionIncrementCredits = "incrementCredits"
	ActionRefreshCredits   = "refreshCredits"
)

// Message is a request from a UI surface, the content shim or an external page.
type Message struct {
	Action  string          `json:"action"`
	TabID   int             `json:"tabId,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is the reply to a Message. Handler failures are reported here, never
// as Go errors.
type Response struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type handlerFunc func(ctx context.Context, msg Message) (any, error)

// externalActions are the actions accepted from pages outside the extension.
var externalActions = map[string]bool{
	ActionRefreshCredits: true,
}

// Dispatch routes msg to its handler.
func (c *Coordinator) Dispatch(ctx context.Context, msg Message) Response {
	h, ok := c.handlers[msg.Action]
	if !ok {
		return Response{Success: false, Error: fmt.Sprintf("unknown action %q", msg.Action)}
	}

	data, err := h(ctx, msg)
	if err != nil {
		c.log.Warn("message handler failed", zap.String("action", msg.Action), zap.Int("tab_id", msg.TabID), zap.Error(err))
		return Response{Success: false, Error: err.Error()}
	}
	return Response{Success: true, Data: data}
}

// DispatchExternal routes a message from an external origin, such as the payment
// success page. Only refreshCredits is accepted.
func (c *Coordinator) DispatchExternal(ctx context.Context, msg Message) Response {
	if !externalActions[msg.Action] {
		c.log.Warn("rejected external message", zap.String("action", msg.Action))
		return Response{Success: false, Error: fmt.Sprintf("action %q is not allowed from external pages", msg.Action)}
	}
	return c.Dispatch(ctx, msg)
}

func (c *Coordinator) handleGetCurrentURL(ctx context.Context, _ Message) (any, error) {
	return c.CurrentURL(ctx)
}

func (c *Coordinator) handleGetPageContent(ctx context.Context, msg Message) (any, error) {
	res, err := c.PageContent(ctx, msg.TabID)
	if err != nil {
		return nil, err
	}
	if !res.Success {
		return nil, errors.New(res.Error)
	}
	return res, nil
}

func (c *Coordinator) handleIncrementCredits(ctx context.Context, _ Message) (any, error) {
	used, err := c.IncrementCredits(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]int{"usedCredits": used}, nil
}

func (c *Coordinator) handleRefreshCredits(_ context.Context, _ Message) (any, error) {
	c.RefreshCredits()
	return nil, nil
}
