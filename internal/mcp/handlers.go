package mcp

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/ops"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/hpungsan/transferbot/pkg/logger"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	store session.Backend
	cfg   *config.Config
	log   *logger.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store session.Backend, cfg *config.Config, log *logger.Logger) *Handlers {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Handlers{store: store, cfg: cfg, log: log.Named("mcp")}
}

// Request types for each tool

// ExtractRequest represents the arguments for transfer_extract.
type ExtractRequest struct {
	Text string `json:"text,omitempty"`
	Path string `json:"path,omitempty"`
	ops.RunSettings
}

// AddRequest represents the arguments for transfer_add.
type AddRequest struct {
	SessionID string `json:"session_id"`
	Text      string `json:"text"`
}

// FinishRequest represents the arguments for transfer_finish.
type FinishRequest struct {
	SessionID string `json:"session_id"`
	ops.RunSettings
}

// SessionRequest represents the arguments for tools addressing one session.
type SessionRequest struct {
	SessionID string `json:"session_id"`
}

// ListRequest represents the arguments for transfer_list.
type ListRequest struct {
	Limit  int `json:"limit,omitempty"`
	Offset int `json:"offset,omitempty"`
}

// HistoryRequest represents the arguments for transfer_history.
type HistoryRequest struct {
	SessionID string `json:"session_id"`
	Limit     int    `json:"limit,omitempty"`
}

// ExportRequest represents the arguments for transfer_export.
type ExportRequest struct {
	SessionID string `json:"session_id"`
	Path      string `json:"path,omitempty"`
}

// PurgeRequest represents the arguments for transfer_purge.
type PurgeRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// Handler implementations

// HandleExtract handles the transfer_extract tool call.
func (h *Handlers) HandleExtract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExtractRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Extract(ctx, h.cfg, ops.ExtractInput{
		Text:        input.Text,
		Path:        input.Path,
		RunSettings: input.RunSettings,
	})
	if err != nil {
		return errorResult(err), nil
	}

	h.logIncomplete("", result.Conversion)
	return successResult(result)
}

// HandleAdd handles the transfer_add tool call.
func (h *Handlers) HandleAdd(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[AddRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Add(ctx, h.store, h.cfg, ops.AddInput{
		SessionID: input.SessionID,
		Text:      input.Text,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFinish handles the transfer_finish tool call.
func (h *Handlers) HandleFinish(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FinishRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Finish(ctx, h.store, h.cfg, ops.FinishInput{
		SessionID:   input.SessionID,
		RunSettings: input.RunSettings,
	})
	if err != nil {
		return errorResult(err), nil
	}

	h.logIncomplete(result.SessionID, result.Conversion)
	return successResult(result)
}

// HandleReset handles the transfer_reset tool call.
func (h *Handlers) HandleReset(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Reset(ctx, h.store, ops.ResetInput{SessionID: input.SessionID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleShow handles the transfer_show tool call.
func (h *Handlers) HandleShow(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SessionRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Show(ctx, h.store, ops.ShowInput{SessionID: input.SessionID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleList handles the transfer_list tool call.
func (h *Handlers) HandleList(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ListRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.List(ctx, h.store, ops.ListInput{
		Limit:  input.Limit,
		Offset: input.Offset,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleHistory handles the transfer_history tool call.
func (h *Handlers) HandleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[HistoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.History(ctx, h.store, ops.HistoryInput{
		SessionID: input.SessionID,
		Limit:     input.Limit,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExport handles the transfer_export tool call.
func (h *Handlers) HandleExport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Export(ctx, h.store, h.cfg, ops.ExportInput{
		SessionID: input.SessionID,
		Path:      input.Path,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurge handles the transfer_purge tool call.
func (h *Handlers) HandlePurge(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := ops.Purge(ctx, h.store, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

func (h *Handlers) logIncomplete(sessionID string, conv ops.Conversion) {
	for _, inc := range conv.Incomplete {
		h.log.Warn("Incomplete transfer record",
			logger.String("session_id", sessionID),
			logger.Int("line", inc.Line),
			logger.Strings("missing", inc.Missing))
	}
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// Note: Internal error details are not exposed to prevent leaking sensitive info.
func errorResult(err error) *mcp.CallToolResult {
	var payload map[string]any

	var tErr *errors.TransferError
	if stderrors.As(err, &tErr) && tErr.Code != errors.ErrInternal {
		message := tErr.Message
		// Keep context added by wrappers, e.g. "items[2]: ...".
		if outer := err.Error(); outer != tErr.Error() {
			message = strings.Replace(outer, tErr.Error(), tErr.Message, 1)
		}
		errorObj := map[string]any{
			"code":    tErr.Code,
			"message": message,
			"status":  tErr.Status,
		}
		if tErr.Details != nil {
			errorObj["details"] = tErr.Details
		}
		payload = map[string]any{"error": errorObj}
	} else {
		payload = map[string]any{
			"error": map[string]any{
				"code":    errors.ErrInternal,
				"message": "an internal error occurred",
				"status":  500,
			},
		}
	}

	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
