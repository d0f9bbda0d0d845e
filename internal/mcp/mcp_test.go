package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/db"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/hpungsan/transferbot/internal/transfer"
)

const listing = "18:05\nTK1710\nFunda Kara"

var wantTable = transfer.Header + "\n18:05\t\tTK1710\tFunda Kara"

// testSetup creates a temporary database and config for testing.
func testSetup(t *testing.T) (session.Backend, *config.Config) {
	t.Helper()

	database, err := db.Init(t.TempDir())
	if err != nil {
		t.Fatalf("failed to init db: %v", err)
	}
	store := db.NewStore(database)
	t.Cleanup(func() { store.Close() })

	cfg := config.DefaultConfig()
	cfg.AllowUnsafePaths = true // Allow temp dirs in tests

	return store, cfg
}

// makeRequest creates a CallToolRequest with the given arguments.
func makeRequest(args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Arguments: args,
		},
	}
}

func TestHandleExtract(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg, nil)
	ctx := context.Background()

	tests := []struct {
		name      string
		args      map[string]any
		wantError string
		wantTable string
	}{
		{
			name:      "text",
			args:      map[string]any{"text": listing},
			wantTable: wantTable,
		},
		{
			name:      "with bom",
			args:      map[string]any{"text": listing, "include_bom": true},
			wantTable: transfer.BOM + wantTable,
		},
		{
			name:      "no time",
			args:      map[string]any{"text": "Funda Kara"},
			wantTable: transfer.Header,
		},
		{
			name:      "unknown policy",
			args:      map[string]any{"text": listing, "policy": "sideways"},
			wantError: "INVALID_REQUEST",
		},
		{
			name:      "bad pattern type",
			args:      map[string]any{"text": listing, "drop_lines_matching": 3},
			wantError: "INVALID_REQUEST",
		},
		{
			name:      "text and path",
			args:      map[string]any{"text": listing, "path": "/tmp/x.txt"},
			wantError: "INVALID_REQUEST",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleExtract(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if tt.wantError != "" {
				if !result.IsError {
					t.Fatalf("expected error %s", tt.wantError)
				}
				assertErrorCode(t, result, tt.wantError)
				return
			}
			output := parseOutput(t, result)
			if output["table"] != tt.wantTable {
				t.Errorf("table = %q, want %q", output["table"], tt.wantTable)
			}
		})
	}
}

func TestHandleExtract_Path(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg, nil)

	path := filepath.Join(t.TempDir(), "monday.txt")
	if err := os.WriteFile(path, []byte(listing), 0600); err != nil {
		t.Fatal(err)
	}

	result, err := h.HandleExtract(context.Background(), makeRequest(map[string]any{"path": path}))
	if err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	output := parseOutput(t, result)
	if output["table"] != wantTable {
		t.Errorf("table = %q, want %q", output["table"], wantTable)
	}

	result, _ = h.HandleExtract(context.Background(), makeRequest(map[string]any{"path": path + ".missing.txt"}))
	assertErrorCode(t, result, "FILE_NOT_FOUND")
}

func TestSessionTools(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg, nil)
	ctx := context.Background()
	id := "chat-42"

	for _, chunk := range strings.Split(listing, "\n") {
		result, err := h.HandleAdd(ctx, makeRequest(map[string]any{"session_id": id, "text": chunk}))
		if err != nil {
			t.Fatalf("add returned error: %v", err)
		}
		parseOutput(t, result)
	}

	result, _ := h.HandleFinish(ctx, makeRequest(map[string]any{"session_id": id}))
	fin := parseOutput(t, result)
	if fin["table"] != wantTable {
		t.Errorf("finish table = %q, want %q", fin["table"], wantTable)
	}
	if runID, _ := fin["run_id"].(string); len(runID) != 26 {
		t.Errorf("run_id = %q, want a ULID", runID)
	}

	result, _ = h.HandleShow(ctx, makeRequest(map[string]any{"session_id": id}))
	shown := parseOutput(t, result)
	if shown["buffer"] != listing {
		t.Errorf("buffer = %q, want %q", shown["buffer"], listing)
	}
	if shown["last_result"] != wantTable {
		t.Errorf("last_result = %q", shown["last_result"])
	}

	result, _ = h.HandleHistory(ctx, makeRequest(map[string]any{"session_id": id}))
	hist := parseOutput(t, result)
	if runs, _ := hist["runs"].([]any); len(runs) != 1 {
		t.Errorf("history runs = %v, want 1", hist["runs"])
	}

	result, _ = h.HandleList(ctx, makeRequest(map[string]any{}))
	list := parseOutput(t, result)
	if items, _ := list["items"].([]any); len(items) != 1 {
		t.Errorf("list items = %v, want 1", list["items"])
	}

	exportPath := filepath.Join(t.TempDir(), "out.tsv")
	result, _ = h.HandleExport(ctx, makeRequest(map[string]any{"session_id": id, "path": exportPath}))
	parseOutput(t, result)
	data, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if string(data) != transfer.BOM+wantTable {
		t.Errorf("export = %q", data)
	}

	result, _ = h.HandleReset(ctx, makeRequest(map[string]any{"session_id": id}))
	parseOutput(t, result)

	result, _ = h.HandleShow(ctx, makeRequest(map[string]any{"session_id": id}))
	shown = parseOutput(t, result)
	if shown["buffer"] != "" || shown["last_result"] != "" {
		t.Errorf("reset left %v", shown)
	}

	result, _ = h.HandleExport(ctx, makeRequest(map[string]any{"session_id": id, "path": exportPath}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestHandleAdd_Errors(t *testing.T) {
	store, cfg := testSetup(t)
	cfg.MaxInputChars = 10
	h := NewHandlers(store, cfg, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		args map[string]any
		code string
	}{
		{"missing session", map[string]any{"text": "18:05"}, "INVALID_REQUEST"},
		{"blank session", map[string]any{"session_id": "  ", "text": "18:05"}, "INVALID_REQUEST"},
		{"empty text", map[string]any{"session_id": "s", "text": ""}, "INVALID_REQUEST"},
		{"too large", map[string]any{"session_id": "s", "text": "18:05 TK1710 Funda"}, "INPUT_TOO_LARGE"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := h.HandleAdd(ctx, makeRequest(tt.args))
			if err != nil {
				t.Fatalf("handler returned error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected error result")
			}
			assertErrorCode(t, result, tt.code)
		})
	}
}

func TestHandleShow_NotFound(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg, nil)

	result, _ := h.HandleShow(context.Background(), makeRequest(map[string]any{"session_id": "nobody"}))
	assertErrorCode(t, result, "NOT_FOUND")
}

func TestHandleFinish_Cancelled(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	if _, err := h.HandleAdd(ctx, makeRequest(map[string]any{"session_id": "s", "text": listing})); err != nil {
		t.Fatal(err)
	}
	cancel()

	result, _ := h.HandleFinish(ctx, makeRequest(map[string]any{"session_id": "s"}))
	if !result.IsError {
		t.Fatal("expected error for cancelled context")
	}
}

func TestHandlePurge(t *testing.T) {
	store, cfg := testSetup(t)
	h := NewHandlers(store, cfg, nil)
	ctx := context.Background()

	if _, err := h.HandleAdd(ctx, makeRequest(map[string]any{"session_id": "old", "text": listing})); err != nil {
		t.Fatal(err)
	}

	result, _ := h.HandlePurge(ctx, makeRequest(map[string]any{}))
	out := parseOutput(t, result)
	if out["purged"] != float64(0) {
		t.Errorf("default purge removed %v, want 0", out["purged"])
	}

	result, _ = h.HandlePurge(ctx, makeRequest(map[string]any{"older_than_days": 0}))
	out = parseOutput(t, result)
	if out["purged"] != float64(1) {
		t.Errorf("purge all removed %v, want 1", out["purged"])
	}

	result, _ = h.HandleShow(ctx, makeRequest(map[string]any{"session_id": "old"}))
	assertErrorCode(t, result, "NOT_FOUND")

	result, _ = h.HandlePurge(ctx, makeRequest(map[string]any{"older_than_days": -3}))
	assertErrorCode(t, result, "INVALID_REQUEST")
}

func TestServerRegistration(t *testing.T) {
	store, cfg := testSetup(t)

	s := NewServer(store, cfg, nil, "test")
	tools := s.ListTools()
	if tools == nil {
		t.Fatal("expected tools to be registered, got nil")
	}

	expectedTools := []string{
		"transfer_extract",
		"transfer_add",
		"transfer_finish",
		"transfer_reset",
		"transfer_show",
		"transfer_list",
		"transfer_history",
		"transfer_export",
		"transfer_purge",
	}

	if len(tools) != len(expectedTools) {
		t.Errorf("registered tool count = %d, want %d", len(tools), len(expectedTools))
	}

	for _, name := range expectedTools {
		if _, ok := tools[name]; !ok {
			t.Errorf("missing registered tool: %s", name)
		}
	}
}

func TestServerRegistration_WithDisabledTools(t *testing.T) {
	store, cfg := testSetup(t)

	cfg.DisabledTools = []string{"transfer_purge", "transfer_export", "transfer_purge", "nonsense"}
	s := NewServer(store, cfg, nil, "test")
	tools := s.ListTools()

	if len(tools) != 7 {
		t.Errorf("registered tool count = %d, want 7", len(tools))
	}
	for _, name := range []string{"transfer_purge", "transfer_export"} {
		if _, ok := tools[name]; ok {
			t.Errorf("disabled tool %q should not be registered", name)
		}
	}
	for _, name := range []string{"transfer_extract", "transfer_add", "transfer_finish"} {
		if _, ok := tools[name]; !ok {
			t.Errorf("core tool %q should be registered", name)
		}
	}
}

func TestServerRegistration_AllToolsDisabled(t *testing.T) {
	store, cfg := testSetup(t)

	cfg.DisabledTools = AllToolNames()
	s := NewServer(store, cfg, nil, "test")
	if tools := s.ListTools(); len(tools) != 0 {
		t.Errorf("registered tool count = %d, want 0 (all disabled)", len(tools))
	}
}

func TestValidateDisabledTools(t *testing.T) {
	tests := []struct {
		name    string
		input   []string
		wantLen int
	}{
		{
			name:    "all valid",
			input:   []string{"transfer_purge", "transfer_reset"},
			wantLen: 0,
		},
		{
			name:    "one unknown",
			input:   []string{"transfer_purge", "transfer_delete"},
			wantLen: 1,
		},
		{
			name:    "empty list",
			input:   []string{},
			wantLen: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unknown := ValidateDisabledTools(tt.input)
			if len(unknown) != tt.wantLen {
				t.Errorf("ValidateDisabledTools() returned %d unknown, want %d", len(unknown), tt.wantLen)
			}
		})
	}
}

func TestAllToolNames(t *testing.T) {
	names := AllToolNames()
	if len(names) != 9 {
		t.Errorf("AllToolNames() returned %d names, want 9", len(names))
	}
	if unknown := ValidateDisabledTools(names); len(unknown) != 0 {
		t.Errorf("AllToolNames() returned invalid names: %v", unknown)
	}
	if names[0] != "transfer_add" {
		t.Errorf("AllToolNames() not sorted: %v", names)
	}
}

func TestErrorResult_InternalDoesNotExposeDetails(t *testing.T) {
	r := errorResult(errors.NewInternal(fmt.Errorf("sql error: open /tmp/secret.db: permission denied")))
	if !r.IsError {
		t.Fatal("expected IsError=true")
	}

	errObj := errorObject(t, r)
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrInternal)
	}
	if strings.Contains(errObj["message"].(string), "secret.db") {
		t.Fatal("expected INTERNAL errors to hide the cause")
	}
	if _, ok := errObj["details"]; ok {
		t.Fatal("expected INTERNAL errors to omit details")
	}
}

func TestErrorResult_PlainErrorIsInternal(t *testing.T) {
	errObj := errorObject(t, errorResult(fmt.Errorf("boom")))
	if errObj["code"] != string(errors.ErrInternal) {
		t.Fatalf("code=%v, want INTERNAL", errObj["code"])
	}
}

func TestErrorResult_WrappedErrorPreservesContext(t *testing.T) {
	wrappedErr := fmt.Errorf("chunk 2: %w", errors.NewInputTooLarge(10, 12))

	errObj := errorObject(t, errorResult(wrappedErr))
	if errObj["code"] != string(errors.ErrInputTooLarge) {
		t.Errorf("code=%v, want %v", errObj["code"], errors.ErrInputTooLarge)
	}
	msg := errObj["message"].(string)
	if !strings.HasPrefix(msg, "chunk 2: input exceeds") {
		t.Errorf("message should keep wrapper context, got: %s", msg)
	}
}

func TestErrorResult_NonInternalIncludesDetails(t *testing.T) {
	errObj := errorObject(t, errorResult(errors.NewNotFound("abc")))
	if errObj["code"] != string(errors.ErrNotFound) {
		t.Fatalf("code=%v, want %v", errObj["code"], errors.ErrNotFound)
	}
	if _, ok := errObj["details"]; !ok {
		t.Fatal("expected non-INTERNAL errors to include details when present")
	}
}

// Helper functions

// parseOutput extracts and unmarshals the JSON output from an MCP result.
func parseOutput(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	if result.IsError {
		t.Fatalf("expected success, got error: %v", extractErrorMessage(result))
	}
	var output map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &output); err != nil {
		t.Fatalf("failed to unmarshal response: %v", err)
	}
	return output
}

func errorObject(t *testing.T, result *mcp.CallToolResult) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal([]byte(result.Content[0].(mcp.TextContent).Text), &payload); err != nil {
		t.Fatalf("failed to unmarshal error payload: %v", err)
	}
	errObj, ok := payload["error"].(map[string]any)
	if !ok {
		t.Fatal("no error object in payload")
	}
	return errObj
}

func assertErrorCode(t *testing.T, result *mcp.CallToolResult, expectedCode string) {
	t.Helper()

	if len(result.Content) == 0 {
		t.Errorf("no content in error result")
		return
	}
	if !result.IsError {
		t.Errorf("expected error %s, got success: %s", expectedCode, extractErrorMessage(result))
		return
	}

	code, _ := errorObject(t, result)["code"].(string)
	if code != expectedCode {
		t.Errorf("got error code %q, want %q", code, expectedCode)
	}
}

func extractErrorMessage(result *mcp.CallToolResult) string {
	if len(result.Content) == 0 {
		return "<no content>"
	}

	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		return "<not text content>"
	}

	return text.Text
}
