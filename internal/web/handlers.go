package web

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/errors"
	"github.com/hpungsan/transferbot/internal/ops"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/hpungsan/transferbot/internal/transfer"
	"github.com/hpungsan/transferbot/pkg/logger"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store    session.Backend
	cfg      *config.Config
	renderer *Renderer
	log      *logger.Logger
}

// submission is the body accepted by the POST endpoints, either as form
// fields or as a JSON object.
type submission struct {
	Text   string `json:"text"`
	Policy string `json:"policy"`
}

func policyNames() []string {
	out := make([]string, 0, 3)
	for _, p := range transfer.Policies() {
		out = append(out, string(p))
	}
	return out
}

// HandleIndex renders the session page, or the session as JSON.
func (h *Handlers) HandleIndex(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	shown, err := ops.Show(r.Context(), h.store, ops.ShowInput{SessionID: id})
	if err != nil {
		if !errors.Is(err, errors.ErrNotFound) {
			h.renderer.renderError(w, r, err)
			return
		}
		shown = &ops.ShowOutput{SessionID: id}
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, shown)
		return
	}

	h.renderer.renderPage(w, "index", IndexPageData{
		PageData:    h.renderer.page("Session", "session"),
		SessionID:   shown.SessionID,
		Buffer:      shown.Buffer,
		BufferChars: shown.BufferChars,
		BufferLines: shown.BufferLines,
		LastResult:  strings.TrimPrefix(shown.LastResult, transfer.BOM),
		UpdatedAt:   shown.UpdatedAt,
		Policies:    policyNames(),
		Policy:      h.cfg.Policy,
	})
}

// HandleAdd appends a chunk of text to the session buffer.
func (h *Handlers) HandleAdd(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	sub, err := readSubmission(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	out, err := ops.Add(r.Context(), h.store, h.cfg, ops.AddInput{SessionID: id, Text: sub.Text})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleFinish converts the session buffer and stores the table.
func (h *Handlers) HandleFinish(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	sub, err := readSubmission(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	out, err := ops.Finish(r.Context(), h.store, h.cfg, ops.FinishInput{
		SessionID:   id,
		RunSettings: ops.RunSettings{Policy: sub.Policy},
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	h.log.Debug("Session finished",
		logger.String("session_id", id),
		logger.Int("records", len(out.Records)),
		logger.Int("incomplete", len(out.Incomplete)))

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleReset clears the session buffer and last result.
func (h *Handlers) HandleReset(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	out, err := ops.Reset(r.Context(), h.store, ops.ResetInput{SessionID: id})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// HandleResult downloads the last result as a spreadsheet-ready TSV.
func (h *Handlers) HandleResult(w http.ResponseWriter, r *http.Request) {
	id := sessionID(w, r)

	shown, err := ops.Show(r.Context(), h.store, ops.ShowInput{SessionID: id})
	if err != nil && !errors.Is(err, errors.ErrNotFound) {
		h.renderer.renderError(w, r, err)
		return
	}
	if shown == nil || shown.LastResult == "" {
		h.renderer.renderError(w, r, errors.NewInvalidRequest("no result yet; finish the session first"))
		return
	}

	filename := fmt.Sprintf("transfers-%s.tsv", time.Now().UTC().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/tab-separated-values; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	_, _ = io.WriteString(w, transfer.BOM+strings.TrimPrefix(shown.LastResult, transfer.BOM))
}

// HandleConvertForm renders the empty one-shot convert page.
func (h *Handlers) HandleConvertForm(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, "convert", ConvertPageData{
		PageData: h.renderer.page("Convert", "convert"),
		Policies: policyNames(),
		Policy:   h.cfg.Policy,
	})
}

// HandleConvert converts submitted text without touching any session.
func (h *Handlers) HandleConvert(w http.ResponseWriter, r *http.Request) {
	sub, err := readSubmission(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	out, err := ops.Extract(r.Context(), h.cfg, ops.ExtractInput{
		Text:        sub.Text,
		RunSettings: ops.RunSettings{Policy: sub.Policy},
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, out.Conversion)
		return
	}

	incomplete := make([]string, 0, len(out.Incomplete))
	for _, inc := range out.Incomplete {
		incomplete = append(incomplete, fmt.Sprintf("line %d: missing %s", inc.Line, strings.Join(inc.Missing, ", ")))
	}

	policy := sub.Policy
	if policy == "" {
		policy = string(out.Policy)
	}
	h.renderer.renderPage(w, "convert", ConvertPageData{
		PageData:   h.renderer.page("Convert", "convert"),
		Input:      sub.Text,
		Table:      strings.TrimPrefix(out.Table, transfer.BOM),
		Records:    len(out.Records),
		Incomplete: incomplete,
		Hint:       out.Hint,
		Policies:   policyNames(),
		Policy:     policy,
	})
}

// HandleConvertText converts submitted text and returns the bare table.
func (h *Handlers) HandleConvertText(w http.ResponseWriter, r *http.Request) {
	sub, err := readSubmission(r)
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	out, err := ops.Extract(r.Context(), h.cfg, ops.ExtractInput{
		Text:        sub.Text,
		RunSettings: ops.RunSettings{Policy: sub.Policy},
	})
	if err != nil {
		h.renderer.renderError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, out.Table)
}

// HandleHealth reports liveness.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if wantsJSON(r) {
		renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

// HandleHelp renders the usage notes.
func (h *Handlers) HandleHelp(w http.ResponseWriter, r *http.Request) {
	h.renderer.renderPage(w, "help", HelpPageData{
		PageData: h.renderer.page("Help", "help"),
		Body:     renderMarkdown(helpMarkdown),
	})
}

// readSubmission decodes a JSON, plain-text, or form body.
func readSubmission(r *http.Request) (submission, error) {
	var sub submission

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := json.NewDecoder(r.Body).Decode(&sub); err != nil {
			if tooLarge(err) {
				return sub, errBodyTooLarge(err)
			}
			return sub, errors.NewInvalidRequest(fmt.Sprintf("invalid JSON body: %v", err))
		}
	case "text/plain":
		data, err := io.ReadAll(r.Body)
		if err != nil {
			if tooLarge(err) {
				return sub, errBodyTooLarge(err)
			}
			return sub, errors.NewInvalidRequest(fmt.Sprintf("read body: %v", err))
		}
		sub.Text = string(data)
		sub.Policy = r.URL.Query().Get("policy")
	default:
		if err := r.ParseForm(); err != nil {
			if tooLarge(err) {
				return sub, errBodyTooLarge(err)
			}
			return sub, errors.NewInvalidRequest(fmt.Sprintf("invalid form: %v", err))
		}
		sub.Text = r.PostForm.Get("text")
		sub.Policy = r.Form.Get("policy")
	}

	sub.Policy = strings.TrimSpace(sub.Policy)
	return sub, nil
}

func tooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return stderrors.As(err, &mbe)
}

func errBodyTooLarge(err error) *errors.TransferError {
	var mbe *http.MaxBytesError
	limit := int64(0)
	if stderrors.As(err, &mbe) {
		limit = mbe.Limit
	}
	return &errors.TransferError{
		Code:    errors.ErrInputTooLarge,
		Status:  http.StatusRequestEntityTooLarge,
		Message: fmt.Sprintf("request body exceeds %d bytes", limit),
		Details: map[string]any{"max_bytes": limit},
	}
}

func errNotFoundRoute(path string) *errors.TransferError {
	return &errors.TransferError{
		Code:    errors.ErrNotFound,
		Status:  http.StatusNotFound,
		Message: fmt.Sprintf("page not found: %s", path),
		Details: map[string]any{"path": path},
	}
}
