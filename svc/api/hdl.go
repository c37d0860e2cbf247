package api

import (
	"encoding/json"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/hlog"
	"golang.org/x/text/unicode/norm"

	"livepaste/cfg"
	"livepaste/pkg/domain"
	"livepaste/svc/hub"
	"livepaste/svc/lim"
	"livepaste/svc/svc"
	"livepaste/svc/util"
)

type Hdl struct {
	paste *svc.Paste
	hub   *hub.Hub
	cfg   *cfg.Cfg
}

type PasteResp struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Deleted bool   `json:"deleted"`
}

// CreatePaste accepts a form body with a text field and redirects the
// browser to the new paste's page.
func (h *Hdl) CreatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())

	if clHeader := r.Header.Get("Content-Length"); clHeader != "" {
		cl, err := strconv.ParseInt(clHeader, 10, 64)
		if err != nil || cl < 0 {
			log.Warn().Str("content_length", clHeader).Msg("invalid Content-Length")
			writeErr(w, domain.ErrInvalidRequest, requestID)
			return
		}
		if cl > h.cfg.MaxPasteSize*2 {
			log.Warn().Int64("content_length", cl).Msg("Content-Length exceeds maximum")
			writeErr(w, domain.ErrPasteTooLarge, requestID)
			return
		}
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPasteSize*2)
	if err := r.ParseForm(); err != nil {
		log.Warn().Err(err).Msg("invalid form body")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	text := r.PostFormValue("text")
	if strings.TrimSpace(text) == "" {
		log.Warn().Msg("empty paste content")
		writeErr(w, domain.ErrContentRequired, requestID)
		return
	}
	if int64(len(text)) > h.cfg.MaxPasteSize {
		log.Warn().Int("content_length", len(text)).Msg("content exceeds maximum size")
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return
	}

	creatorIP := lim.GetRealIP(r, h.cfg.TrustedProxies)
	id, err := h.paste.Create(r.Context(), text, creatorIP)
	if err != nil {
		log.Error().Err(err).Msg("failed to create paste")
		writeErr(w, err, requestID)
		return
	}
	log.Info().Str("paste_id", id).Msg("paste created")
	http.Redirect(w, r, "/"+id, http.StatusSeeOther)
}

// GetPasteJSON serves the API representation with the derived
// deletion status.
func (h *Hdl) GetPasteJSON(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")

	text, deleted, err := h.paste.Get(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("get failed")
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(PasteResp{ID: id, Text: text, Deleted: deleted})
}

// ViewPaste checks the paste exists and serves the editor page; the
// page itself loads content over the API and the websocket.
func (h *Hdl) ViewPaste(w http.ResponseWriter, r *http.Request) {
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	if _, err := h.paste.Content(r.Context(), id); err != nil {
		writeErr(w, err, requestID)
		return
	}
	h.serveAsset(w, "view.html", "text/html; charset=utf-8")
}

// UpdatePaste takes the raw request body as the new text and pushes
// the update to every live websocket session for the id.
func (h *Hdl) UpdatePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")

	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxPasteSize+1)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeErr(w, domain.ErrPasteTooLarge, requestID)
			return
		}
		log.Warn().Err(err).Msg("failed to read body")
		writeErr(w, domain.ErrInvalidRequest, requestID)
		return
	}
	text := string(body)
	if strings.TrimSpace(text) == "" {
		writeErr(w, domain.ErrContentRequired, requestID)
		return
	}
	if int64(len(text)) > h.cfg.MaxPasteSize {
		writeErr(w, domain.ErrPasteTooLarge, requestID)
		return
	}

	editorIP := lim.GetRealIP(r, h.cfg.TrustedProxies)
	if err := h.paste.Update(r.Context(), id, text, editorIP); err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("update failed")
		writeErr(w, err, requestID)
		return
	}
	h.hub.Broadcast(id, hub.TextMsg("update", text), nil)
	log.Info().Str("paste_id", id).Msg("paste updated")
	json.NewEncoder(w).Encode(map[string]string{"status": "updated"})
}

// History serves the newest-first representative view.
func (h *Hdl) History(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	entries, err := h.paste.History(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("failed to read history")
		writeErr(w, domain.ErrInternalServer, requestID)
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	json.NewEncoder(w).Encode(entries)
}

// HistoryByID serves the full trail for one id, 404 when there is
// none (including ids pruned by the retention cap).
func (h *Hdl) HistoryByID(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")
	entries, err := h.paste.HistoryByID(r.Context(), id)
	if err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("history read failed")
		writeErr(w, err, requestID)
		return
	}
	if len(entries) == 0 {
		writeErr(w, domain.ErrHistoryNotFound, requestID)
		return
	}
	json.NewEncoder(w).Encode(entries)
}

// DeletePaste appends a delete marker. The optional note travels into
// the audit trail, sanitized the same way as any user-visible string.
func (h *Hdl) DeletePaste(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)
	requestID := util.GetRequestID(r.Context())
	id := chi.URLParam(r, "id")

	note := r.URL.Query().Get("note")
	if note == "" {
		r.Body = http.MaxBytesReader(w, r.Body, 64*1024)
		if err := r.ParseForm(); err == nil {
			note = r.PostFormValue("note")
		}
	}
	deleterIP := lim.GetRealIP(r, h.cfg.TrustedProxies)
	if err := h.paste.Delete(r.Context(), id, deleterIP, sanitizeNote(note)); err != nil {
		log.Warn().Err(err).Str("paste_id", id).Msg("delete failed")
		writeErr(w, err, requestID)
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
}

func writeErr(w http.ResponseWriter, err error, requestID string) {
	statusCode := domain.Status(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	errorMsg := domain.ToResp(err).Error.Msg
	if statusCode >= 500 {
		errorMsg = "internal server error"
		util.Error().
			Err(err).
			Str("request_id", requestID).
			Msg("internal error with detailed info")
	}
	json.NewEncoder(w).Encode(map[string]string{
		"error":      errorMsg,
		"request_id": requestID,
	})
}

// sanitizeNote normalizes and strips control characters from the
// free-text delete note before it reaches the audit trail. Paste text
// itself is never rewritten; round-tripping it byte-exact is part of
// the store's contract.
func sanitizeNote(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFC.String(s)
	if !utf8.ValidString(s) {
		v := make([]rune, 0, len(s))
		for _, r := range s {
			if r != utf8.RuneError {
				v = append(v, r)
			}
		}
		s = string(v)
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == '\t' {
			return r
		}
		if r < 32 || r == 127 {
			return -1
		}
		return r
	}, s)
	return html.EscapeString(s)
}
