package api

import (
	"net/http"

	"livepaste/svc/util"
	"livepaste/web"
)

// serveAsset writes one of the embedded UI files. The embedded set is
// fixed at build time, so a missing name is a programming error.
func (h *Hdl) serveAsset(w http.ResponseWriter, name, contentType string) {
	data, err := web.Assets.ReadFile(name)
	if err != nil {
		util.Error().Err(err).Str("asset", name).Msg("embedded asset missing")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Write(data)
}

func (h *Hdl) Index(w http.ResponseWriter, r *http.Request) {
	h.serveAsset(w, "index.html", "text/html; charset=utf-8")
}

func (h *Hdl) HistoryPage(w http.ResponseWriter, r *http.Request) {
	h.serveAsset(w, "history.html", "text/html; charset=utf-8")
}

// staticAsset binds an embedded file name to a handler so the router
// can mount each asset at a stable path.
func (h *Hdl) staticAsset(name, contentType string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.serveAsset(w, name, contentType)
	}
}
