package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/hlog"

	"livepaste/cfg"
	"livepaste/svc/hub"
	"livepaste/svc/lim"
	"livepaste/svc/svc"
	"livepaste/svc/util"
	"livepaste/svc/ws"
)

type Server struct {
	router     *chi.Mux
	paste      *svc.Paste
	hub        *hub.Hub
	engine     *ws.Engine
	lim        *lim.Limiter
	cfg        *cfg.Cfg
	httpServer *http.Server
}

func NewServer(c *cfg.Cfg, p *svc.Paste, h *hub.Hub, engine *ws.Engine, l *lim.Limiter) *Server {
	r := chi.NewRouter()
	mw := NewMw(l, c)
	s := &Server{
		router: r,
		paste:  p,
		hub:    h,
		engine: engine,
		lim:    l,
		cfg:    c,
		httpServer: &http.Server{
			Addr:           ":" + c.Port,
			Handler:        r,
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   0, // websocket sessions outlive any fixed response window
			IdleTimeout:    60 * time.Second,
			MaxHeaderBytes: 256 * 1024,
		},
	}
	hdl := &Hdl{paste: p, hub: h, cfg: c}

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Get("/health", s.Health)
		r.Get("/ready", s.Ready)
	})
	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Handle("/metrics", mw.BasicAuthMetrics(promhttp.Handler()))
	})

	r.Group(func(r chi.Router) {
		r.Use(mw.Recoverer)
		r.Use(mw.RequestID)
		r.Use(hlog.NewHandler(util.GetLogger()))
		r.Use(hlog.AccessHandler(func(req *http.Request, status, size int, dur time.Duration) {
			hlog.FromRequest(req).Info().
				Str("method", req.Method).
				Str("url", req.URL.String()).
				Int("status", status).
				Int("size", size).
				Dur("duration", dur).
				Str("request_id", util.GetRequestID(req.Context())).
				Msg("http request")
		}))
		if len(c.TrustedProxies) > 0 {
			r.Use(middleware.RealIP)
		}
		r.Use(mw.SecurityHeaders)
		r.Use(mw.CORS)

		// The websocket route stays outside the context-timeout group;
		// a session holds its goroutine for as long as the peer edits.
		r.Get("/ws/{id:[0-9]{5}}", engine.Handle)

		r.Get("/", hdl.Index)
		r.Get("/history", hdl.HistoryPage)
		r.Get("/app.js", hdl.staticAsset("app.js", "application/javascript; charset=utf-8"))
		r.Get("/history.js", hdl.staticAsset("history.js", "application/javascript; charset=utf-8"))
		r.Get("/style.css", hdl.staticAsset("style.css", "text/css; charset=utf-8"))

		r.With(mw.RateLimit("create")).Post("/create", hdl.CreatePaste)
		r.Get("/{id:[0-9]{5}}", hdl.ViewPaste)
		r.With(mw.RateLimit("update")).Put("/{id:[0-9]{5}}", hdl.UpdatePaste)

		r.Route("/api", func(r chi.Router) {
			r.Use(mw.JSONContentType)
			r.Use(mw.ContextTimeout)
			r.Get("/{id:[0-9]{5}}", hdl.GetPasteJSON)
			r.Get("/history", hdl.History)
			r.Get("/history/{id:[0-9]{5}}", hdl.HistoryByID)
			r.With(mw.RateLimit("delete")).Post("/history/{id:[0-9]{5}}/delete", hdl.DeletePaste)
		})
	})
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) Start() error {
	util.Info().Str("port", s.cfg.Port).Msg("starting server")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		util.Error().Err(err).Str("port", s.cfg.Port).Msg("server failed to start")
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
