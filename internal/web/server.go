// Package web serves the browser UI and the plain HTTP endpoints.
package web

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hpungsan/transferbot/internal/config"
	"github.com/hpungsan/transferbot/internal/session"
	"github.com/hpungsan/transferbot/pkg/logger"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

//go:embed help.md
var helpMarkdown string

// bodyOverhead is added to max_input_chars when sizing request bodies, since
// form encoding and multi-byte runes make the body larger than the text.
const bodyOverhead = 4096

// NewServer creates and configures the HTTP server for the transferbot UI.
func NewServer(store session.Backend, cfg *config.Config, log *logger.Logger, version, bind string, port int) (*http.Server, error) {
	handler, err := NewHandler(store, cfg, log, version)
	if err != nil {
		return nil, err
	}
	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}, nil
}

// NewHandler builds the routed handler without binding a listener.
func NewHandler(store session.Backend, cfg *config.Config, log *logger.Logger, version string) (http.Handler, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if log == nil {
		log = logger.NewNop()
	}

	templateSub, err := fs.Sub(templateFS, "templates")
	if err != nil {
		return nil, fmt.Errorf("template sub-FS: %w", err)
	}
	staticSub, err := fs.Sub(staticFS, "static")
	if err != nil {
		return nil, fmt.Errorf("static sub-FS: %w", err)
	}

	h := &Handlers{
		store:    store,
		cfg:      cfg,
		renderer: NewRenderer(templateSub, version, log),
		log:      log.Named("web"),
	}
	mw := NewMiddleware(log)

	// Each rune can take up to four bytes once encoded.
	maxBody := int64(cfg.MaxInputChars)*4 + bodyOverhead
	if cfg.MaxInputChars <= 0 {
		maxBody = 0
	}

	router := chi.NewRouter()
	router.Use(mw.RequestID)
	router.Use(mw.Logger)
	router.Use(mw.Recoverer)
	router.Use(securityHeaders)
	router.Use(tagSource)
	router.Use(mw.LimitBody(maxBody))

	router.Get("/", h.HandleIndex)
	router.Post("/add", h.HandleAdd)
	router.Post("/finish", h.HandleFinish)
	router.Post("/reset", h.HandleReset)
	router.Get("/result.tsv", h.HandleResult)
	router.Get("/convert", h.HandleConvertForm)
	router.Post("/convert", h.HandleConvert)
	router.Post("/convert.txt", h.HandleConvertText)
	router.Get("/health", h.HandleHealth)
	router.Get("/help", h.HandleHelp)

	router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(staticSub)))

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.renderer.renderError(w, r, errNotFoundRoute(r.URL.Path))
	})

	return router, nil
}

// Run starts the server and blocks until SIGINT/SIGTERM, then shuts down gracefully.
func Run(srv *http.Server, log *logger.Logger) error {
	if log == nil {
		log = logger.NewNop()
	}
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	log.Info("transferbot UI running", logger.String("url", "http://"+srv.Addr))

	if strings.Contains(srv.Addr, "0.0.0.0") || strings.Contains(srv.Addr, "::") {
		log.Warn("Server is binding to all interfaces and may be accessible from the network")
	}

	select {
	case err := <-errCh:
		return err
	case <-sigCh:
		log.Info("Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(ctx)
	}
}
