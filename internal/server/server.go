// Package server exposes the claims pipeline as a small JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/pipeline"
	"github.com/ppiankov/rxclaims/internal/worker"
	"go.uber.org/zap"
)

const shutdownGrace = 10 * time.Second

// Options configures the router
type Options struct {
	// RequestTimeout bounds one pipeline run; zero means no extra bound
	RequestTimeout time.Duration
	// Uploader, when set, receives every successful output
	Uploader pipeline.Uploader
	Log      *zap.SugaredLogger
}

// ClaimsRequest is the body of POST /v1/claims
type ClaimsRequest struct {
	Query string `json:"query" binding:"required"`
}

type handler struct {
	runner worker.Runner
	opts   Options
	log    *zap.SugaredLogger
}

// NewRouter builds the gin engine over runner
func NewRouter(runner worker.Runner, opts Options) *gin.Engine {
	h := &handler{runner: runner, opts: opts, log: logging.OrNop(opts.Log)}

	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", handleHealth)
	v1 := r.Group("/v1")
	v1.GET("/sources", handleSources)
	v1.POST("/claims", h.handleClaims)
	return r
}

func handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func handleSources(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"sources": []gin.H{
			{"name": model.SourceOpenFDA, "host": worker.OpenFDAHost, "provides": "FDA-approved prescribing information"},
			{"name": model.SourcePubMed, "host": worker.NCBIHost, "provides": "article metadata and PMC full text"},
			{"name": model.SourceClinicalTrials, "host": worker.ClinicalTrialsHost, "provides": "trial registry records"},
		},
		"full_text_strategy": model.FullTextStrategy,
	})
}

func (h *handler) handleClaims(c *gin.Context) {
	var req ClaimsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	if h.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.RequestTimeout)
		defer cancel()
	}

	out, err := h.runner.Run(ctx, req.Query)
	if err != nil {
		status := statusFor(err)
		h.log.Warnw("claims request failed", "status", status, "error", err)
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	if h.opts.Uploader != nil {
		w, err := pipeline.RenderOutput(ctx, out, pipeline.RenderTargets{Uploader: h.opts.Uploader})
		if err != nil {
			h.log.Warnw("output upload failed", "request_id", out.SearchSummary.RequestID, "error", err)
		} else {
			h.log.Infow("output uploaded", "request_id", out.SearchSummary.RequestID, "locations", w.Remote)
		}
	}

	c.JSON(http.StatusOK, out)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, pipeline.ErrIntent):
		return http.StatusUnprocessableEntity
	case errors.Is(err, pipeline.ErrNoResults):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// ListenAndServe serves handler on addr until ctx is cancelled
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log *zap.SugaredLogger) error {
	log = logging.OrNop(log)
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infow("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
