package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/ppiankov/rxclaims/internal/pipeline"
	"github.com/ppiankov/rxclaims/internal/server"
	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	requestTimeout time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the claims pipeline over HTTP",
	Long: `Serve exposes the pipeline as a JSON API:

  POST /v1/claims   {"query": "..."} -> claims output
  GET  /v1/sources  searched sources
  GET  /healthz     liveness

Example:
  rxclaims serve --addr :8080
  curl -s localhost:8080/v1/claims -d '{"query":"efficacy claims for Paxlovid"}'`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().DurationVar(&requestTimeout, "request-timeout", 5*time.Minute, "timeout for one claims request")

	// shared with search
	serveCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
	serveCmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "upload outputs to this S3 bucket (overrides storage.s3_bucket)")
	serveCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, azure, anthropic, ollama)")
	serveCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model or Azure deployment name")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cfg)
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}
	if err := checkLLMKey(cfg); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if !verbose {
		gin.SetMode(gin.ReleaseMode)
	}

	p, err := pipeline.NewFromConfig(cfg, log)
	if err != nil {
		return fmt.Errorf("init pipeline: %w", err)
	}
	defer func() { _ = p.Close() }()

	uploader, err := newUploader(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	router := server.NewRouter(p, server.Options{
		RequestTimeout: requestTimeout,
		Uploader:       uploader,
		Log:            log,
	})

	fmt.Fprintf(os.Stderr, "rxclaims %s listening on %s\n", Version, cfg.Server.Addr)
	return server.ListenAndServe(ctx, cfg.Server.Addr, router, log)
}
