package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/pipeline"
	"github.com/ppiankov/rxclaims/internal/storage"
	"github.com/spf13/cobra"
)

var (
	outJSON     string
	outMD       string
	timeout     time.Duration
	noCache     bool
	llmProvider string
	llmModel    string
	s3Bucket    string
	printOutput bool
)

// searchCmd represents the search command
var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Generate evidence-backed claims for a free-text request",
	Long: `Search parses the request, searches OpenFDA, PubMed/PMC and
ClinicalTrials.gov in parallel, ranks the full-text articles and generates
validated claims with citations.

Example:
  rxclaims search "3 efficacy claims for Paxlovid in high-risk adults"
  rxclaims search "safety claims for Keytruda" --json keytruda.json --md keytruda.md
  rxclaims search "dosing claims for Eliquis" --llm-provider anthropic --llm-model claude-sonnet-4-5`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSearch,
}

func init() {
	rootCmd.AddCommand(searchCmd)

	searchCmd.Flags().StringVar(&outJSON, "json", "", "output JSON path (default: <output.dir>/claims_<timestamp>.json)")
	searchCmd.Flags().StringVar(&outMD, "md", "", "output Markdown path (optional)")
	searchCmd.Flags().BoolVar(&printOutput, "stdout", false, "also print the JSON output to stdout")
	searchCmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "overall request timeout")
	searchCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force fresh fetch)")
	searchCmd.Flags().StringVar(&s3Bucket, "s3-bucket", "", "upload outputs to this S3 bucket (overrides storage.s3_bucket)")

	searchCmd.Flags().StringVar(&llmProvider, "llm-provider", "", "LLM provider (openai, azure, anthropic, ollama)")
	searchCmd.Flags().StringVar(&llmModel, "llm-model", "", "LLM model or Azure deployment name")
}

// applyRunFlags copies the flags shared by search, batch and serve onto cfg
func applyRunFlags(cfg *model.Config) {
	if noCache {
		cfg.Cache.Enabled = false
	}
	if llmProvider != "" {
		cfg.LLM.Provider = llmProvider
	}
	if llmModel != "" {
		cfg.LLM.Model = llmModel
	}
	if s3Bucket != "" {
		cfg.Storage.S3Bucket = s3Bucket
	}
}

// newUploader returns the configured S3 store, or nil when storage is off
func newUploader(ctx context.Context, cfg *model.Config) (pipeline.Uploader, error) {
	store, err := storage.NewS3Store(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, nil
	}
	return store, nil
}

func runSearch(cmd *cobra.Command, args []string) error {
	query := strings.Join(args, " ")
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	applyRunFlags(cfg)
	if err := checkLLMKey(cfg); err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	if verbose {
		fmt.Fprintf(os.Stderr, "Query:   %s\n", query)
		fmt.Fprintf(os.Stderr, "LLM:     %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
		fmt.Fprintf(os.Stderr, "Cache:   %v\n", cfg.Cache.Enabled)
		fmt.Fprintf(os.Stderr, "Timeout: %v\n", timeout)
		fmt.Fprintln(os.Stderr)
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

	start := time.Now()
	out, err := p.Run(ctx, query)
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	jsonPath := outJSON
	if jsonPath == "" {
		jsonPath = pipeline.DefaultJSONPath(cfg.Output.Dir, start)
	}
	mdPath := outMD
	if mdPath == "" && cfg.Output.Markdown {
		mdPath = strings.TrimSuffix(jsonPath, ".json") + ".md"
	}

	written, err := pipeline.RenderOutput(ctx, out, pipeline.RenderTargets{
		JSONPath: jsonPath,
		MDPath:   mdPath,
		Uploader: uploader,
	})
	if err != nil {
		return fmt.Errorf("render failed: %w", err)
	}

	fmt.Fprintf(os.Stderr, "✓ Wrote JSON: %s\n", written.JSONPath)
	if written.MDPath != "" {
		fmt.Fprintf(os.Stderr, "✓ Wrote Markdown: %s\n", written.MDPath)
	}
	for _, loc := range written.Remote {
		fmt.Fprintf(os.Stderr, "✓ Uploaded: %s\n", loc)
	}

	pipeline.PrintSummary(os.Stderr, out)

	if printOutput {
		data, err := pipeline.MarshalOutput(out)
		if err != nil {
			return err
		}
		_, _ = os.Stdout.Write(data)
	}

	return nil
}
