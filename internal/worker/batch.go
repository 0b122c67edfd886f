package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/ppiankov/rxclaims/internal/model"
)

// Runner runs the full claims pipeline for one free-text query
type Runner interface {
	Run(ctx context.Context, query string) (*model.ClaimsOutput, error)
}

// QueryJob is one batch query
type QueryJob struct {
	Query  string
	Runner Runner
}

// Execute runs the pipeline for the job's query
func (j *QueryJob) Execute(ctx context.Context) Result {
	output, err := j.Runner.Run(ctx, j.Query)
	return &QueryResult{
		Query:  j.Query,
		Output: output,
		Error:  err,
	}
}

// QueryResult is the outcome of one batch query
type QueryResult struct {
	Query  string
	Output *model.ClaimsOutput
	Error  error
}

// GetError returns the error from the query result
func (r *QueryResult) GetError() error {
	return r.Error
}

// BatchProcessor runs many queries through the pipeline concurrently
type BatchProcessor struct {
	runner      Runner
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(runner Runner, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		runner:      runner,
		concurrency: concurrency,
	}
}

// ProcessQueries runs every query and returns results in input order
func (b *BatchProcessor) ProcessQueries(ctx context.Context, queries []string) ([]*QueryResult, error) {
	if len(queries) == 0 {
		return []*QueryResult{}, nil
	}

	pool, err := NewPool(b.concurrency)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	jobs := make([]Job, len(queries))
	for i, q := range queries {
		jobs[i] = &QueryJob{Query: q, Runner: b.runner}
	}

	results := pool.Run(ctx, jobs)

	out := make([]*QueryResult, len(results))
	for i, r := range results {
		if qr, ok := r.(*QueryResult); ok {
			out[i] = qr
			continue
		}
		out[i] = &QueryResult{Query: queries[i], Error: r.GetError()}
	}

	return out, nil
}

// ProcessFile reads queries from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*QueryResult, error) {
	queries, err := ReadQueriesFromFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("read queries: %w", err)
	}

	return b.ProcessQueries(ctx, queries)
}

// ReadQueriesFromFile reads one query per line, skipping blanks, '#' comments and duplicates
func ReadQueriesFromFile(filePath string) ([]string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var queries []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key := strings.ToLower(line)
		if !seen[key] {
			seen[key] = true
			queries = append(queries, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return queries, nil
}
