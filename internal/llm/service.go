package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/rxclaims/internal/logging"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/util"
	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	llmMaxAttempts    = 3
	llmInitialBackoff = 2 * time.Second
	llmMaxBackoff     = 10 * time.Second
)

// llmSleepFunc waits between retries and returns early when ctx is done
// (injectable for tests)
var llmSleepFunc = util.SleepContext

var scoreRe = regexp.MustCompile(`-?\d+(?:\.\d+)?`)

// ErrNoProvider is returned when the service is built without a provider
var ErrNoProvider = errors.New("no LLM provider configured")

// Service runs the JSON-prompted generation operations on top of a Provider
type Service struct {
	provider Provider
	log      *zap.SugaredLogger
}

// NewService wraps provider. A nil provider is an error.
func NewService(provider Provider, log *zap.SugaredLogger) (*Service, error) {
	if provider == nil {
		return nil, ErrNoProvider
	}
	return &Service{provider: provider, log: logging.OrNop(log)}, nil
}

// ProviderName returns the underlying provider's name
func (s *Service) ProviderName() string {
	return s.provider.Name()
}

// IntentDocument is the model's raw structured reading of a query
type IntentDocument struct {
	Drug struct {
		BrandName   string   `json:"brand_name"`
		GenericName string   `json:"generic_name"`
		SearchTerms []string `json:"search_terms"`
	} `json:"drug"`
	ClaimType          string       `json:"claim_type"`
	Indication         string       `json:"indication"`
	Population         string       `json:"population"`
	OutputRequirements IntentOutput `json:"output_requirements"`
}

// IntentOutput is the output_requirements block of an IntentDocument
type IntentOutput struct {
	ClaimCount            flexInt `json:"claim_count"`
	IncludeSubstantiation *bool   `json:"include_substantiation"`
	FormatType            string  `json:"format_type"`
	IncludeSafety         bool    `json:"include_safety"`
	IncludeDosing         bool    `json:"include_dosing"`
}

// flexInt accepts 6, 6.0, "6" and null
type flexInt int

func (n *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.Trim(b, `"`)
	if len(b) == 0 || string(b) == "null" {
		*n = 0
		return nil
	}
	f, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return fmt.Errorf("claim_count: %w", err)
	}
	*n = flexInt(f)
	return nil
}

// Int returns the value as an int
func (n flexInt) Int() int {
	return int(n)
}

// ArticleClaimRequest is the input to ExtractArticleClaim
type ArticleClaimRequest struct {
	Title       string
	Journal     string
	Authors     []string
	ResultsText string
	ClaimType   model.ClaimType
}

// ExtractIntent turns a free-text query into an IntentDocument
func (s *Service) ExtractIntent(ctx context.Context, query string) (*IntentDocument, error) {
	text, err := s.complete(ctx, CompletionRequest{
		System:    intentSystem,
		Prompt:    BuildIntentPrompt(query),
		MaxTokens: intentMaxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract intent: %w", err)
	}

	var doc IntentDocument
	if err := decodeJSONObject(text, &doc); err != nil {
		s.log.Debugw("intent response not parseable", "response", text)
		return nil, fmt.Errorf("parse intent response: %w", err)
	}
	return &doc, nil
}

// ScoreRelevance asks for a 0..max relevance number for an article preview.
// Callers decide the fallback on error.
func (s *Service) ScoreRelevance(ctx context.Context, preview string, intent *model.Intent, max float64) (float64, error) {
	text, err := s.complete(ctx, CompletionRequest{
		System:    relevanceSystem,
		Prompt:    BuildRelevancePrompt(preview, intent, max),
		MaxTokens: relevanceMaxTokens,
	})
	if err != nil {
		return 0, fmt.Errorf("score relevance: %w", err)
	}

	score, err := parseScore(text)
	if err != nil {
		return 0, err
	}
	return clamp(score, 0, max), nil
}

// ExtractLabelClaim proposes a claim from one label section. A nil draft
// with nil error means the model returned nothing usable.
func (s *Service) ExtractLabelClaim(ctx context.Context, brand, sectionName, sectionText string, category model.ClaimType) (*model.ClaimDraft, error) {
	if strings.TrimSpace(sectionText) == "" {
		return nil, nil
	}

	text, err := s.complete(ctx, CompletionRequest{
		System:    claimSystem,
		Prompt:    BuildLabelClaimPrompt(brand, sectionName, sectionText, category),
		MaxTokens: labelClaimMaxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract label claim: %w", err)
	}
	return decodeDraft(text)
}

// ExtractArticleClaim proposes a claim with numerical data from an article's results
func (s *Service) ExtractArticleClaim(ctx context.Context, req ArticleClaimRequest) (*model.ClaimDraft, error) {
	text, err := s.complete(ctx, CompletionRequest{
		System:    claimSystem,
		Prompt:    BuildArticleClaimPrompt(req),
		MaxTokens: articleClaimMaxTokens,
		JSON:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("extract article claim: %w", err)
	}
	return decodeDraft(text)
}

// complete calls the provider at temperature 0, retrying transient failures
func (s *Service) complete(ctx context.Context, req CompletionRequest) (string, error) {
	req.Temperature = 0

	var lastErr error
	for attempt := 1; attempt <= llmMaxAttempts; attempt++ {
		resp, err := s.provider.Complete(ctx, req)
		if err == nil {
			return resp.Text, nil
		}
		lastErr = err

		if ctx.Err() != nil || !isRetryableLLMError(err) || attempt == llmMaxAttempts {
			break
		}

		delay := llmBackoff(attempt)
		s.log.Debugw("retrying LLM call",
			"provider", s.provider.Name(),
			"attempt", attempt,
			"delay", delay,
			"error", err,
		)
		if err := llmSleepFunc(ctx, delay); err != nil {
			return "", err
		}
	}
	return "", lastErr
}

func llmBackoff(attempt int) time.Duration {
	delay := llmInitialBackoff
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= llmMaxBackoff {
			return llmMaxBackoff
		}
	}
	return delay
}

func isRetryableLLMError(err error) bool {
	if err == nil {
		return false
	}

	retryableStatus := func(code int) bool {
		return code == 429 || code >= 500
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	var oaiErr *openai.APIError
	if errors.As(err, &oaiErr) {
		return retryableStatus(oaiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return retryableStatus(reqErr.HTTPStatusCode)
	}

	// per-call timeout; the caller's own context is checked separately
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset")
}

// decodeJSONObject decodes the outermost {...} in text, tolerating code
// fences or prose around it
func decodeJSONObject(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < start {
		return fmt.Errorf("no JSON object in response")
	}
	return json.Unmarshal([]byte(text[start:end+1]), v)
}

func decodeDraft(text string) (*model.ClaimDraft, error) {
	var draft model.ClaimDraft
	if err := decodeJSONObject(text, &draft); err != nil {
		return nil, fmt.Errorf("parse claim response: %w", err)
	}
	if strings.TrimSpace(draft.ClaimText) == "" && strings.TrimSpace(draft.Substantiation) == "" {
		return nil, nil
	}
	return &draft, nil
}

func parseScore(text string) (float64, error) {
	text = strings.TrimSpace(text)
	if f, err := strconv.ParseFloat(text, 64); err == nil {
		return f, nil
	}
	m := scoreRe.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no score in response %q", text)
	}
	return strconv.ParseFloat(m, 64)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
