package llm

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/util"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider replays canned replies in order and records requests
type MockProvider struct {
	mu       sync.Mutex
	replies  []string
	errs     []error
	requests []CompletionRequest
}

func (m *MockProvider) Name() string {
	return "mock"
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := len(m.requests)
	m.requests = append(m.requests, req)
	if i < len(m.errs) && m.errs[i] != nil {
		return nil, m.errs[i]
	}
	if i < len(m.replies) {
		return &CompletionResponse{Text: m.replies[i], Model: "mock"}, nil
	}
	return &CompletionResponse{Text: m.replies[len(m.replies)-1], Model: "mock"}, nil
}

func (m *MockProvider) IsAvailable(ctx context.Context) bool {
	return true
}

func (m *MockProvider) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

func newTestService(t *testing.T, p Provider) *Service {
	t.Helper()
	s, err := NewService(p, nil)
	require.NoError(t, err)
	return s
}

func recordSleeps(t *testing.T) *[]time.Duration {
	t.Helper()
	var sleeps []time.Duration
	orig := llmSleepFunc
	llmSleepFunc = func(ctx context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	t.Cleanup(func() { llmSleepFunc = orig })
	return &sleeps
}

func TestNewService_NilProvider(t *testing.T) {
	_, err := NewService(nil, nil)
	assert.ErrorIs(t, err, ErrNoProvider)
}

func TestService_ExtractIntent(t *testing.T) {
	reply := "```json\n" + `{
		"drug": {"brand_name": "Paxlovid", "generic_name": null, "search_terms": ["Paxlovid", "nirmatrelvir"]},
		"claim_type": "efficacy",
		"indication": "COVID-19",
		"population": "high-risk adults",
		"output_requirements": {"claim_count": "3", "include_substantiation": true, "format_type": "MLR-ready"}
	}` + "\n```"
	p := &MockProvider{replies: []string{reply}}

	doc, err := newTestService(t, p).ExtractIntent(context.Background(), "3 efficacy claims for Paxlovid in COVID-19")
	require.NoError(t, err)

	assert.Equal(t, "Paxlovid", doc.Drug.BrandName)
	assert.Empty(t, doc.Drug.GenericName)
	assert.Equal(t, []string{"Paxlovid", "nirmatrelvir"}, doc.Drug.SearchTerms)
	assert.Equal(t, "COVID-19", doc.Indication)
	assert.Equal(t, 3, doc.OutputRequirements.ClaimCount.Int())
	require.NotNil(t, doc.OutputRequirements.IncludeSubstantiation)

	req := p.requests[0]
	assert.True(t, req.JSON)
	assert.Zero(t, req.Temperature)
	assert.Equal(t, intentSystem, req.System)
	assert.Contains(t, req.Prompt, `"3 efficacy claims for Paxlovid in COVID-19"`)
}

func TestService_ExtractIntent_Unparseable(t *testing.T) {
	p := &MockProvider{replies: []string{"I cannot help with that."}}

	_, err := newTestService(t, p).ExtractIntent(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse intent response")
}

func TestService_ScoreRelevance(t *testing.T) {
	intent := &model.Intent{
		Drug:       model.DrugIdentification{BrandName: "Paxlovid"},
		ClaimType:  model.ClaimTypeEfficacy,
		Indication: "COVID-19",
		Population: "adults",
	}

	tests := []struct {
		reply   string
		want    float64
		wantErr bool
	}{
		{reply: "8", want: 8},
		{reply: " 7.5\n", want: 7.5},
		{reply: "Score: 6", want: 6},
		{reply: "42", want: 10},
		{reply: "-3", want: 0},
		{reply: "not relevant at all", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.reply, func(t *testing.T) {
			p := &MockProvider{replies: []string{tt.reply}}
			got, err := newTestService(t, p).ScoreRelevance(context.Background(), "Title\n\nAbstract", intent, 10)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)

			req := p.requests[0]
			assert.False(t, req.JSON)
			assert.Equal(t, relevanceMaxTokens, req.MaxTokens)
			assert.Contains(t, req.Prompt, "efficacy claims for Paxlovid in COVID-19 for adults")
		})
	}
}

func TestService_ScoreRelevance_TruncatesPreview(t *testing.T) {
	p := &MockProvider{replies: []string{"5"}}
	preview := strings.Repeat("a", 1000) + strings.Repeat("b", 500)

	_, err := newTestService(t, p).ScoreRelevance(context.Background(), preview, &model.Intent{}, 10)
	require.NoError(t, err)
	assert.NotContains(t, p.requests[0].Prompt, "bbbbbbbbbb")
	assert.Contains(t, p.requests[0].Prompt, "the drug")
}

func TestService_ExtractLabelClaim(t *testing.T) {
	p := &MockProvider{replies: []string{`{"claim_text": "PAXLOVID is indicated for mild-to-moderate COVID-19.", "substantiation": "Label text"}`}}
	s := newTestService(t, p)

	draft, err := s.ExtractLabelClaim(context.Background(), "Paxlovid", "Indications and Usage", "  ", model.ClaimTypeIndication)
	require.NoError(t, err)
	assert.Nil(t, draft)
	assert.Equal(t, 0, p.calls(), "empty section must not call the model")

	section := strings.Repeat("x", 2500)
	draft, err = s.ExtractLabelClaim(context.Background(), "Paxlovid", "Indications and Usage", section, model.ClaimTypeIndication)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "PAXLOVID is indicated for mild-to-moderate COVID-19.", draft.ClaimText)
	assert.Contains(t, p.requests[0].Prompt, "Section: Indications and Usage")
	assert.NotContains(t, p.requests[0].Prompt, strings.Repeat("x", 2001))
}

func TestService_ExtractLabelClaim_EmptyReply(t *testing.T) {
	p := &MockProvider{replies: []string{`{"claim_text": "", "substantiation": null}`}}

	draft, err := newTestService(t, p).ExtractLabelClaim(context.Background(), "X", "Clinical Studies", "text", model.ClaimTypeEfficacy)
	require.NoError(t, err)
	assert.Nil(t, draft)
}

func TestService_ExtractArticleClaim(t *testing.T) {
	reply := `{
		"claim_text": "Paxlovid reduced hospitalization or death by 89%.",
		"substantiation": "In EPIC-HR...",
		"numerical_data": {"sample_size": 2246, "risk_reduction": "89%", "p_value": null},
		"extracted_from": "Results section"
	}`
	p := &MockProvider{replies: []string{reply}}

	draft, err := newTestService(t, p).ExtractArticleClaim(context.Background(), ArticleClaimRequest{
		Title:       "Oral Nirmatrelvir for High-Risk COVID-19",
		Journal:     "N Engl J Med",
		Authors:     []string{"Hammond J", "Leister-Tebbe H", "Gardner A", "Abreu P"},
		ResultsText: strings.Repeat("r", 3500),
		ClaimType:   model.ClaimTypeEfficacy,
	})
	require.NoError(t, err)
	require.NotNil(t, draft)

	assert.Equal(t, float64(2246), draft.NumericalData["sample_size"])
	assert.Equal(t, "89%", draft.NumericalData["risk_reduction"])
	assert.Nil(t, draft.NumericalData["p_value"])
	assert.Equal(t, "Results section", draft.ExtractedFrom)

	prompt := p.requests[0].Prompt
	assert.Contains(t, prompt, "Authors: Hammond J, Leister-Tebbe H, Gardner A\n")
	assert.NotContains(t, prompt, "Abreu P")
	assert.NotContains(t, prompt, strings.Repeat("r", 3001))
	assert.Equal(t, articleClaimMaxTokens, p.requests[0].MaxTokens)
}

func TestService_ExtractArticleClaim_BadJSON(t *testing.T) {
	p := &MockProvider{replies: []string{`{"claim_text": `}}

	_, err := newTestService(t, p).ExtractArticleClaim(context.Background(), ArticleClaimRequest{Title: "T"})
	assert.Error(t, err)
}

func TestService_RetriesTransientErrors(t *testing.T) {
	sleeps := recordSleeps(t)
	unavailable := &APIError{Provider: "mock", StatusCode: 503, Message: "overloaded"}
	p := &MockProvider{
		errs:    []error{unavailable, unavailable},
		replies: []string{"", "", "9"},
	}

	got, err := newTestService(t, p).ScoreRelevance(context.Background(), "T", &model.Intent{}, 10)
	require.NoError(t, err)
	assert.Equal(t, 9.0, got)
	assert.Equal(t, 3, p.calls())
	assert.Equal(t, []time.Duration{2 * time.Second, 4 * time.Second}, *sleeps)
}

func TestService_RetriesExhausted(t *testing.T) {
	sleeps := recordSleeps(t)
	limited := &APIError{Provider: "mock", StatusCode: 429, Message: "slow down"}
	p := &MockProvider{errs: []error{limited, limited, limited}, replies: []string{"1"}}

	_, err := newTestService(t, p).ScoreRelevance(context.Background(), "T", &model.Intent{}, 10)
	require.Error(t, err)
	assert.Equal(t, llmMaxAttempts, p.calls())
	assert.Len(t, *sleeps, llmMaxAttempts-1)

	var apiErr *APIError
	assert.True(t, errors.As(err, &apiErr))
}

func TestService_CancelDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	orig := llmSleepFunc
	llmSleepFunc = func(c context.Context, d time.Duration) error {
		cancel()
		return util.SleepContext(c, d)
	}
	t.Cleanup(func() { llmSleepFunc = orig })

	unavailable := &APIError{Provider: "mock", StatusCode: 503, Message: "overloaded"}
	p := &MockProvider{errs: []error{unavailable, unavailable, unavailable}, replies: []string{"1"}}

	start := time.Now()
	_, err := newTestService(t, p).ScoreRelevance(ctx, "T", &model.Intent{}, 10)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, p.calls())
	assert.Less(t, time.Since(start), time.Second)
}

func TestService_NoRetryOnClientError(t *testing.T) {
	sleeps := recordSleeps(t)
	p := &MockProvider{errs: []error{&APIError{Provider: "mock", StatusCode: 401, Message: "bad key"}}, replies: []string{"1"}}

	_, err := newTestService(t, p).ExtractIntent(context.Background(), "q")
	require.Error(t, err)
	assert.Equal(t, 1, p.calls())
	assert.Empty(t, *sleeps)
}

func TestLLMBackoff(t *testing.T) {
	assert.Equal(t, 2*time.Second, llmBackoff(1))
	assert.Equal(t, 4*time.Second, llmBackoff(2))
	assert.Equal(t, 8*time.Second, llmBackoff(3))
	assert.Equal(t, 10*time.Second, llmBackoff(4))
	assert.Equal(t, 10*time.Second, llmBackoff(10))
}

func TestIsRetryableLLMError(t *testing.T) {
	assert.False(t, isRetryableLLMError(nil))
	assert.True(t, isRetryableLLMError(context.DeadlineExceeded))
	assert.True(t, isRetryableLLMError(errors.New("dial tcp: connection refused")))
	assert.False(t, isRetryableLLMError(errors.New("unmarshal response: bad")))
	assert.False(t, isRetryableLLMError(&APIError{StatusCode: 400}))
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider(Config{})
	assert.NoError(t, err)
	assert.Nil(t, p)

	_, err = NewProvider(Config{Provider: "bogus"})
	assert.Error(t, err)

	p, err = NewProvider(Config{Provider: "Ollama", Model: "llama3.1"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", p.Name())

	p, err = NewProvider(Config{Provider: "claude", APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", p.Name())
}

func TestConfigFromModel(t *testing.T) {
	cfg := ConfigFromModel(
		model.LLMConfig{Provider: "openai", Model: "gpt-4", APIKey: "k", AzureEndpoint: "https://x.openai.azure.com", AzureAPIVersion: "2024-02-15-preview", Timeout: 30, MaxTokens: 500},
		model.HTTPConfig{HTTPSProxy: "http://proxy:3128", NoProxy: "localhost"},
	)

	assert.Equal(t, "gpt-4", cfg.Model)
	assert.Equal(t, "https://x.openai.azure.com", cfg.AzureEndpoint)
	assert.Equal(t, "2024-02-15-preview", cfg.AzureAPIVersion)
	assert.Equal(t, 30, cfg.Timeout)
	assert.Equal(t, "http://proxy:3128", cfg.HTTPSProxy)
	assert.Equal(t, "localhost", cfg.NoProxy)
}
