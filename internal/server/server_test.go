package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/pipeline"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	out   *model.ClaimsOutput
	err   error
	query string
}

func (f *fakeRunner) Run(ctx context.Context, query string) (*model.ClaimsOutput, error) {
	f.query = query
	return f.out, f.err
}

type fakeUploader struct {
	keys []string
}

func (u *fakeUploader) Put(ctx context.Context, key string, body []byte, contentType string) (string, error) {
	u.keys = append(u.keys, key)
	return "s3://b/" + key, nil
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	w := do(NewRouter(&fakeRunner{}, Options{}), http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestSources(t *testing.T) {
	w := do(NewRouter(&fakeRunner{}, Options{}), http.MethodGet, "/v1/sources", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Sources []struct {
			Name string `json:"name"`
		} `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Sources, 3)
	assert.Equal(t, model.SourceOpenFDA, body.Sources[0].Name)
}

func TestClaims_OK(t *testing.T) {
	runner := &fakeRunner{out: &model.ClaimsOutput{
		SearchSummary: model.SearchSummary{RequestID: "01ABC", UserQuery: "efficacy claims for Paxlovid"},
		Claims:        []model.Claim{{ID: 1, Text: "claim"}},
	}}
	up := &fakeUploader{}

	w := do(NewRouter(runner, Options{Uploader: up}), http.MethodPost, "/v1/claims", `{"query":"efficacy claims for Paxlovid"}`)
	require.Equal(t, http.StatusOK, w.Code)

	var out model.ClaimsOutput
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	assert.Equal(t, "01ABC", out.SearchSummary.RequestID)
	assert.Len(t, out.Claims, 1)
	assert.Equal(t, "efficacy claims for Paxlovid", runner.query)
	assert.Equal(t, []string{"claims_01ABC.json", "claims_01ABC.md"}, up.keys)
}

func TestClaims_MissingQuery(t *testing.T) {
	w := do(NewRouter(&fakeRunner{}, Options{}), http.MethodPost, "/v1/claims", `{}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClaims_ErrorStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: %w", pipeline.ErrIntent, errors.New("could not identify drug in query")), http.StatusUnprocessableEntity},
		{fmt.Errorf("%w: No results found from any source", pipeline.ErrNoResults), http.StatusNotFound},
		{fmt.Errorf("generate: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		w := do(NewRouter(&fakeRunner{err: tt.err}, Options{}), http.MethodPost, "/v1/claims", `{"query":"q"}`)
		assert.Equal(t, tt.want, w.Code, tt.err.Error())
		assert.Contains(t, w.Body.String(), "error")
	}
}
