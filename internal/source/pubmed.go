package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/rxclaims/internal/model"
)

// PubMed talks to NCBI E-utilities: esearch for IDs, efetch for
// PubMed metadata and PMC full text.
type PubMed struct {
	fetcher    *Fetcher
	baseURL    string
	apiKey     string
	email      string
	maxResults int
	now        func() time.Time
}

// NewPubMed creates a PubMed adapter on its own fetcher
func NewPubMed(f *Fetcher, cfg model.SourcesConfig) *PubMed {
	base := strings.TrimRight(cfg.EUtilsBaseURL, "/")
	if base == "" {
		base = "https://eutils.ncbi.nlm.nih.gov/entrez/eutils"
	}
	maxResults := cfg.PubMedMaxResults
	if maxResults <= 0 {
		maxResults = 20
	}

	return &PubMed{
		fetcher:    f,
		baseURL:    base,
		apiKey:     cfg.NCBIAPIKey,
		email:      cfg.NCBIEmail,
		maxResults: maxResults,
		now:        time.Now,
	}
}

type esearchResponse struct {
	Result struct {
		Count  string   `json:"count"`
		IDList []string `json:"idlist"`
		Error  string   `json:"ERROR"`
	} `json:"esearchresult"`
	Error string `json:"error"`
}

// Search runs esearch for term over the last lookbackYears and returns PMIDs, newest first
func (p *PubMed) Search(ctx context.Context, term string, lookbackYears int) ([]string, error) {
	if lookbackYears <= 0 {
		lookbackYears = 5
	}
	now := p.now()
	minDate := now.AddDate(-lookbackYears, 0, 0)

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", term)
	params.Set("retmax", strconv.Itoa(p.maxResults))
	params.Set("retmode", "json")
	params.Set("sort", "pub_date")
	params.Set("datetype", "pdat")
	params.Set("mindate", minDate.Format("2006/01/02"))
	params.Set("maxdate", now.Format("2006/01/02"))
	p.addCredentials(params)

	body, err := p.fetcher.Get(ctx, buildURL(p.baseURL+"/esearch.fcgi", params), "application/json")
	if err != nil {
		return nil, fmt.Errorf("esearch: %w", err)
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode esearch: %w", err)
	}
	if resp.Error != "" {
		return nil, fmt.Errorf("esearch: %s", resp.Error)
	}
	if resp.Result.Error != "" {
		return nil, fmt.Errorf("esearch: %s", resp.Result.Error)
	}

	return resp.Result.IDList, nil
}

// FetchSummaries runs one bulk efetch over pmids and parses each PubmedArticle.
// Records that fail to parse are dropped.
func (p *PubMed) FetchSummaries(ctx context.Context, pmids []string) ([]model.ArticleSummary, error) {
	if len(pmids) == 0 {
		return nil, nil
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("retmode", "xml")
	params.Set("rettype", "abstract")
	p.addCredentials(params)

	body, err := p.fetcher.Get(ctx, buildURL(p.baseURL+"/efetch.fcgi", params), "application/xml")
	if err != nil {
		return nil, fmt.Errorf("efetch pubmed: %w", err)
	}

	summaries, skipped, err := parsePubmedArticleSet(body)
	if err != nil {
		return nil, fmt.Errorf("parse pubmed xml: %w", err)
	}
	for _, reason := range skipped {
		p.fetcher.log.Debugw("dropped pubmed record", "reason", reason)
	}

	withPMC := 0
	for _, s := range summaries {
		if s.HasFullText() {
			withPMC++
		}
	}
	p.fetcher.log.Debugw("parsed pubmed summaries", "records", len(summaries), "with_pmc", withPMC)

	return summaries, nil
}

// FetchFullText fetches and parses one PMC article. pmcid may carry the "PMC" prefix.
func (p *PubMed) FetchFullText(ctx context.Context, pmcid string) (*model.FullTextArticle, error) {
	id := strings.TrimPrefix(strings.TrimSpace(pmcid), "PMC")
	if id == "" {
		return nil, fmt.Errorf("empty pmcid")
	}

	params := url.Values{}
	params.Set("db", "pmc")
	params.Set("id", id)
	params.Set("retmode", "xml")
	p.addCredentials(params)

	body, err := p.fetcher.Get(ctx, buildURL(p.baseURL+"/efetch.fcgi", params), "application/xml")
	if err != nil {
		return nil, fmt.Errorf("efetch pmc %s: %w", pmcid, err)
	}

	article, err := parsePMCArticle(body)
	if err != nil {
		return nil, fmt.Errorf("parse pmc %s: %w", pmcid, err)
	}
	article.PMCID = "PMC" + id
	return article, nil
}

func (p *PubMed) addCredentials(params url.Values) {
	if p.apiKey != "" {
		params.Set("api_key", p.apiKey)
	}
	if p.email != "" {
		params.Set("email", p.email)
	}
}

// PMCURL returns the public PMC landing page for pmcid
func PMCURL(pmcid string) string {
	if !strings.HasPrefix(pmcid, "PMC") {
		pmcid = "PMC" + pmcid
	}
	return "https://www.ncbi.nlm.nih.gov/pmc/articles/" + pmcid + "/"
}
