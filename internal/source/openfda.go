package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/ppiankov/rxclaims/internal/model"
)

// OpenFDA queries the drug label endpoint
type OpenFDA struct {
	fetcher *Fetcher
	baseURL string
}

// NewOpenFDA creates an OpenFDA adapter on its own fetcher
func NewOpenFDA(f *Fetcher, cfg model.SourcesConfig) *OpenFDA {
	base := cfg.OpenFDABaseURL
	if base == "" {
		base = "https://api.fda.gov/drug/label.json"
	}
	return &OpenFDA{fetcher: f, baseURL: base}
}

type labelResponse struct {
	Results []labelResult `json:"results"`
}

type labelResult struct {
	OpenFDA struct {
		BrandName        []string `json:"brand_name"`
		GenericName      []string `json:"generic_name"`
		ManufacturerName []string `json:"manufacturer_name"`
	} `json:"openfda"`
	IndicationsAndUsage     []string `json:"indications_and_usage"`
	ClinicalStudies         []string `json:"clinical_studies"`
	DosageAndAdministration []string `json:"dosage_and_administration"`
	Warnings                []string `json:"warnings"`
	WarningsAndCautions     []string `json:"warnings_and_cautions"`
	AdverseReactions        []string `json:"adverse_reactions"`
	EffectiveTime           string   `json:"effective_time"`
}

func (r labelResult) toRecord() *model.LabelRecord {
	rec := &model.LabelRecord{
		BrandName:               first(r.OpenFDA.BrandName),
		GenericName:             first(r.OpenFDA.GenericName),
		Manufacturer:            first(r.OpenFDA.ManufacturerName),
		IndicationsAndUsage:     r.IndicationsAndUsage,
		ClinicalStudies:         r.ClinicalStudies,
		DosageAndAdministration: r.DosageAndAdministration,
		Warnings:                r.Warnings,
		AdverseReactions:        r.AdverseReactions,
		EffectiveTime:           r.EffectiveTime,
	}
	// newer PLR-format labels use warnings_and_cautions
	if len(rec.Warnings) == 0 {
		rec.Warnings = r.WarningsAndCautions
	}
	return rec
}

// LabelField names an openfda field to match on
type LabelField string

const (
	FieldBrandName   LabelField = "openfda.brand_name"
	FieldGenericName LabelField = "openfda.generic_name"
)

// SearchLabel returns the first label whose field matches name exactly.
// No match (404 or empty results) returns nil, nil.
func (o *OpenFDA) SearchLabel(ctx context.Context, field LabelField, name string) (*model.LabelRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("search", fmt.Sprintf(`%s:"%s"`, field, strings.ReplaceAll(name, `"`, "")))
	params.Set("limit", "1")

	body, err := o.fetcher.Get(ctx, buildURL(o.baseURL, params), "application/json")
	if err != nil {
		if IsNotFound(err) {
			o.fetcher.log.Debugw("no FDA label", "field", field, "name", name)
			return nil, nil
		}
		return nil, fmt.Errorf("openfda %s: %w", field, err)
	}

	var resp labelResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode openfda response: %w", err)
	}
	if len(resp.Results) == 0 {
		return nil, nil
	}

	return resp.Results[0].toRecord(), nil
}

// FindLabel tries the brand name first and falls back to the generic name
func (o *OpenFDA) FindLabel(ctx context.Context, brand, generic string) (*model.LabelRecord, error) {
	if brand != "" {
		label, err := o.SearchLabel(ctx, FieldBrandName, brand)
		if err != nil {
			return nil, err
		}
		if label != nil {
			return label, nil
		}
	}
	if generic != "" && !strings.EqualFold(generic, brand) {
		return o.SearchLabel(ctx, FieldGenericName, generic)
	}
	return nil, nil
}

// LookupGeneric returns the generic name registered for a brand, or "" when unknown
func (o *OpenFDA) LookupGeneric(ctx context.Context, brand string) (string, error) {
	label, err := o.SearchLabel(ctx, FieldBrandName, brand)
	if err != nil {
		return "", err
	}
	if label == nil {
		return "", nil
	}
	return strings.ToLower(label.GenericName), nil
}

func first(values []string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
