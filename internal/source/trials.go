package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/ppiankov/rxclaims/internal/model"
)

const maxTrialsPageSize = 100

// Trials queries the ClinicalTrials.gov v2 studies API
type Trials struct {
	fetcher  *Fetcher
	baseURL  string
	pageSize int
}

// NewTrials creates a ClinicalTrials.gov adapter on its own fetcher
func NewTrials(f *Fetcher, cfg model.SourcesConfig) *Trials {
	base := cfg.TrialsBaseURL
	if base == "" {
		base = "https://clinicaltrials.gov/api/v2/studies"
	}
	size := cfg.TrialsPageSize
	if size <= 0 {
		size = 10
	}
	if size > maxTrialsPageSize {
		size = maxTrialsPageSize
	}
	return &Trials{fetcher: f, baseURL: base, pageSize: size}
}

// TrialQuery filters a registry search. Empty Phase or Status disables that filter.
type TrialQuery struct {
	Drug       string
	Indication string
	Phase      string
	Status     string
}

// DefaultTrialQuery returns completed phase 3 trials for drug in indication
func DefaultTrialQuery(drug, indication string) TrialQuery {
	return TrialQuery{
		Drug:       drug,
		Indication: indication,
		Phase:      "PHASE3",
		Status:     "COMPLETED",
	}
}

type studiesResponse struct {
	Studies []study `json:"studies"`
}

type study struct {
	Protocol struct {
		Identification struct {
			NCTID         string `json:"nctId"`
			OfficialTitle string `json:"officialTitle"`
			BriefTitle    string `json:"briefTitle"`
		} `json:"identificationModule"`
		Status struct {
			OverallStatus string `json:"overallStatus"`
			StartDate     struct {
				Date string `json:"date"`
			} `json:"startDateStruct"`
			CompletionDate struct {
				Date string `json:"date"`
			} `json:"completionDateStruct"`
		} `json:"statusModule"`
		Design struct {
			Phases     []string `json:"phases"`
			Enrollment struct {
				Count int `json:"count"`
			} `json:"enrollmentInfo"`
		} `json:"designModule"`
		Arms struct {
			Interventions []struct {
				Type string `json:"type"`
				Name string `json:"name"`
			} `json:"interventions"`
		} `json:"armsInterventionsModule"`
		Outcomes struct {
			Primary   []outcome `json:"primaryOutcomes"`
			Secondary []outcome `json:"secondaryOutcomes"`
		} `json:"outcomesModule"`
		Sponsors struct {
			Lead struct {
				Name string `json:"name"`
			} `json:"leadSponsor"`
		} `json:"sponsorCollaboratorsModule"`
	} `json:"protocolSection"`
	Results json.RawMessage `json:"resultsSection"`
}

type outcome struct {
	Measure string `json:"measure"`
}

// TrialURL returns the public registry page for an NCT id
func TrialURL(nctID string) string {
	return "https://clinicaltrials.gov/study/" + nctID
}

func (s study) toRecord() (model.TrialRecord, bool) {
	p := s.Protocol
	nct := strings.TrimSpace(p.Identification.NCTID)
	if nct == "" {
		return model.TrialRecord{}, false
	}

	status := p.Status.OverallStatus
	if status == "" {
		status = "UNKNOWN"
	}

	rec := model.TrialRecord{
		NCTID:             nct,
		Title:             p.Identification.OfficialTitle,
		BriefTitle:        p.Identification.BriefTitle,
		Status:            status,
		Enrollment:        p.Design.Enrollment.Count,
		StartDate:         p.Status.StartDate.Date,
		CompletionDate:    p.Status.CompletionDate.Date,
		PrimaryOutcomes:   measures(p.Outcomes.Primary),
		SecondaryOutcomes: measures(p.Outcomes.Secondary),
		Sponsor:           p.Sponsors.Lead.Name,
		HasResults:        len(s.Results) > 0 && string(s.Results) != "null",
		URL:               TrialURL(nct),
	}
	if len(p.Design.Phases) > 0 {
		rec.Phase = p.Design.Phases[0]
	}
	if len(p.Arms.Interventions) > 0 {
		rec.InterventionType = p.Arms.Interventions[0].Type
		rec.InterventionName = p.Arms.Interventions[0].Name
	}
	return rec, true
}

func measures(outcomes []outcome) []string {
	out := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		out = append(out, o.Measure)
	}
	return out
}

// Search returns registry entries matching q, in API order.
// Studies without an NCT id are dropped.
func (t *Trials) Search(ctx context.Context, q TrialQuery) ([]model.TrialRecord, error) {
	terms := []string{strings.TrimSpace(q.Drug)}
	if ind := strings.TrimSpace(q.Indication); ind != "" {
		terms = append(terms, ind)
	}

	params := url.Values{}
	params.Set("query.term", strings.Join(terms, " AND "))
	params.Set("pageSize", strconv.Itoa(t.pageSize))
	params.Set("format", "json")
	if q.Status != "" {
		params.Set("filter.overallStatus", q.Status)
	}
	if q.Phase != "" {
		params.Set("filter.phase", q.Phase)
	}

	body, err := t.fetcher.Get(ctx, buildURL(t.baseURL, params), "application/json")
	if err != nil {
		return nil, fmt.Errorf("clinicaltrials search: %w", err)
	}

	var resp studiesResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode clinicaltrials response: %w", err)
	}

	trials := make([]model.TrialRecord, 0, len(resp.Studies))
	for _, s := range resp.Studies {
		rec, ok := s.toRecord()
		if !ok {
			t.fetcher.log.Debugw("dropped study without nctId")
			continue
		}
		trials = append(trials, rec)
	}
	return trials, nil
}
