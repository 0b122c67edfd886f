package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/rxclaims/internal/model"
)

// Uploader stores a rendered output remotely and returns its location
type Uploader interface {
	Put(ctx context.Context, key string, body []byte, contentType string) (string, error)
}

// RenderTargets says where one output goes. Empty fields are skipped.
type RenderTargets struct {
	JSONPath string
	MDPath   string
	Uploader Uploader
}

// Written lists the locations an output was written to
type Written struct {
	JSONPath string
	MDPath   string
	Remote   []string
}

// DefaultJSONPath returns dir/claims_<timestamp>.json
func DefaultJSONPath(dir string, t time.Time) string {
	return filepath.Join(dir, "claims_"+t.UTC().Format("20060102_150405")+".json")
}

// MarshalOutput renders out as indented JSON
func MarshalOutput(out *model.ClaimsOutput) ([]byte, error) {
	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal output: %w", err)
	}
	return append(data, '\n'), nil
}

// RenderOutput writes out to every configured target
func RenderOutput(ctx context.Context, out *model.ClaimsOutput, t RenderTargets) (*Written, error) {
	data, err := MarshalOutput(out)
	if err != nil {
		return nil, err
	}
	md := Markdown(out)

	w := &Written{}
	if t.JSONPath != "" {
		if err := writeFile(t.JSONPath, data); err != nil {
			return w, fmt.Errorf("write JSON: %w", err)
		}
		w.JSONPath = t.JSONPath
	}
	if t.MDPath != "" {
		if err := writeFile(t.MDPath, []byte(md)); err != nil {
			return w, fmt.Errorf("write markdown: %w", err)
		}
		w.MDPath = t.MDPath
	}

	if t.Uploader != nil {
		base := objectBase(out)
		loc, err := t.Uploader.Put(ctx, base+".json", data, "application/json")
		if err != nil {
			return w, fmt.Errorf("upload JSON: %w", err)
		}
		w.Remote = append(w.Remote, loc)

		loc, err = t.Uploader.Put(ctx, base+".md", []byte(md), "text/markdown; charset=utf-8")
		if err != nil {
			return w, fmt.Errorf("upload markdown: %w", err)
		}
		w.Remote = append(w.Remote, loc)
	}

	return w, nil
}

// objectBase names remote objects by request id, falling back to the timestamp
func objectBase(out *model.ClaimsOutput) string {
	if id := out.SearchSummary.RequestID; id != "" {
		return "claims_" + id
	}
	return "claims_" + out.SearchSummary.Timestamp.UTC().Format("20060102_150405")
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// Markdown renders out for human review
func Markdown(out *model.ClaimsOutput) string {
	var b strings.Builder
	s := out.SearchSummary

	b.WriteString("# Claims Report\n\n")
	fmt.Fprintf(&b, "**Query:** %s\n\n", s.UserQuery)
	if s.RequestID != "" {
		fmt.Fprintf(&b, "**Request:** `%s`  \n", s.RequestID)
	}
	fmt.Fprintf(&b, "**Generated:** %s  \n", s.Timestamp.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "**Search time:** %.1fs\n\n", s.SearchTimeSeconds)

	b.WriteString("## Sources\n\n")
	b.WriteString("| Source | Found |\n|---|---|\n")
	r := s.ResultsFound
	fmt.Fprintf(&b, "| FDA labels | %d |\n", r.FDALabels)
	fmt.Fprintf(&b, "| PubMed articles | %d |\n", r.PubMedTotal)
	fmt.Fprintf(&b, "| with PMC full text | %d |\n", r.PubMedFullText)
	fmt.Fprintf(&b, "| abstract only | %d |\n", r.PubMedAbstractOnly)
	fmt.Fprintf(&b, "| Clinical trials | %d |\n\n", r.ClinicalTrials)
	fmt.Fprintf(&b, "_%s_\n\n", s.FullTextStrategy)

	fmt.Fprintf(&b, "## Claims (%d)\n\n", len(out.Claims))
	if len(out.Claims) == 0 {
		b.WriteString("No claims passed validation.\n\n")
	}
	for i := range out.Claims {
		c := &out.Claims[i]
		fmt.Fprintf(&b, "### %d. %s\n\n", c.ID, c.Text)
		fmt.Fprintf(&b, "- **Type:** %s\n", c.Type.Title())
		fmt.Fprintf(&b, "- **Source:** %s\n", c.SourceType)
		fmt.Fprintf(&b, "- **Confidence:** %s\n", c.Confidence)
		if c.ExcerptLocation != "" {
			fmt.Fprintf(&b, "- **Excerpt:** %s\n", c.ExcerptLocation)
		}
		b.WriteString("\n")
		if c.Substantiation != "" {
			fmt.Fprintf(&b, "> %s\n\n", c.Substantiation)
		}
		b.WriteString("**Citations:**\n\n")
		for _, cit := range c.Citations {
			b.WriteString("- ")
			if cit.Primary {
				b.WriteString("**[primary]** ")
			}
			b.WriteString(cit.Text)
			if link := citationLink(cit); link != "" {
				fmt.Fprintf(&b, " <%s>", link)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	ctx := out.AdditionalContext
	if len(ctx.ArticlesWithoutFullText) > 0 {
		b.WriteString("## Relevant articles without full text\n\n")
		for _, a := range ctx.ArticlesWithoutFullText {
			fmt.Fprintf(&b, "- PMID %s: %s", a.PMID, a.Title)
			if a.Journal != "" {
				fmt.Fprintf(&b, " (%s", a.Journal)
				if a.Year != "" {
					fmt.Fprintf(&b, ", %s", a.Year)
				}
				b.WriteString(")")
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(ctx.Warnings) > 0 {
		b.WriteString("## Warnings\n\n")
		for _, w := range ctx.Warnings {
			fmt.Fprintf(&b, "- %s\n", w)
		}
		b.WriteString("\n")
	}

	if ctx.Recommendation != "" {
		fmt.Fprintf(&b, "---\n\n%s\n", ctx.Recommendation)
	}

	return b.String()
}

func citationLink(c model.Citation) string {
	switch {
	case c.PMCURL != "":
		return c.PMCURL
	case c.URL != "":
		return c.URL
	case c.DOI != "":
		return "https://doi.org/" + c.DOI
	}
	return ""
}

// PrintSummary writes a short terminal summary of out
func PrintSummary(w io.Writer, out *model.ClaimsOutput) {
	s := out.SearchSummary
	fmt.Fprintf(w, "\n")
	fmt.Fprintf(w, "Query:   %s\n", s.UserQuery)
	fmt.Fprintf(w, "Sources: label=%d articles=%d (full text %d) trials=%d\n",
		s.ResultsFound.FDALabels, s.ResultsFound.PubMedTotal, s.ResultsFound.PubMedFullText, s.ResultsFound.ClinicalTrials)
	fmt.Fprintf(w, "Claims:  %d\n", len(out.Claims))
	for _, c := range out.Claims {
		fmt.Fprintf(w, "  %d. [%s] %s\n", c.ID, c.SourceType, c.Text)
	}
	if n := len(out.AdditionalContext.ArticlesWithoutFullText); n > 0 {
		fmt.Fprintf(w, "Excluded (no full text): %d listed\n", n)
	}
	fmt.Fprintf(w, "\n")
}
