package source

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/ppiankov/rxclaims/internal/model"
	"github.com/ppiankov/rxclaims/internal/util"
)

const (
	maxSummaryAuthors  = 3
	maxFullTextAuthors = 5
	untitledSection    = "Untitled"
)

// markup captures an element's raw inner XML so inline tags can be stripped later
type markup struct {
	Inner string `xml:",innerxml"`
}

func (m markup) text() string {
	return util.PlainText(renameTitleTags(m.Inner))
}

// PubMed efetch (rettype=abstract) document

type pubmedArticleSet struct {
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	PMID    string `xml:"MedlineCitation>PMID"`
	Article struct {
		Journal struct {
			Title   string `xml:"Title"`
			PubDate struct {
				Year        string `xml:"Year"`
				MedlineDate string `xml:"MedlineDate"`
			} `xml:"JournalIssue>PubDate"`
		} `xml:"Journal"`
		Title            markup         `xml:"ArticleTitle"`
		AbstractTexts    []abstractText `xml:"Abstract>AbstractText"`
		Authors          []pubmedAuthor `xml:"AuthorList>Author"`
		PublicationTypes []string       `xml:"PublicationTypeList>PublicationType"`
	} `xml:"MedlineCitation>Article"`
	ArticleIDs []articleID `xml:"PubmedData>ArticleIdList>ArticleId"`
}

type abstractText struct {
	Label string `xml:"Label,attr"`
	markup
}

type pubmedAuthor struct {
	LastName       string `xml:"LastName"`
	ForeName       string `xml:"ForeName"`
	Initials       string `xml:"Initials"`
	CollectiveName string `xml:"CollectiveName"`
}

func (a pubmedAuthor) display() string {
	if a.LastName == "" {
		return strings.TrimSpace(a.CollectiveName)
	}
	initials := a.Initials
	if initials == "" && a.ForeName != "" {
		r, _ := utf8.DecodeRuneInString(a.ForeName)
		initials = string(r)
	}
	return strings.TrimSpace(a.LastName + " " + initials)
}

type articleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// JATS (PMC efetch) document

type pmcArticleSet struct {
	Articles []jatsArticle `xml:"article"`
	Error    string        `xml:"error"`
}

type jatsArticle struct {
	Front struct {
		JournalTitles []string `xml:"journal-meta>journal-title-group>journal-title"`
		JournalTitle  string   `xml:"journal-meta>journal-title"`
		Meta          struct {
			IDs      []jatsArticleID `xml:"article-id"`
			Title    markup          `xml:"title-group>article-title"`
			Abstract []markup        `xml:"abstract"`
			Contribs []jatsContrib   `xml:"contrib-group>contrib"`
			PubDates []jatsPubDate   `xml:"pub-date"`
		} `xml:"article-meta"`
	} `xml:"front"`
	Body struct {
		Sections []jatsSection `xml:"sec"`
	} `xml:"body"`
}

type jatsArticleID struct {
	Type  string `xml:"pub-id-type,attr"`
	Value string `xml:",chardata"`
}

type jatsContrib struct {
	Type string `xml:"contrib-type,attr"`
	Name struct {
		Surname    string `xml:"surname"`
		GivenNames string `xml:"given-names"`
	} `xml:"name"`
	Collab string `xml:"collab"`
}

func (c jatsContrib) display() string {
	if c.Name.Surname == "" {
		return util.CollapseSpace(c.Collab)
	}
	return util.CollapseSpace(c.Name.GivenNames + " " + c.Name.Surname)
}

type jatsPubDate struct {
	Year string `xml:"year"`
}

type jatsSection struct {
	Title markup `xml:"title"`
	Inner string `xml:",innerxml"`
}

var (
	leadingTitleRe = regexp.MustCompile(`(?s)^\s*(?:<label[^>]*>.*?</label>\s*)?<title[^>]*>.*?</title>`)
	titleTagRe     = regexp.MustCompile(`<(/?)title\b`)
	yearRe         = regexp.MustCompile(`\b(19|20)\d{2}\b`)
)

// renameTitleTags keeps the HTML tokenizer from treating JATS <title> as raw text
func renameTitleTags(s string) string {
	return titleTagRe.ReplaceAllString(s, "<${1}sec-title")
}

func newXMLDecoder(data []byte) *xml.Decoder {
	d := xml.NewDecoder(bytes.NewReader(data))
	d.Strict = false
	d.Entity = xml.HTMLEntity
	return d
}

// parsePubmedArticleSet converts an efetch pubmed document into summaries.
// skipped lists one reason per dropped record.
func parsePubmedArticleSet(data []byte) (summaries []model.ArticleSummary, skipped []string, err error) {
	var set pubmedArticleSet
	if err := newXMLDecoder(data).Decode(&set); err != nil {
		return nil, nil, fmt.Errorf("decode: %w", err)
	}

	for i, a := range set.Articles {
		s, err := a.toSummary()
		if err != nil {
			skipped = append(skipped, fmt.Sprintf("record %d: %v", i, err))
			continue
		}
		summaries = append(summaries, s)
	}
	return summaries, skipped, nil
}

func (a pubmedArticle) toSummary() (model.ArticleSummary, error) {
	pmid := strings.TrimSpace(a.PMID)
	if pmid == "" {
		return model.ArticleSummary{}, errors.New("missing PMID")
	}
	title := a.Article.Title.text()
	if title == "" {
		return model.ArticleSummary{}, fmt.Errorf("pmid %s: missing title", pmid)
	}

	s := model.ArticleSummary{
		PMID:     pmid,
		Title:    title,
		Abstract: joinAbstract(a.Article.AbstractTexts),
		Journal:  util.CollapseSpace(a.Article.Journal.Title),
		Year:     pubmedYear(a.Article.Journal.PubDate.Year, a.Article.Journal.PubDate.MedlineDate),
	}

	for _, au := range a.Article.Authors {
		if len(s.Authors) == maxSummaryAuthors {
			break
		}
		if name := au.display(); name != "" {
			s.Authors = append(s.Authors, name)
		}
	}

	for _, pt := range a.Article.PublicationTypes {
		if pt = strings.TrimSpace(pt); pt != "" {
			s.PublicationTypes = append(s.PublicationTypes, pt)
		}
	}

	for _, id := range a.ArticleIDs {
		v := strings.TrimSpace(id.Value)
		switch strings.ToLower(id.IDType) {
		case "pmc":
			s.PMCID = v
		case "doi":
			s.DOI = v
		}
	}

	return s, nil
}

func joinAbstract(parts []abstractText) string {
	var segs []string
	for _, p := range parts {
		text := p.text()
		if text == "" {
			continue
		}
		if p.Label != "" {
			text = p.Label + ": " + text
		}
		segs = append(segs, text)
	}
	return strings.Join(segs, " ")
}

func pubmedYear(year, medlineDate string) string {
	if y := strings.TrimSpace(year); y != "" {
		return y
	}
	return yearRe.FindString(medlineDate)
}

// parsePMCArticle converts an efetch pmc document into a full-text article.
// An article with no body sections is a parse failure.
func parsePMCArticle(data []byte) (*model.FullTextArticle, error) {
	var set pmcArticleSet
	if err := newXMLDecoder(data).Decode(&set); err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}
	if set.Error != "" && len(set.Articles) == 0 {
		return nil, fmt.Errorf("pmc: %s", util.CollapseSpace(set.Error))
	}
	if len(set.Articles) == 0 {
		// bare <article> root
		var single jatsArticle
		if err := newXMLDecoder(data).Decode(&single); err != nil {
			return nil, fmt.Errorf("decode article: %w", err)
		}
		set.Articles = append(set.Articles, single)
	}

	a := set.Articles[0]
	meta := a.Front.Meta

	article := &model.FullTextArticle{
		Title:   meta.Title.text(),
		Journal: jatsJournal(a),
	}

	var abstracts []string
	for _, abs := range meta.Abstract {
		if t := abs.text(); t != "" {
			abstracts = append(abstracts, t)
		}
	}
	article.Abstract = strings.Join(abstracts, " ")

	for _, c := range meta.Contribs {
		if len(article.Authors) == maxFullTextAuthors {
			break
		}
		if c.Type != "" && c.Type != "author" {
			continue
		}
		if name := c.display(); name != "" {
			article.Authors = append(article.Authors, name)
		}
	}

	for _, id := range meta.IDs {
		switch id.Type {
		case "doi":
			article.DOI = strings.TrimSpace(id.Value)
		case "pmid":
			article.PMID = strings.TrimSpace(id.Value)
		}
	}

	for _, d := range meta.PubDates {
		if y := strings.TrimSpace(d.Year); y != "" {
			article.Year = y
			break
		}
	}

	var parts []string
	for _, sec := range a.Body.Sections {
		title := sec.Title.text()
		if title == "" {
			title = untitledSection
		}
		body := leadingTitleRe.ReplaceAllString(sec.Inner, "")
		text := util.PlainText(renameTitleTags(body))
		if text == "" {
			continue
		}
		article.Sections = append(article.Sections, model.Section{Title: title, Text: text})
		parts = append(parts, "## "+title+"\n"+text+"\n")
	}

	if len(article.Sections) == 0 {
		return nil, errors.New("article has no body sections")
	}
	article.FullText = strings.Join(parts, "\n\n")

	return article, nil
}

func jatsJournal(a jatsArticle) string {
	for _, t := range a.Front.JournalTitles {
		if t = util.CollapseSpace(t); t != "" {
			return t
		}
	}
	return util.CollapseSpace(a.Front.JournalTitle)
}
