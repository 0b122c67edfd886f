package util

import (
	"strings"

	"golang.org/x/net/html"
)

// PlainText strips inline markup (JATS <italic>, <sup>, <xref>, HTML tags)
// and collapses whitespace.
func PlainText(markup string) string {
	if !strings.ContainsAny(markup, "<&") {
		return CollapseSpace(markup)
	}

	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return CollapseSpace(b.String())
		case html.TextToken:
			b.Write(z.Text())
		case html.StartTagToken, html.EndTagToken, html.SelfClosingTagToken:
			// tags like <p> or <title> separate words; inline ones usually sit inside words
			name, _ := z.TagName()
			if isBlockTag(string(name)) {
				b.WriteByte(' ')
			}
		}
	}
}

func isBlockTag(name string) bool {
	switch name {
	case "p", "title", "sec-title", "sec", "list-item", "list", "table", "tr", "td", "th",
		"label", "caption", "fig", "table-wrap", "br", "div", "li", "abstracttext":
		return true
	}
	return false
}

// CollapseSpace replaces whitespace runs with single spaces and trims the ends
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Truncate returns at most n bytes of s without splitting a UTF-8 sequence
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

func isRuneStart(b byte) bool {
	return b&0xC0 != 0x80
}
