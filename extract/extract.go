// Package extract pulls structured listing data out of job-posting HTML.
//
// Both sides of the tool protocol use it: the fetch_content handler returns
// a page title and collapsed text alongside the raw HTML, and the analysis
// agent derives the full listing (title, company, location, excerpt) before
// scoring.
package extract

import (
	"regexp"
	"strings"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Listing is the structured view of one job posting.
type Listing struct {
	Title      string // h1 if present, else <title>
	Company    string // meta tags, else split from the title
	Location   string // "Location: ..." pattern in the page text
	Text       string // whitespace-collapsed plain text of the page
	RawExcerpt string // first 400 chars of Text
}

const excerptLen = 400

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	locationRe   = regexp.MustCompile(`Location[:\s]+([A-Za-z0-9 ,./-]{3,60})`)
	stripPolicy  = bluemonday.StrictPolicy()
)

// FromHTML parses a listing page. Malformed HTML never fails: the html
// package repairs what it can and the zero Listing is a valid result.
func FromHTML(src string) *Listing {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		doc = nil
	}

	l := &Listing{}
	if doc != nil {
		h1 := firstText(doc, atom.H1)
		title := firstText(doc, atom.Title)
		l.Title = h1
		if l.Title == "" {
			l.Title = title
		}
		l.Company = metaCompany(doc)
	}
	if l.Company == "" {
		l.Company = companyFromTitle(l.Title)
	}

	l.Text = Text(src)
	if loc := locationRe.FindStringSubmatch(l.Text); loc != nil {
		l.Location = strings.TrimSpace(loc[1])
	}
	l.RawExcerpt = truncate(l.Text, excerptLen)
	return l
}

// FromParts builds a listing from pre-fetched HTML plus the plain-text
// rendering and page title that came with it, as returned by the
// fetch_content tool. Title and company come from the markup; location and
// the excerpt come from the supplied text.
func FromParts(src, text, defaultTitle string) *Listing {
	l := &Listing{Text: strings.TrimSpace(text)}

	doc, err := html.Parse(strings.NewReader(src))
	if err == nil {
		l.Title = firstText(doc, atom.H1)
		l.Company = metaCompany(doc)
	}
	if l.Title == "" {
		l.Title = strings.TrimSpace(defaultTitle)
	}
	if l.Company == "" {
		l.Company = companyFromTitle(l.Title)
	}
	if loc := locationRe.FindStringSubmatch(l.Text); loc != nil {
		l.Location = strings.TrimSpace(loc[1])
	}
	l.RawExcerpt = truncate(l.Text, excerptLen)
	return l
}

// Title returns the page's h1 or <title> text.
func Title(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return ""
	}
	if h1 := firstText(doc, atom.H1); h1 != "" {
		return h1
	}
	return firstText(doc, atom.Title)
}

// Text converts HTML to collapsed plain text. Markdown conversion preserves
// reading order and drops script/style noise; tag stripping is the fallback
// for fragments the converter rejects.
func Text(src string) string {
	if src == "" {
		return ""
	}
	out, err := mdConverter.ConvertString(src)
	if err != nil || strings.TrimSpace(out) == "" {
		out = stripPolicy.Sanitize(src)
	}
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(out, " "))
}

// TextExcerpt returns Text capped at max characters.
func TextExcerpt(src string, max int) string {
	return truncate(Text(src), max)
}

var mdConverter = converter.NewConverter(
	converter.WithPlugins(
		base.NewBasePlugin(),
		commonmark.NewCommonmarkPlugin(),
	),
)

// firstText returns the trimmed text content of the first element with the
// given tag.
func firstText(n *html.Node, tag atom.Atom) string {
	if n.Type == html.ElementNode && n.DataAtom == tag {
		return strings.TrimSpace(collectText(n))
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if t := firstText(c, tag); t != "" {
			return t
		}
	}
	return ""
}

func collectText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(collectText(c))
	}
	return sb.String()
}

// metaCompany looks for the publisher name in meta tags.
func metaCompany(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Meta {
		var key, content string
		for _, a := range n.Attr {
			switch a.Key {
			case "property", "name":
				if key == "" {
					key = a.Val
				}
			case "content":
				content = a.Val
			}
		}
		switch key {
		case "og:site_name", "application-name", "company":
			if content != "" {
				return content
			}
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if v := metaCompany(c); v != "" {
			return v
		}
	}
	return ""
}

// companyFromTitle splits "Role - Company" style titles on common separators
// and returns the last segment.
func companyFromTitle(title string) string {
	for _, sep := range []string{" - ", " | ", " @ "} {
		parts := strings.Split(title, sep)
		if len(parts) >= 2 {
			return strings.TrimSpace(parts[len(parts)-1])
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
