// Package source holds the per-site adapters and the registry that maps
// work references onto them.
package source

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/bindery/novelbind/internal/novel"
)

// newDoc parses an HTML body into a goquery document.
func newDoc(body []byte) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	return doc, nil
}

// absoluteURL resolves href against base, tolerating scheme-relative and
// path-relative links the way novel sites emit them.
func absoluteURL(base *url.URL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	return base.ResolveReference(ref).String()
}

// contentHTML extracts the inner HTML of a content selection with script,
// style, and known ad containers stripped.
func contentHTML(sel *goquery.Selection) (string, error) {
	sel.Find("script, style, ins, iframe, div[align=\"center\"]").Remove()
	html, err := sel.Html()
	if err != nil {
		return "", fmt.Errorf("extract content: %w", err)
	}
	html = strings.TrimSpace(html)
	if html == "" {
		return "", fmt.Errorf("content selection is empty")
	}
	return html, nil
}

// metaContent returns the content attribute of the first matching meta tag.
func metaContent(doc *goquery.Document, selector string) string {
	val, _ := doc.Find(selector).Attr("content")
	return strings.TrimSpace(val)
}

// dedupeRefs drops chapters whose URL was already collected, preserving
// first-seen order, then renumbers indices 1..n. Paginated chapter lists
// repeat the landing page entries.
func dedupeRefs(refs []novel.ChapterRef) []novel.ChapterRef {
	seen := make(map[string]struct{}, len(refs))
	out := refs[:0]
	for _, ref := range refs {
		if _, ok := seen[ref.URL]; ok {
			continue
		}
		seen[ref.URL] = struct{}{}
		ref.Index = len(out) + 1
		out = append(out, ref)
	}
	return out
}
