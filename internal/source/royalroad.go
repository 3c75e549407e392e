package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/novel"
)

// RoyalRoad crawls royalroad.com fictions. The full chapter table is
// server-rendered on the fiction page, so no pagination or rendering is
// needed.
type RoyalRoad struct {
	fetcher novel.Fetcher
	logger  *zap.Logger
}

// NewRoyalRoad constructs the adapter.
func NewRoyalRoad(fetcher novel.Fetcher, logger *zap.Logger) *RoyalRoad {
	return &RoyalRoad{fetcher: fetcher, logger: logger}
}

// Site implements novel.Source.
func (r *RoyalRoad) Site() string { return "royalroad.com" }

// NeedsRendering implements novel.Source.
func (r *RoyalRoad) NeedsRendering() bool { return false }

// ListChapters implements novel.Source.
func (r *RoyalRoad) ListChapters(ctx context.Context, workURL string) (*novel.Work, error) {
	base, err := url.Parse(workURL)
	if err != nil {
		return nil, &novel.ResolutionError{Site: r.Site(), Err: fmt.Errorf("parse work url: %w", err)}
	}
	body, err := r.fetcher.Fetch(ctx, workURL, nil)
	if err != nil {
		return nil, &novel.ResolutionError{Site: r.Site(), Err: err}
	}
	doc, err := newDoc(body)
	if err != nil {
		return nil, &novel.ResolutionError{Site: r.Site(), Err: err}
	}

	work := &novel.Work{URL: workURL}
	work.Title = strings.TrimSpace(doc.Find("div.fic-title h1").First().Text())
	if work.Title == "" {
		work.Title = metaContent(doc, `meta[property="og:title"]`)
	}
	work.Author = strings.TrimSpace(doc.Find("div.fic-title h4 a").First().Text())
	work.Synopsis = strings.TrimSpace(doc.Find("div.description").First().Text())
	if src, ok := doc.Find("img.thumbnail").First().Attr("src"); ok {
		work.CoverURL = absoluteURL(base, src)
	}

	var refs []novel.ChapterRef
	doc.Find("table#chapters tbody tr td:first-child a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		refs = append(refs, novel.ChapterRef{
			URL:   absoluteURL(base, href),
			Title: strings.TrimSpace(a.Text()),
		})
	})
	work.Chapters = dedupeRefs(refs)

	if len(work.Chapters) == 0 {
		return nil, &novel.ResolutionError{Site: r.Site(), Err: fmt.Errorf("no chapters found at %s", workURL)}
	}
	return work, nil
}

// FetchChapter implements novel.Source.
func (r *RoyalRoad) FetchChapter(ctx context.Context, ref novel.ChapterRef, _ novel.RenderSession) (string, error) {
	body, err := r.fetcher.Fetch(ctx, ref.URL, nil)
	if err != nil {
		return "", err
	}
	doc, err := newDoc(body)
	if err != nil {
		return "", novel.TerminalFetch(err)
	}
	sel := doc.Find("div.chapter-inner.chapter-content").First()
	if sel.Length() == 0 {
		return "", novel.TerminalFetch(fmt.Errorf("chapter content missing at %s", ref.URL))
	}
	html, err := contentHTML(sel)
	if err != nil {
		return "", novel.TerminalFetch(err)
	}
	return html, nil
}
