package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bindery/novelbind/internal/novel"
)

// FanMTL crawls fanmtl.com. Chapter lists paginate through an AJAX
// endpoint that expects the X-Requested-With header; chapter bodies are
// plain server-rendered HTML.
type FanMTL struct {
	fetcher novel.Fetcher
	logger  *zap.Logger
}

// NewFanMTL constructs the adapter.
func NewFanMTL(fetcher novel.Fetcher, logger *zap.Logger) *FanMTL {
	return &FanMTL{fetcher: fetcher, logger: logger}
}

// Site implements novel.Source.
func (f *FanMTL) Site() string { return "fanmtl.com" }

// NeedsRendering implements novel.Source.
func (f *FanMTL) NeedsRendering() bool { return false }

// ListChapters implements novel.Source.
func (f *FanMTL) ListChapters(ctx context.Context, workURL string) (*novel.Work, error) {
	base, err := url.Parse(workURL)
	if err != nil {
		return nil, &novel.ResolutionError{Site: f.Site(), Err: fmt.Errorf("parse work url: %w", err)}
	}
	body, err := f.fetcher.Fetch(ctx, workURL, nil)
	if err != nil {
		return nil, &novel.ResolutionError{Site: f.Site(), Err: err}
	}
	doc, err := newDoc(body)
	if err != nil {
		return nil, &novel.ResolutionError{Site: f.Site(), Err: err}
	}

	work := &novel.Work{URL: workURL}
	work.Title = strings.TrimSpace(doc.Find("h1.novel-title").First().Text())
	if work.Title == "" {
		work.Title = metaContent(doc, `meta[property="og:title"]`)
	}
	work.Author = strings.TrimSpace(doc.Find(`.novel-info .author span[itemprop="author"]`).First().Text())
	work.Synopsis = strings.TrimSpace(doc.Find(".summary .content").First().Text())
	if img := doc.Find("figure.cover img").First(); img.Length() > 0 {
		src, _ := img.Attr("src")
		if strings.Contains(src, "placeholder") {
			if data, ok := img.Attr("data-src"); ok {
				src = data
			}
		}
		work.CoverURL = absoluteURL(base, src)
	}

	refs := f.parseChapterList(base, doc)

	pages, err := f.paginatedRefs(ctx, base, doc)
	if err != nil {
		return nil, &novel.ResolutionError{Site: f.Site(), Err: err}
	}
	refs = append(refs, pages...)
	work.Chapters = dedupeRefs(refs)

	if len(work.Chapters) == 0 {
		return nil, &novel.ResolutionError{Site: f.Site(), Err: fmt.Errorf("no chapters found at %s", workURL)}
	}
	return work, nil
}

func (f *FanMTL) parseChapterList(base *url.URL, doc *goquery.Document) []novel.ChapterRef {
	var refs []novel.ChapterRef
	doc.Find("ul.chapter-list li a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(a.Find(".chapter-title").Text())
		if title == "" {
			title = strings.TrimSpace(a.Text())
		}
		refs = append(refs, novel.ChapterRef{
			URL:   absoluteURL(base, href),
			Title: title,
		})
	})
	return refs
}

// paginatedRefs walks the AJAX chapter-list pages advertised by the
// pagination control. The last pagination link carries the final page
// number and the wjm token shared by every page.
func (f *FanMTL) paginatedRefs(ctx context.Context, base *url.URL, doc *goquery.Document) ([]novel.ChapterRef, error) {
	links := doc.Find(`.pagination a[data-ajax-update="#chpagedlist"]`)
	if links.Length() == 0 {
		return nil, nil
	}
	last := links.Last()
	href, ok := last.Attr("href")
	if !ok {
		return nil, nil
	}
	parsed, err := url.Parse(href)
	if err != nil {
		return nil, fmt.Errorf("parse pagination link: %w", err)
	}
	query := parsed.Query()
	lastPage, err := strconv.Atoi(query.Get("page"))
	if err != nil {
		return nil, fmt.Errorf("parse pagination page: %w", err)
	}
	wjm := query.Get("wjm")
	common := absoluteURL(base, parsed.Path)

	header := http.Header{}
	header.Set("X-Requested-With", "XMLHttpRequest")

	// Pages are independent, so fetch them concurrently and reassemble
	// in page order; list order defines chapter indices.
	byPage := make([][]novel.ChapterRef, lastPage+1)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for page := 0; page <= lastPage; page++ {
		g.Go(func() error {
			pageURL := fmt.Sprintf("%s?page=%d&wjm=%s", common, page, url.QueryEscape(wjm))
			body, err := f.fetcher.Fetch(ctx, pageURL, header)
			if err != nil {
				return fmt.Errorf("fetch chapter page %d: %w", page, err)
			}
			pageDoc, err := newDoc(body)
			if err != nil {
				return fmt.Errorf("parse chapter page %d: %w", page, err)
			}
			byPage[page] = f.parseChapterList(base, pageDoc)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var refs []novel.ChapterRef
	for _, page := range byPage {
		refs = append(refs, page...)
	}
	return refs, nil
}

// FetchChapter implements novel.Source.
func (f *FanMTL) FetchChapter(ctx context.Context, ref novel.ChapterRef, _ novel.RenderSession) (string, error) {
	body, err := f.fetcher.Fetch(ctx, ref.URL, nil)
	if err != nil {
		return "", err
	}
	doc, err := newDoc(body)
	if err != nil {
		return "", novel.TerminalFetch(err)
	}
	sel := doc.Find("#chapter-article .chapter-content").First()
	if sel.Length() == 0 {
		return "", novel.TerminalFetch(fmt.Errorf("chapter content missing at %s", ref.URL))
	}
	html, err := contentHTML(sel)
	if err != nil {
		return "", novel.TerminalFetch(err)
	}
	return html, nil
}
