package source

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/bindery/novelbind/internal/novel"
)

// LNMTL crawls lnmtl.com. The site builds both its chapter list and the
// chapter text client-side, so every page goes through a render session.
// The adapter holds the pool only for listing; chapter fetches use the
// session handed in by the worker.
type LNMTL struct {
	renderPool novel.RenderPool
	limiter    *rate.Limiter
	logger     *zap.Logger
}

// NewLNMTL constructs the adapter. Rendered navigations are throttled to
// one per second; the site bans hosts that hammer it.
func NewLNMTL(renderPool novel.RenderPool, logger *zap.Logger) *LNMTL {
	return &LNMTL{
		renderPool: renderPool,
		limiter:    rate.NewLimiter(rate.Limit(1), 1),
		logger:     logger,
	}
}

// Site implements novel.Source.
func (l *LNMTL) Site() string { return "lnmtl.com" }

// NeedsRendering implements novel.Source.
func (l *LNMTL) NeedsRendering() bool { return true }

// ListChapters implements novel.Source.
func (l *LNMTL) ListChapters(ctx context.Context, workURL string) (*novel.Work, error) {
	base, err := url.Parse(workURL)
	if err != nil {
		return nil, &novel.ResolutionError{Site: l.Site(), Err: fmt.Errorf("parse work url: %w", err)}
	}

	sess, err := l.renderPool.Acquire(ctx)
	if err != nil {
		return nil, &novel.ResolutionError{Site: l.Site(), Err: err}
	}
	defer l.renderPool.Release(sess)

	if err := l.limiter.Wait(ctx); err != nil {
		return nil, &novel.ResolutionError{Site: l.Site(), Err: err}
	}
	html, err := sess.Render(ctx, workURL, ".novel-name")
	if err != nil {
		return nil, &novel.ResolutionError{Site: l.Site(), Err: err}
	}
	doc, err := newDoc([]byte(html))
	if err != nil {
		return nil, &novel.ResolutionError{Site: l.Site(), Err: err}
	}

	work := &novel.Work{URL: workURL}
	work.Title = strings.TrimSpace(doc.Find(".novel-name").First().Text())
	if work.Title == "" {
		work.Title = metaContent(doc, `meta[property="og:title"]`)
	}
	work.Author = strings.TrimSpace(doc.Find(".novel .media .authors a").First().Text())
	work.Synopsis = strings.TrimSpace(doc.Find(".description").First().Text())
	if src, ok := doc.Find(".novel .media img").First().Attr("src"); ok {
		work.CoverURL = absoluteURL(base, src)
	}

	var refs []novel.ChapterRef
	doc.Find(".chapter-list a[href]").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok {
			return
		}
		title := strings.TrimSpace(a.AttrOr("title", ""))
		if title == "" {
			title = strings.TrimSpace(a.Text())
		}
		refs = append(refs, novel.ChapterRef{
			URL:   absoluteURL(base, href),
			Title: title,
		})
	})
	work.Chapters = dedupeRefs(refs)

	if len(work.Chapters) == 0 {
		return nil, &novel.ResolutionError{Site: l.Site(), Err: fmt.Errorf("no chapters found at %s", workURL)}
	}
	return work, nil
}

// FetchChapter implements novel.Source.
func (l *LNMTL) FetchChapter(ctx context.Context, ref novel.ChapterRef, sess novel.RenderSession) (string, error) {
	if sess == nil {
		return "", novel.TerminalFetch(fmt.Errorf("render session required for %s", l.Site()))
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return "", err
	}
	html, err := sess.Render(ctx, ref.URL, ".chapter-body")
	if err != nil {
		return "", err
	}
	doc, err := newDoc([]byte(html))
	if err != nil {
		return "", novel.TerminalFetch(err)
	}
	sel := doc.Find(".chapter-body").First()
	if sel.Length() == 0 {
		return "", novel.TerminalFetch(fmt.Errorf("chapter body missing at %s", ref.URL))
	}
	// Keep the translated sentences, drop the original-language overlay.
	sel.Find("sentence.original").Remove()
	out, err := contentHTML(sel)
	if err != nil {
		return "", novel.TerminalFetch(err)
	}
	return out, nil
}
