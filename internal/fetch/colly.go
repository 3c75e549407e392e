// Package fetch implements the direct HTTP fetcher used by adapters that
// do not need script execution.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/novel"
)

// Config captures the fetcher knobs.
type Config struct {
	UserAgent   string
	Timeout     time.Duration
	Concurrency int
	DomainQPS   float64
}

// CollyFetcher implements novel.Fetcher using the Colly collector.
type CollyFetcher struct {
	baseCollector *colly.Collector
	logger        *zap.Logger
}

// New constructs a configured Colly-based fetcher.
func New(cfg Config, logger *zap.Logger) (*CollyFetcher, error) {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	base := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(cfg.UserAgent),
		colly.IgnoreRobotsTxt(),
	)
	base.AllowURLRevisit = true
	base.WithTransport(&http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          128,
		MaxIdleConnsPerHost:   32,
		MaxConnsPerHost:       cfg.Concurrency * 2,
		IdleConnTimeout:       30 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: cfg.Timeout,
		ForceAttemptHTTP2:     true,
	})
	base.SetRequestTimeout(cfg.Timeout)

	var delay time.Duration
	if cfg.DomainQPS > 0 {
		delay = time.Duration(float64(time.Second) / cfg.DomainQPS)
	}
	if err := base.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: cfg.Concurrency,
		Delay:       delay,
	}); err != nil {
		return nil, fmt.Errorf("set limit rule: %w", err)
	}

	return &CollyFetcher{
		baseCollector: base,
		logger:        logger,
	}, nil
}

// Fetch retrieves the URL body. Failures come back as FetchErrors so the
// retry controller can classify them without inspecting transport details.
func (f *CollyFetcher) Fetch(ctx context.Context, rawURL string, header http.Header) ([]byte, error) {
	collector := f.baseCollector.Clone()
	resultCh := make(chan fetchResult, 1)
	var once sync.Once
	send := func(res fetchResult) {
		once.Do(func() {
			resultCh <- res
		})
	}

	collector.OnResponse(func(r *colly.Response) {
		send(fetchResult{body: append([]byte{}, r.Body...)})
	})

	collector.OnError(func(r *colly.Response, err error) {
		if err == nil {
			err = errors.New("unknown colly error")
		}
		status := 0
		if r != nil {
			status = r.StatusCode
		}
		send(fetchResult{err: classifyHTTP(status, err)})
	})

	if err := collector.Request(http.MethodGet, rawURL, nil, nil, header); err != nil {
		return nil, novel.TransientFetch(fmt.Errorf("request %s: %w", rawURL, err))
	}
	collector.Wait()

	select {
	case res := <-resultCh:
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return res.body, res.err
	default:
		return nil, novel.TransientFetch(errors.New("fetch produced no result"))
	}
}

type fetchResult struct {
	body []byte
	err  error
}

// classifyHTTP maps an HTTP status to the fetch error taxonomy. Gone and
// not-found pages never come back; rate limits, challenges, and server
// errors usually do.
func classifyHTTP(status int, err error) error {
	wrapped := fmt.Errorf("http %d: %w", status, err)
	switch {
	case status == http.StatusNotFound, status == http.StatusGone, status == http.StatusUnauthorized:
		return novel.TerminalFetch(wrapped)
	case status == 0:
		return novel.TransientFetch(err)
	default:
		return novel.TransientFetch(wrapped)
	}
}
