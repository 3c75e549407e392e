package source

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"testing"

	"github.com/bindery/novelbind/internal/novel"
)

// fakeFetcher serves canned bodies keyed by exact URL and records the
// headers each request carried.
type fakeFetcher struct {
	mu      sync.Mutex
	pages   map[string]string
	headers map[string]http.Header
}

func newFakeFetcher(pages map[string]string) *fakeFetcher {
	return &fakeFetcher{pages: pages, headers: make(map[string]http.Header)}
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, header http.Header) ([]byte, error) {
	f.mu.Lock()
	f.headers[rawURL] = header
	body, ok := f.pages[rawURL]
	f.mu.Unlock()
	if !ok {
		return nil, novel.TerminalFetch(fmt.Errorf("unexpected fetch of %s", rawURL))
	}
	return []byte(body), nil
}

func (f *fakeFetcher) header(rawURL string) http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.headers[rawURL]
}

func TestAbsoluteURL(t *testing.T) {
	t.Parallel()

	base, _ := url.Parse("https://www.fanmtl.com/novel/some-book.html")
	cases := []struct {
		href string
		want string
	}{
		{"/novel/some-book_1.html", "https://www.fanmtl.com/novel/some-book_1.html"},
		{"chapter-2.html", "https://www.fanmtl.com/novel/chapter-2.html"},
		{"https://cdn.example.com/cover.jpg", "https://cdn.example.com/cover.jpg"},
		{"//cdn.example.com/cover.jpg", "https://cdn.example.com/cover.jpg"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := absoluteURL(base, tc.href); got != tc.want {
			t.Errorf("absoluteURL(%q) = %q, want %q", tc.href, got, tc.want)
		}
	}
}

func TestDedupeRefsRenumbers(t *testing.T) {
	t.Parallel()

	refs := []novel.ChapterRef{
		{URL: "https://x/1", Title: "One"},
		{URL: "https://x/2", Title: "Two"},
		{URL: "https://x/1", Title: "One again"},
		{URL: "https://x/3", Title: "Three"},
	}
	out := dedupeRefs(refs)
	if len(out) != 3 {
		t.Fatalf("expected 3 refs, got %d", len(out))
	}
	for i, ref := range out {
		if ref.Index != i+1 {
			t.Errorf("ref %d: index = %d, want %d", i, ref.Index, i+1)
		}
	}
	if out[2].URL != "https://x/3" {
		t.Errorf("expected first-seen order preserved, got %v", out)
	}
}
