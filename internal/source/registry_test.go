package source

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/novel"
)

type stubSource struct {
	site string
}

func (s stubSource) Site() string { return s.site }
func (s stubSource) ListChapters(context.Context, string) (*novel.Work, error) {
	return nil, nil
}
func (s stubSource) FetchChapter(context.Context, novel.ChapterRef, novel.RenderSession) (string, error) {
	return "", nil
}
func (s stubSource) NeedsRendering() bool { return false }

func TestRegistryResolve(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(stubSource{site: "fanmtl.com"})
	r.Register(stubSource{site: "royalroad.com"})

	cases := []struct {
		url  string
		site string
	}{
		{"https://www.fanmtl.com/novel/book.html", "fanmtl.com"},
		{"https://fanmtl.com/novel/book.html", "fanmtl.com"},
		{"https://m.fanmtl.com/novel/book.html", "fanmtl.com"},
		{"https://www.royalroad.com/fiction/12345", "royalroad.com"},
	}
	for _, tc := range cases {
		src, err := r.Resolve(tc.url)
		if err != nil {
			t.Fatalf("Resolve(%q) error = %v", tc.url, err)
		}
		if src.Site() != tc.site {
			t.Errorf("Resolve(%q) = %s, want %s", tc.url, src.Site(), tc.site)
		}
	}
}

func TestRegistryResolveUnknownHost(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	r.Register(stubSource{site: "fanmtl.com"})

	for _, u := range []string{
		"https://unknownsite.com/novel/1",
		"https://notfanmtl.com/novel/1",
		"not a url",
	} {
		_, err := r.Resolve(u)
		if !errors.Is(err, novel.ErrAdapterNotFound) {
			t.Errorf("Resolve(%q): expected ErrAdapterNotFound, got %v", u, err)
		}
	}
}

func TestRegistryLaterRegistrationShadows(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	first := stubSource{site: "fanmtl.com"}
	r.Register(first)
	second := &FanMTL{}
	r.Register(second)

	src, err := r.Resolve("https://fanmtl.com/novel/book.html")
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if src != novel.Source(second) {
		t.Fatal("expected the later registration to win")
	}
}

func TestDefaultRegistrySkipsRenderingSitesWithoutPool(t *testing.T) {
	t.Parallel()

	r := Default(newFakeFetcher(nil), nil, zap.NewNop())
	if _, err := r.Resolve("https://www.fanmtl.com/novel/x.html"); err != nil {
		t.Fatalf("fanmtl should resolve: %v", err)
	}
	if _, err := r.Resolve("https://lnmtl.com/novel/x"); !errors.Is(err, novel.ErrAdapterNotFound) {
		t.Fatalf("lnmtl should not register without a render pool, got %v", err)
	}
}
