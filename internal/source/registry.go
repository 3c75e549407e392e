package source

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/bindery/novelbind/internal/novel"
)

// Registry maps work-reference hosts onto registered adapters. It is
// populated at startup and read-mostly afterwards.
type Registry struct {
	mu      sync.RWMutex
	sources []novel.Source
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register adds an adapter. Later registrations with the same site pattern
// shadow earlier ones.
func (r *Registry) Register(s novel.Source) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = append([]novel.Source{s}, r.sources...)
}

// Resolve selects the adapter for a work reference by domain pattern.
// Absence of a match fails with novel.ErrAdapterNotFound.
func (r *Registry) Resolve(rawURL string) (novel.Source, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return nil, fmt.Errorf("parse work reference %q: %w", rawURL, novel.ErrAdapterNotFound)
	}
	host := strings.ToLower(parsed.Hostname())
	host = strings.TrimPrefix(host, "www.")

	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, s := range r.sources {
		site := strings.ToLower(s.Site())
		if host == site || strings.HasSuffix(host, "."+site) {
			return s, nil
		}
	}
	return nil, fmt.Errorf("host %q: %w", host, novel.ErrAdapterNotFound)
}

// Sites lists the registered site patterns.
func (r *Registry) Sites() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.sources))
	for _, s := range r.sources {
		out = append(out, s.Site())
	}
	return out
}

// Default builds the registry of every shipped adapter. The render pool is
// only consulted by adapters whose site requires script execution.
func Default(fetcher novel.Fetcher, renderPool novel.RenderPool, logger *zap.Logger) *Registry {
	r := NewRegistry()
	r.Register(NewFanMTL(fetcher, logger))
	r.Register(NewRoyalRoad(fetcher, logger))
	if renderPool != nil {
		r.Register(NewLNMTL(renderPool, logger))
	}
	return r
}
