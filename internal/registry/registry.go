package registry

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/zeebo/blake3"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-sqltemplate/internal/query"
)

// ErrUnknownDomain is returned for domains that were never registered
var ErrUnknownDomain = errors.New("unknown domain")

// RenderedQuery is the result of a successful render
type RenderedQuery struct {
	SQL        string
	Domain     string
	QueryType  string
	SourceHash string
}

type registration struct {
	source string
	hash   string
	opts   []query.Option
}

type cacheKey struct {
	domain string
	hash   string
}

// Registry holds template sources per domain and caches their compiled trees
type Registry struct {
	sources map[string]registration
	cache   map[cacheKey]*query.Template
	mu      sync.RWMutex
	logger  *zap.Logger
}

// New creates an empty registry
func New(logger *zap.Logger) *Registry {
	return &Registry{
		sources: make(map[string]registration),
		cache:   make(map[cacheKey]*query.Template),
		logger:  logger,
	}
}

// HashSource returns the hex BLAKE3 digest identifying a domain's source
func HashSource(domain, source string) string {
	h := blake3.New()
	h.Write([]byte(domain))
	h.Write([]byte{0})
	h.Write([]byte(source))
	return hex.EncodeToString(h.Sum(nil))
}

// Register stores the source for a domain and compiles it. A domain can be
// registered again with new source; the stale compiled tree is dropped.
func (r *Registry) Register(domain, source string, opts ...query.Option) error {
	reg := registration{source: source, hash: HashSource(domain, source), opts: opts}

	tmpl, err := r.compile(domain, reg)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.sources[domain]; ok && prev.hash != reg.hash {
		delete(r.cache, cacheKey{domain: domain, hash: prev.hash})
	}
	r.sources[domain] = reg
	r.cache[cacheKey{domain: domain, hash: reg.hash}] = tmpl

	r.logger.Info("template registered",
		zap.String("domain", domain),
		zap.String("source_hash", reg.hash[:12]),
		zap.Strings("query_types", tmpl.QueryTypes()))
	return nil
}

// Render selects the branch for queryType and renders it. queryType is
// passed to the template as the query_type parameter and overrides any value
// already in ctx.
func (r *Registry) Render(domain, queryType string, ctx query.Context) (*RenderedQuery, error) {
	return r.render(domain, ctx.With(map[string]query.Value{
		query.QueryTypeParam: query.String(queryType),
	}))
}

// RenderContext renders using the query_type already present in ctx
func (r *Registry) RenderContext(domain string, ctx query.Context) (*RenderedQuery, error) {
	return r.render(domain, ctx)
}

func (r *Registry) render(domain string, ctx query.Context) (*RenderedQuery, error) {
	tmpl, hash, err := r.template(domain)
	if err != nil {
		return nil, err
	}

	selector := ctx.Lookup(query.QueryTypeParam)
	if selector.IsUndefined() && len(tmpl.QueryTypes()) > 0 {
		return nil, &query.RenderError{Kind: query.MissingParameter, Name: query.QueryTypeParam}
	}

	out, err := tmpl.Execute(ctx)
	if err != nil {
		return nil, err
	}
	if !out.Selected {
		return nil, &query.RenderError{Kind: query.UnknownQueryType, Name: query.QueryTypeParam, Value: selector.Text()}
	}

	return &RenderedQuery{
		SQL:        out.Text,
		Domain:     domain,
		QueryType:  selector.Text(),
		SourceHash: hash,
	}, nil
}

// Template returns the compiled tree for a domain
func (r *Registry) Template(domain string) (*query.Template, error) {
	tmpl, _, err := r.template(domain)
	return tmpl, err
}

// template gets the compiled tree from cache or compiles it
func (r *Registry) template(domain string) (*query.Template, string, error) {
	r.mu.RLock()
	reg, ok := r.sources[domain]
	if !ok {
		r.mu.RUnlock()
		return nil, "", fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	key := cacheKey{domain: domain, hash: reg.hash}
	if tmpl, ok := r.cache[key]; ok {
		r.mu.RUnlock()
		return tmpl, reg.hash, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Another goroutine may have compiled it meanwhile
	if tmpl, ok := r.cache[key]; ok {
		return tmpl, reg.hash, nil
	}

	tmpl, err := r.compile(domain, reg)
	if err != nil {
		return nil, "", err
	}
	r.cache[key] = tmpl
	return tmpl, reg.hash, nil
}

func (r *Registry) compile(domain string, reg registration) (*query.Template, error) {
	start := time.Now()
	tmpl, err := query.Parse(domain, reg.source, reg.opts...)
	if err != nil {
		r.logger.Error("template compilation failed",
			zap.String("domain", domain),
			zap.Error(err))
		return nil, err
	}
	r.logger.Debug("template compiled",
		zap.String("domain", domain),
		zap.String("source_hash", reg.hash[:12]),
		zap.Duration("duration", time.Since(start)))
	return tmpl, nil
}

// QueryTypes lists the query types a domain's template selects on
func (r *Registry) QueryTypes(domain string) ([]string, error) {
	tmpl, err := r.Template(domain)
	if err != nil {
		return nil, err
	}
	return tmpl.QueryTypes(), nil
}

// SourceHash returns the digest of the registered source for a domain
func (r *Registry) SourceHash(domain string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.sources[domain]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownDomain, domain)
	}
	return reg.hash, nil
}

// Domains returns the registered domain names in sorted order
func (r *Registry) Domains() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.sources))
	for name := range r.sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClearCache drops every compiled tree. Sources stay registered and are
// compiled again on next use.
func (r *Registry) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]*query.Template)
}

// cached reports whether a compiled tree is present for the domain
func (r *Registry) cached(domain string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.sources[domain]
	if !ok {
		return false
	}
	_, ok = r.cache[cacheKey{domain: domain, hash: reg.hash}]
	return ok
}
