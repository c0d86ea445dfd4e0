package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	libinjection "github.com/corazawaf/libinjection-go"
	"go.uber.org/zap"

	"github.com/aescanero/dago-node-sqltemplate/internal/catalog"
	"github.com/aescanero/dago-node-sqltemplate/internal/eval/cel"
	"github.com/aescanero/dago-node-sqltemplate/internal/eval/template"
	"github.com/aescanero/dago-node-sqltemplate/internal/query"
	"github.com/aescanero/dago-node-sqltemplate/internal/registry"
)

// Config controls the optional render stages
type Config struct {
	DefaultDataset   string
	GuardsEnabled    bool
	CaptionsEnabled  bool
	InjectionAudit   bool
	MaxDateRangeDays int
}

// Request asks for one rendered query
type Request struct {
	Domain    string                 `json:"domain"`
	QueryType string                 `json:"query_type"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// Finding is a parameter the injection audit flagged. Findings are reported,
// they never change the rendered SQL.
type Finding struct {
	Parameter   string `json:"parameter"`
	Fingerprint string `json:"fingerprint"`
}

// Result is a rendered, normalized statement
type Result struct {
	Domain     string    `json:"domain"`
	QueryType  string    `json:"query_type"`
	SQL        string    `json:"sql"`
	Caption    string    `json:"caption,omitempty"`
	SourceHash string    `json:"source_hash"`
	Findings   []Finding `json:"findings,omitempty"`
}

// DomainInfo describes a registered domain
type DomainInfo struct {
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	QueryTypes  []string            `json:"query_types"`
	Parameters  []catalog.Parameter `json:"parameters"`
	// Undeclared lists parameters the template reads that the catalog does
	// not declare. They are passed through without coercion or defaults.
	Undeclared []string `json:"undeclared_parameters,omitempty"`
	SourceHash string   `json:"source_hash"`
}

// Service renders catalog templates
type Service struct {
	catalog  *catalog.Catalog
	registry *registry.Registry
	guards   *cel.Evaluator
	captions *template.Engine
	metrics  *Metrics
	cfg      Config
	logger   *zap.Logger

	// known holds, per domain, the declared and template-referenced
	// parameter names used as metric labels
	known map[string]map[string]bool
}

// New registers every catalog domain and checks its guards and captions
func New(cat *catalog.Catalog, cfg Config, metrics *Metrics, logger *zap.Logger) (*Service, error) {
	s := &Service{
		catalog:  cat,
		registry: registry.New(logger),
		guards:   cel.NewEvaluator(),
		captions: template.NewEngine(),
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		known:    make(map[string]map[string]bool),
	}

	for _, d := range cat.Domains() {
		if err := s.registry.Register(d.Name, d.Source(), d.Options()...); err != nil {
			return nil, fmt.Errorf("failed to register domain %s: %w", d.Name, err)
		}
		for _, g := range cat.Guards(d) {
			if err := s.guards.ValidateExpression(g.Expression); err != nil {
				return nil, fmt.Errorf("domain %s: invalid guard %s: %w", d.Name, g.Name, err)
			}
		}
		for queryType, caption := range d.Captions {
			if err := s.captions.ValidateTemplate(caption); err != nil {
				return nil, fmt.Errorf("domain %s: invalid caption for %s: %w", d.Name, queryType, err)
			}
		}
		tmpl, err := s.registry.Template(d.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to compile domain %s: %w", d.Name, err)
		}
		known := map[string]bool{query.QueryTypeParam: true}
		for _, p := range d.Parameters {
			known[p.Name] = true
		}
		for _, name := range tmpl.Parameters() {
			known[name] = true
		}
		s.known[d.Name] = known

		hash, _ := s.registry.SourceHash(d.Name)
		s.metrics.templateRegistered(d.Name, hash)
	}

	return s, nil
}

// Render resolves parameters, checks guards and renders the statement
func (s *Service) Render(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	result, err := s.render(ctx, req)

	outcome := "ok"
	if err != nil {
		outcome = ErrorKind(err)
	}
	domain, queryType := s.metricLabels(req.Domain, requestedQueryType(req))
	s.metrics.observe(domain, queryType, outcome, time.Since(start).Seconds())

	if err != nil {
		s.logger.Warn("render failed",
			zap.String("domain", req.Domain),
			zap.String("query_type", requestedQueryType(req)),
			zap.String("error_kind", outcome),
			zap.Error(err))
		return nil, err
	}

	s.logger.Debug("render completed",
		zap.String("domain", result.Domain),
		zap.String("query_type", result.QueryType),
		zap.String("sql", sqlPreview(result.SQL)),
		zap.Duration("duration", time.Since(start)))
	return result, nil
}

func (s *Service) render(ctx context.Context, req Request) (*Result, error) {
	d, ok := s.catalog.Domain(req.Domain)
	if !ok {
		return nil, fmt.Errorf("%w: %s", registry.ErrUnknownDomain, req.Domain)
	}

	params := make(map[string]interface{}, len(req.Params)+1)
	for k, v := range req.Params {
		params[k] = v
	}
	if _, ok := params["dataset"]; !ok && s.cfg.DefaultDataset != "" {
		params["dataset"] = s.cfg.DefaultDataset
	}

	rctx, err := d.Resolve(params)
	if err != nil {
		return nil, err
	}

	queryType := req.QueryType
	if queryType == "" {
		queryType = rctx.Lookup(query.QueryTypeParam).Text()
	}
	if queryType == "" {
		return nil, &query.RenderError{Kind: query.MissingParameter, Name: query.QueryTypeParam}
	}
	native := nativeParams(rctx)
	native[query.QueryTypeParam] = queryType

	if s.cfg.GuardsEnabled {
		if err := s.checkGuards(ctx, d, native); err != nil {
			return nil, err
		}
	}

	var rendered *registry.RenderedQuery
	if req.QueryType != "" {
		rendered, err = s.registry.Render(d.Name, req.QueryType, rctx)
	} else {
		rendered, err = s.registry.RenderContext(d.Name, rctx)
	}
	if err != nil {
		return nil, err
	}

	sql, err := normalizeStatement(rendered.SQL)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Domain:     d.Name,
		QueryType:  queryType,
		SQL:        sql,
		SourceHash: rendered.SourceHash,
	}

	if caption, ok := d.Captions[queryType]; ok && s.cfg.CaptionsEnabled {
		text, err := s.captions.Caption(caption, template.CaptionData{
			Domain:    d.Name,
			QueryType: queryType,
			Params:    native,
		})
		if err != nil {
			s.logger.Warn("caption failed",
				zap.String("domain", d.Name),
				zap.String("query_type", queryType),
				zap.Error(err))
		} else {
			result.Caption = text
		}
	}

	if s.cfg.InjectionAudit {
		result.Findings = s.audit(d.Name, rctx)
	}

	return result, nil
}

func (s *Service) checkGuards(ctx context.Context, d *catalog.Domain, params map[string]interface{}) error {
	vars := map[string]interface{}{
		"params": params,
		"settings": map[string]interface{}{
			"max_date_range_days": int64(s.cfg.MaxDateRangeDays),
		},
	}
	for _, g := range s.catalog.Guards(d) {
		ok, err := s.guards.Check(ctx, g.Expression, vars)
		if err != nil {
			return &query.RenderError{Kind: query.GuardViolation, Name: g.Name, Detail: err.Error()}
		}
		if !ok {
			return &query.RenderError{Kind: query.GuardViolation, Name: g.Name, Detail: g.Message}
		}
	}
	return nil
}

// audit runs libinjection over every string parameter and list element
func (s *Service) audit(domain string, ctx query.Context) []Finding {
	names := make([]string, 0, len(ctx))
	for name := range ctx {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []Finding
	for _, name := range names {
		v := ctx[name]
		var values []string
		switch v.Kind() {
		case query.KindString:
			values = []string{v.Text()}
		case query.KindStringList:
			values = v.List()
		}
		for _, value := range values {
			isSQLi, fingerprint := libinjection.IsSQLi(value)
			if !isSQLi {
				continue
			}
			findings = append(findings, Finding{Parameter: name, Fingerprint: string(fingerprint)})
			s.metrics.auditFinding(domain, s.parameterLabel(domain, name))
			s.logger.Warn("parameter looks like SQL injection",
				zap.String("domain", domain),
				zap.String("parameter", name),
				zap.String("fingerprint", string(fingerprint)))
			break
		}
	}
	return findings
}

// Validate recompiles every domain template from source
func (s *Service) Validate() error {
	s.registry.ClearCache()
	var errs []error
	for _, name := range s.registry.Domains() {
		if _, err := s.registry.Template(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Domains describes every registered domain
func (s *Service) Domains() []DomainInfo {
	var infos []DomainInfo
	for _, d := range s.catalog.Domains() {
		types, err := s.registry.QueryTypes(d.Name)
		if err != nil {
			continue
		}
		hash, _ := s.registry.SourceHash(d.Name)
		infos = append(infos, DomainInfo{
			Name:        d.Name,
			Description: d.Description,
			QueryTypes:  types,
			Parameters:  d.Parameters,
			Undeclared:  s.undeclared(d),
			SourceHash:  hash,
		})
	}
	return infos
}

// undeclared returns the template parameters the catalog does not declare
func (s *Service) undeclared(d *catalog.Domain) []string {
	tmpl, err := s.registry.Template(d.Name)
	if err != nil {
		return nil
	}
	declared := make(map[string]bool, len(d.Parameters))
	for _, p := range d.Parameters {
		declared[p.Name] = true
	}
	var names []string
	for _, name := range tmpl.Parameters() {
		if !declared[name] && name != query.QueryTypeParam {
			names = append(names, name)
		}
	}
	return names
}

// requestedQueryType is the query type a request asks for, before resolution
func requestedQueryType(req Request) string {
	if req.QueryType != "" {
		return req.QueryType
	}
	queryType, _ := req.Params[query.QueryTypeParam].(string)
	return queryType
}

// metricLabels keeps label values bounded to known domains and query types
func (s *Service) metricLabels(domain, queryType string) (string, string) {
	types, err := s.registry.QueryTypes(domain)
	if err != nil {
		return "unknown", "unknown"
	}
	for _, t := range types {
		if t == queryType {
			return domain, queryType
		}
	}
	return domain, "unknown"
}

// parameterLabel maps names a caller made up to "unknown"
func (s *Service) parameterLabel(domain, name string) string {
	if s.known[domain][name] {
		return name
	}
	return "unknown"
}

func nativeParams(ctx query.Context) map[string]interface{} {
	out := make(map[string]interface{}, len(ctx))
	for name, v := range ctx {
		if v.IsUndefined() {
			continue
		}
		out[name] = v.Native()
	}
	return out
}

func sqlPreview(sql string) string {
	const max = 120
	if len(sql) <= max {
		return sql
	}
	return sql[:max] + "..."
}
