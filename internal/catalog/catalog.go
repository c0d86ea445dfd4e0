package catalog

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/aescanero/dago-node-sqltemplate/internal/query"
)

//go:embed default/*.yaml default/*.sql
var defaultFiles embed.FS

// ManifestName is the manifest file looked up in a catalog directory
const ManifestName = "catalog.yaml"

// Parameter declares one template parameter
type Parameter struct {
	Name        string `yaml:"name" json:"name"`
	Kind        string `yaml:"kind" json:"kind"`
	Default     any    `yaml:"default,omitempty" json:"default,omitempty"`
	Required    bool   `yaml:"required,omitempty" json:"required,omitempty"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`

	kind         query.Kind
	defaultValue query.Value
}

// Guard is a CEL expression over the render parameters that must hold
type Guard struct {
	Name       string `yaml:"name"`
	Expression string `yaml:"expr"`
	Message    string `yaml:"message"`
}

// Domain is one template with its declared parameters
type Domain struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description,omitempty"`
	Template    string            `yaml:"template"`
	Parameters  []Parameter       `yaml:"parameters"`
	Guards      []Guard           `yaml:"guards,omitempty"`
	Captions    map[string]string `yaml:"captions,omitempty"`

	source string
}

// Manifest is the structure of catalog.yaml
type Manifest struct {
	Version int       `yaml:"version"`
	Guards  []Guard   `yaml:"guards,omitempty"`
	Domains []*Domain `yaml:"domains"`
}

// Catalog is a loaded, validated manifest with template sources
type Catalog struct {
	guards  []Guard
	domains map[string]*Domain
}

// LoadDefault loads the catalog compiled into the binary
func LoadDefault() (*Catalog, error) {
	sub, err := fs.Sub(defaultFiles, "default")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded catalog: %w", err)
	}
	return Load(sub)
}

// LoadDir loads a catalog from a directory containing catalog.yaml
func LoadDir(dir string) (*Catalog, error) {
	return Load(os.DirFS(dir))
}

// Load reads catalog.yaml from fsys and the templates it references
func Load(fsys fs.FS) (*Catalog, error) {
	data, err := fs.ReadFile(fsys, ManifestName)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", ManifestName, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", ManifestName, err)
	}

	c := &Catalog{guards: m.Guards, domains: make(map[string]*Domain, len(m.Domains))}
	for _, g := range m.Guards {
		if err := g.validate(); err != nil {
			return nil, err
		}
	}
	for _, d := range m.Domains {
		if d == nil || d.Name == "" {
			return nil, fmt.Errorf("domain without name in %s", ManifestName)
		}
		if _, dup := c.domains[d.Name]; dup {
			return nil, fmt.Errorf("duplicate domain %q", d.Name)
		}
		if err := d.load(fsys); err != nil {
			return nil, fmt.Errorf("domain %q: %w", d.Name, err)
		}
		c.domains[d.Name] = d
	}
	return c, nil
}

func (g Guard) validate() error {
	if g.Name == "" || g.Expression == "" {
		return fmt.Errorf("guard needs a name and an expr")
	}
	return nil
}

func (d *Domain) load(fsys fs.FS) error {
	if d.Template == "" {
		return fmt.Errorf("no template file")
	}
	src, err := fs.ReadFile(fsys, path.Clean(d.Template))
	if err != nil {
		return fmt.Errorf("failed to read template: %w", err)
	}
	d.source = string(src)

	seen := make(map[string]bool, len(d.Parameters))
	for i := range d.Parameters {
		p := &d.Parameters[i]
		if p.Name == "" {
			return fmt.Errorf("parameter %d has no name", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("duplicate parameter %q", p.Name)
		}
		seen[p.Name] = true

		kind, err := query.ParseKind(p.Kind)
		if err != nil {
			return fmt.Errorf("parameter %q: %w", p.Name, err)
		}
		p.kind = kind
		if p.Default != nil {
			v, err := query.Coerce(p.Default, kind)
			if err != nil {
				return fmt.Errorf("parameter %q default: %w", p.Name, err)
			}
			p.defaultValue = v
		}
	}
	for _, g := range d.Guards {
		if err := g.validate(); err != nil {
			return err
		}
	}
	return nil
}

// Domain returns the named domain
func (c *Catalog) Domain(name string) (*Domain, bool) {
	d, ok := c.domains[name]
	return d, ok
}

// Domains returns all domains sorted by name
func (c *Catalog) Domains() []*Domain {
	out := make([]*Domain, 0, len(c.domains))
	for _, d := range c.domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Guards returns the catalog-wide guards followed by the domain's own
func (c *Catalog) Guards(d *Domain) []Guard {
	out := make([]Guard, 0, len(c.guards)+len(d.Guards))
	out = append(out, c.guards...)
	return append(out, d.Guards...)
}

// Source returns the raw template text
func (d *Domain) Source() string { return d.source }

// Kinds returns the declared kind per parameter
func (d *Domain) Kinds() map[string]query.Kind {
	kinds := make(map[string]query.Kind, len(d.Parameters))
	for _, p := range d.Parameters {
		kinds[p.Name] = p.kind
	}
	return kinds
}

// Defaults returns the declared default per parameter
func (d *Domain) Defaults() map[string]query.Value {
	defaults := make(map[string]query.Value)
	for _, p := range d.Parameters {
		if !p.defaultValue.IsUndefined() {
			defaults[p.Name] = p.defaultValue
		}
	}
	return defaults
}

// Options returns the parse options for the domain's template
func (d *Domain) Options() []query.Option {
	return []query.Option{query.WithDefaults(d.Defaults()), query.WithKinds(d.Kinds())}
}

// Resolve builds a render context from loosely typed parameters. Declared
// parameters are coerced to their kind and filled from their default;
// undeclared ones keep their inferred kind.
func (d *Domain) Resolve(params map[string]any) (query.Context, error) {
	ctx := make(query.Context, len(params)+len(d.Parameters))
	declared := make(map[string]*Parameter, len(d.Parameters))
	for i := range d.Parameters {
		declared[d.Parameters[i].Name] = &d.Parameters[i]
	}

	for name, raw := range params {
		p, ok := declared[name]
		if !ok {
			v, err := query.FromAny(raw)
			if err != nil {
				return nil, &query.RenderError{Kind: query.TypeMismatch, Name: name, Detail: err.Error()}
			}
			ctx[name] = v
			continue
		}
		v, err := query.Coerce(raw, p.kind)
		if err != nil {
			kind := query.TypeMismatch
			if p.kind == query.KindInteger || p.kind == query.KindFloat {
				kind = query.InvalidNumeric
			}
			return nil, &query.RenderError{Kind: kind, Name: name, Value: fmt.Sprint(raw), Detail: err.Error()}
		}
		ctx[name] = v
	}

	for _, p := range d.Parameters {
		if !ctx.Lookup(p.Name).IsUndefined() {
			continue
		}
		if !p.defaultValue.IsUndefined() {
			ctx[p.Name] = p.defaultValue
			continue
		}
		if p.Required {
			return nil, &query.RenderError{Kind: query.MissingParameter, Name: p.Name}
		}
	}
	return ctx, nil
}
