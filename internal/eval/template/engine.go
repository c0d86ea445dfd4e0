package template

import (
	"fmt"
	"strings"
	"sync"

	"github.com/aymerick/raymond"
)

// Engine renders Handlebars captions for rendered queries
type Engine struct {
	cache map[string]*raymond.Template
	mu    sync.RWMutex
}

// raymond keeps helpers in a process-wide table and panics on duplicates
var registerOnce sync.Once

// NewEngine creates a new caption engine
func NewEngine() *Engine {
	registerOnce.Do(registerHelpers)
	return &Engine{
		cache: make(map[string]*raymond.Template),
	}
}

// CaptionData is the context a caption template sees
type CaptionData struct {
	Domain    string                 `json:"domain"`
	QueryType string                 `json:"query_type"`
	Params    map[string]interface{} `json:"params"`
}

// Caption renders a caption template. Captions are plain text, so catalog
// captions print values with {{{ }}}; {{ }} output is HTML-escaped.
func (e *Engine) Caption(templateStr string, data CaptionData) (string, error) {
	return e.Render(templateStr, map[string]interface{}{
		"domain":     data.Domain,
		"query_type": data.QueryType,
		"params":     data.Params,
	})
}

// Render renders a template with the given data
func (e *Engine) Render(templateStr string, data interface{}) (string, error) {
	// Get or compile template
	tmpl, err := e.getTemplate(templateStr)
	if err != nil {
		return "", fmt.Errorf("failed to compile template: %w", err)
	}

	// Execute the template
	result, err := tmpl.Exec(data)
	if err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return result, nil
}

// getTemplate gets a compiled template from cache or compiles it
func (e *Engine) getTemplate(templateStr string) (*raymond.Template, error) {
	// Check cache first (read lock)
	e.mu.RLock()
	if tmpl, ok := e.cache[templateStr]; ok {
		e.mu.RUnlock()
		return tmpl, nil
	}
	e.mu.RUnlock()

	// Compile the caption (write lock)
	e.mu.Lock()
	defer e.mu.Unlock()

	// Check again in case another goroutine compiled it
	if tmpl, ok := e.cache[templateStr]; ok {
		return tmpl, nil
	}

	tmpl, err := raymond.Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}

	// Cache the compiled caption
	e.cache[templateStr] = tmpl

	return tmpl, nil
}

// ValidateTemplate validates a template without rendering it
func (e *Engine) ValidateTemplate(templateStr string) error {
	_, err := raymond.Parse(templateStr)
	return err
}

// ClearCache clears the compiled template cache
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cache = make(map[string]*raymond.Template)
}

// registerHelpers registers the caption helpers
func registerHelpers() {
	// uppercase helper
	raymond.RegisterHelper("uppercase", func(str string) string {
		return strings.ToUpper(str)
	})

	// lowercase helper
	raymond.RegisterHelper("lowercase", func(str string) string {
		return strings.ToLower(str)
	})

	// default helper - return default value if first arg is empty
	raymond.RegisterHelper("default", func(value interface{}, defaultValue interface{}) interface{} {
		if value == nil || value == "" {
			return defaultValue
		}
		return value
	})

	// eq helper - equality comparison
	raymond.RegisterHelper("eq", func(a, b interface{}) bool {
		return fmt.Sprint(a) == fmt.Sprint(b)
	})

	// join accepts the []string lists produced by parameter resolution
	raymond.RegisterHelper("join", func(list interface{}, sep string) string {
		switch v := list.(type) {
		case []string:
			return strings.Join(v, sep)
		case []interface{}:
			strs := make([]string, len(v))
			for i, item := range v {
				strs[i] = fmt.Sprint(item)
			}
			return strings.Join(strs, sep)
		case nil:
			return ""
		default:
			return fmt.Sprint(v)
		}
	})

	// len helper - length of a list or string
	raymond.RegisterHelper("len", func(value interface{}) int {
		switch v := value.(type) {
		case string:
			return len(v)
		case []string:
			return len(v)
		case []interface{}:
			return len(v)
		default:
			return 0
		}
	})
}
