// Package pricing loads per-model AI usage price tables and prices calls
// in micro-units of the table's currency.
package pricing

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/pulse/pkg/model"
)

// ModelPrice is one row of a price table. Prices are decimal strings per
// million tokens so they parse without float rounding.
type ModelPrice struct {
	Model                 string `yaml:"model"`
	InputPerMillion       string `yaml:"input_per_million"`
	OutputPerMillion      string `yaml:"output_per_million"`
	CachedInputPerMillion string `yaml:"cached_input_per_million,omitempty"`
}

// Table is a YAML price table for one provider.
type Table struct {
	Provider string       `yaml:"provider"`
	Currency string       `yaml:"currency"`
	Updated  string       `yaml:"updated"`
	Models   []ModelPrice `yaml:"models"`
}

// Usage is the token breakdown of one call.
type Usage struct {
	InputTokens       int64
	CachedInputTokens int64
	OutputTokens      int64
}

// LoadTable reads a YAML pricing file.
func LoadTable(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pricing file %s: %w", path, err)
	}
	t, err := LoadTableFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("pricing file %s: %w", path, err)
	}
	return t, nil
}

// LoadTableFromBytes parses YAML pricing data from raw bytes.
func LoadTableFromBytes(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse pricing data: %w", err)
	}
	if t.Provider == "" {
		return nil, fmt.Errorf("missing provider name")
	}
	if len(t.Models) == 0 {
		return nil, fmt.Errorf("no models defined")
	}
	return &t, nil
}

type prices struct {
	input, output, cached model.Micros
}

// Provider prices calls for the models of one table.
type Provider struct {
	name     string
	currency string
	models   map[string]prices
}

// NewProvider validates a table. The currency defaults to USD.
func NewProvider(t *Table) (*Provider, error) {
	p := &Provider{
		name:     t.Provider,
		currency: strings.ToUpper(t.Currency),
		models:   make(map[string]prices, len(t.Models)),
	}
	if p.currency == "" {
		p.currency = "USD"
	}
	for _, m := range t.Models {
		in, err := parsePrice(m.InputPerMillion)
		if err != nil {
			return nil, fmt.Errorf("%s/%s input price: %w", t.Provider, m.Model, err)
		}
		out, err := parsePrice(m.OutputPerMillion)
		if err != nil {
			return nil, fmt.Errorf("%s/%s output price: %w", t.Provider, m.Model, err)
		}
		// Providers without a cache discount bill cached input at the input rate.
		cached := in
		if m.CachedInputPerMillion != "" {
			if cached, err = parsePrice(m.CachedInputPerMillion); err != nil {
				return nil, fmt.Errorf("%s/%s cached input price: %w", t.Provider, m.Model, err)
			}
		}
		p.models[m.Model] = prices{input: in, output: out, cached: cached}
	}
	return p, nil
}

func parsePrice(s string) (model.Micros, error) {
	v, err := model.ParseMicros(s)
	if err != nil {
		return 0, err
	}
	if v < 0 {
		return 0, fmt.Errorf("negative price %s", s)
	}
	return v, nil
}

// Name returns the provider identifier, such as "openai".
func (p *Provider) Name() string { return p.name }

// Currency returns the ISO code prices are quoted in.
func (p *Provider) Currency() string { return p.currency }

// Models returns the priced model names in order.
func (p *Provider) Models() []string {
	names := make([]string, 0, len(p.models))
	for name := range p.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// SupportsModel reports whether the table has a price for model.
func (p *Provider) SupportsModel(name string) bool {
	_, ok := p.models[name]
	return ok
}

// Prices returns the per-million token prices of model.
func (p *Provider) Prices(name string) (input, output, cachedInput model.Micros, ok bool) {
	pr, ok := p.models[name]
	return pr.input, pr.output, pr.cached, ok
}

// Cost prices one call, rounding the total half up to whole micro-units.
func (p *Provider) Cost(name string, u Usage) (model.Micros, error) {
	pr, ok := p.models[name]
	if !ok {
		return 0, fmt.Errorf("%s: unknown model %q", p.name, name)
	}
	if u.InputTokens < 0 || u.CachedInputTokens < 0 || u.OutputTokens < 0 {
		return 0, fmt.Errorf("%s: negative token count", p.name)
	}
	// Prices are per million tokens, so the product is in micro-micro-units.
	total := u.InputTokens*int64(pr.input) +
		u.CachedInputTokens*int64(pr.cached) +
		u.OutputTokens*int64(pr.output)
	return model.Micros((total + 500_000) / 1_000_000), nil
}
