// Package fx converts per-currency cost subtotals into the reporting currency (EUR).
package fx

import (
	"fmt"
	"math/big"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ogulcanaydogan/pulse/pkg/model"
)

// Base is the reporting currency every threshold is expressed in.
const Base = "EUR"

// RatesFile is the on-disk layout of an exchange-rate table.
// Each rate is the amount of EUR one unit of the currency buys.
type RatesFile struct {
	Base  string            `yaml:"base"`
	Rates map[string]string `yaml:"rates"`
}

// Converter holds exact exchange rates keyed by ISO currency code.
type Converter struct {
	rates map[string]*big.Rat
}

// NewConverter returns a converter that only knows EUR.
func NewConverter() *Converter {
	return &Converter{rates: map[string]*big.Rat{Base: big.NewRat(1, 1)}}
}

// LoadRates reads a YAML rates file.
func LoadRates(path string) (*Converter, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rates file %s: %w", path, err)
	}
	c, err := LoadRatesFromBytes(data)
	if err != nil {
		return nil, fmt.Errorf("rates file %s: %w", path, err)
	}
	return c, nil
}

// LoadRatesFromBytes parses YAML rate data.
func LoadRatesFromBytes(data []byte) (*Converter, error) {
	var f RatesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse rates: %w", err)
	}
	if f.Base != "" && !strings.EqualFold(f.Base, Base) {
		return nil, fmt.Errorf("unsupported base currency %q", f.Base)
	}

	c := NewConverter()
	for code, raw := range f.Rates {
		if err := c.SetRate(code, raw); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// SetRate registers how much EUR one unit of code is worth, e.g. "0.92".
func (c *Converter) SetRate(code, rate string) error {
	r, ok := new(big.Rat).SetString(strings.TrimSpace(rate))
	if !ok {
		return fmt.Errorf("invalid rate %q for %s", rate, code)
	}
	if r.Sign() <= 0 {
		return fmt.Errorf("rate for %s must be positive", code)
	}
	c.rates[strings.ToUpper(code)] = r
	return nil
}

// Currencies returns the known currency codes, sorted.
func (c *Converter) Currencies() []string {
	out := make([]string, 0, len(c.rates))
	for code := range c.rates {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

// ToEUR converts one subtotal per currency and sums the result.
// Each subtotal is converted once and rounded half away from zero.
func (c *Converter) ToEUR(subtotals map[string]model.Micros) (model.Micros, error) {
	var total model.Micros
	for code, amount := range subtotals {
		rate, ok := c.rates[strings.ToUpper(code)]
		if !ok {
			return 0, fmt.Errorf("no exchange rate for currency %q", code)
		}
		v := new(big.Rat).Mul(new(big.Rat).SetInt64(int64(amount)), rate)
		total += model.Micros(roundHalfAway(v))
	}
	return total, nil
}

func roundHalfAway(r *big.Rat) int64 {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	neg := num.Sign() < 0
	num.Abs(num)

	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Lsh(rem, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if neg {
		q.Neg(q)
	}
	return q.Int64()
}
