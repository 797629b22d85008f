package fx_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ogulcanaydogan/pulse/pkg/fx"
	"github.com/ogulcanaydogan/pulse/pkg/model"
)

const sampleRates = `
base: EUR
rates:
  USD: "0.92"
  GBP: "1.17"
`

func TestToEUR_OnlyEUR(t *testing.T) {
	c := fx.NewConverter()
	total, err := c.ToEUR(map[string]model.Micros{"EUR": model.FromUnits(120)})
	require.NoError(t, err)
	assert.Equal(t, model.FromUnits(120), total)
}

func TestToEUR_MixedCurrencies(t *testing.T) {
	c, err := fx.LoadRatesFromBytes([]byte(sampleRates))
	require.NoError(t, err)

	total, err := c.ToEUR(map[string]model.Micros{
		"EUR": model.FromUnits(10),
		"USD": model.FromUnits(100),
		"gbp": model.FromUnits(1),
	})
	require.NoError(t, err)
	// 10 + 92 + 1.17
	assert.Equal(t, model.Micros(103_170_000), total)
}

func TestToEUR_RoundsHalfAwayFromZero(t *testing.T) {
	c := fx.NewConverter()
	require.NoError(t, c.SetRate("USD", "0.5"))

	total, err := c.ToEUR(map[string]model.Micros{"USD": 3})
	require.NoError(t, err)
	assert.Equal(t, model.Micros(2), total)

	total, err = c.ToEUR(map[string]model.Micros{"USD": -3})
	require.NoError(t, err)
	assert.Equal(t, model.Micros(-2), total)
}

func TestToEUR_UnknownCurrency(t *testing.T) {
	c := fx.NewConverter()
	_, err := c.ToEUR(map[string]model.Micros{"JPY": 100})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JPY")
}

func TestSetRate_Invalid(t *testing.T) {
	c := fx.NewConverter()
	assert.Error(t, c.SetRate("USD", "abc"))
	assert.Error(t, c.SetRate("USD", "-1"))
	assert.Error(t, c.SetRate("USD", "0"))
}

func TestLoadRates_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fx.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleRates), 0o644))

	c, err := fx.LoadRates(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"EUR", "GBP", "USD"}, c.Currencies())
}

func TestLoadRates_WrongBase(t *testing.T) {
	_, err := fx.LoadRatesFromBytes([]byte("base: USD\nrates: {}\n"))
	assert.Error(t, err)
}

func TestLoadRates_Missing(t *testing.T) {
	_, err := fx.LoadRates(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
