package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// MicrosPerUnit is the number of micro-units in one currency unit.
const MicrosPerUnit = 1_000_000

// Micros is an amount in millionths of a currency unit.
// Sums of Micros are exact; rounding only happens on display.
type Micros int64

// FromUnits converts whole currency units.
func FromUnits(units int64) Micros {
	return Micros(units * MicrosPerUnit)
}

// Float64 returns the amount in currency units.
func (m Micros) Float64() float64 {
	return float64(m) / MicrosPerUnit
}

// String formats the amount with two decimals, rounding half away from zero.
func (m Micros) String() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	cents := (v + 5_000) / 10_000
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}

// Decimal formats the amount at full precision with trailing zeros trimmed.
func (m Micros) Decimal() string {
	v := int64(m)
	sign := ""
	if v < 0 {
		sign = "-"
		v = -v
	}
	units := v / MicrosPerUnit
	frac := v % MicrosPerUnit
	if frac == 0 {
		return sign + strconv.FormatInt(units, 10)
	}
	fs := strings.TrimRight(fmt.Sprintf("%06d", frac), "0")
	return fmt.Sprintf("%s%d.%s", sign, units, fs)
}

// MarshalJSON encodes the amount as a JSON number in currency units.
func (m Micros) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal()), nil
}

// UnmarshalJSON accepts a JSON number or string in currency units.
func (m *Micros) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	v, err := ParseMicros(s)
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMicros parses a decimal amount such as "120", "-3.5" or "0.000125".
func ParseMicros(s string) (Micros, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("parse amount: empty value")
	}
	neg := false
	switch s[0] {
	case '-':
		neg = true
		s = s[1:]
	case '+':
		s = s[1:]
	}
	if s == "" || s == "." {
		return 0, fmt.Errorf("parse amount: no digits")
	}

	intPart, fracPart, _ := strings.Cut(s, ".")
	if intPart == "" {
		intPart = "0"
	}
	if !digitsOnly(intPart) || (fracPart != "" && !digitsOnly(fracPart)) {
		return 0, fmt.Errorf("parse amount %q: invalid number", s)
	}
	if len(fracPart) > 6 {
		return 0, fmt.Errorf("parse amount %q: more than 6 decimal places", s)
	}
	units, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil || units > math.MaxInt64/MicrosPerUnit {
		return 0, fmt.Errorf("parse amount %q: out of range", s)
	}
	var frac int64
	if fracPart != "" {
		frac, err = strconv.ParseInt(fracPart+strings.Repeat("0", 6-len(fracPart)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse amount %q: %w", s, err)
		}
	}
	if units*MicrosPerUnit > math.MaxInt64-frac {
		return 0, fmt.Errorf("parse amount %q: out of range", s)
	}

	v := units*MicrosPerUnit + frac
	if neg {
		v = -v
	}
	return Micros(v), nil
}

func digitsOnly(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
