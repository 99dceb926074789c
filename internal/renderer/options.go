package renderer

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

type Format string

const (
	FormatA4     Format = "A4"
	FormatLetter Format = "Letter"
	FormatLegal  Format = "Legal"
)

const (
	DefaultFormat = FormatA4
	DefaultMargin = "20mm"
	DefaultScale  = 1.0
	MinScale      = 0.1
	MaxScale      = 2.0

	mmPerInch = 25.4
	pxPerInch = 96.0
	ptPerInch = 72.0
)

// Valid reports whether f is a supported paper format.
func (f Format) Valid() bool {
	switch f {
	case FormatA4, FormatLetter, FormatLegal:
		return true
	default:
		return false
	}
}

// Dimensions returns width and height in inches.
func (f Format) Dimensions() (float64, float64) {
	switch f {
	case FormatLetter:
		return 8.5, 11
	case FormatLegal:
		return 8.5, 14
	default:
		return 210 / mmPerInch, 297 / mmPerInch
	}
}

// Margin holds CSS lengths per side. Empty sides take DefaultMargin.
type Margin struct {
	Top    string
	Right  string
	Bottom string
	Left   string
}

type Options struct {
	Format          Format
	Margin          Margin
	PrintBackground bool
	Scale           float64
}

// DefaultOptions is A4, 20mm margins, backgrounds on, scale 1.
func DefaultOptions() Options {
	return Options{
		Format:          DefaultFormat,
		Margin:          Margin{Top: DefaultMargin, Right: DefaultMargin, Bottom: DefaultMargin, Left: DefaultMargin},
		PrintBackground: true,
		Scale:           DefaultScale,
	}
}

// WithDefaults fills unset fields. PrintBackground is left as given.
func (o Options) WithDefaults() Options {
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	if o.Scale == 0 {
		o.Scale = DefaultScale
	}
	o.Margin.Top = orDefault(o.Margin.Top)
	o.Margin.Right = orDefault(o.Margin.Right)
	o.Margin.Bottom = orDefault(o.Margin.Bottom)
	o.Margin.Left = orDefault(o.Margin.Left)
	return o
}

var ErrInvalidOptions = errors.New("invalid_render_options")

func (o Options) Validate() error {
	if !o.Format.Valid() {
		return fmt.Errorf("%w: format %q", ErrInvalidOptions, o.Format)
	}
	if o.Scale < MinScale || o.Scale > MaxScale {
		return fmt.Errorf("%w: scale %v", ErrInvalidOptions, o.Scale)
	}
	for side, value := range map[string]string{
		"top":    o.Margin.Top,
		"right":  o.Margin.Right,
		"bottom": o.Margin.Bottom,
		"left":   o.Margin.Left,
	} {
		if _, err := ParseLength(value); err != nil {
			return fmt.Errorf("%w: margin %s: %v", ErrInvalidOptions, side, err)
		}
	}
	return nil
}

// ParseLength converts a CSS absolute length to inches. A bare number is
// read as pixels.
func ParseLength(value string) (float64, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return 0, errors.New("empty length")
	}

	number, divisor := value, pxPerInch
	for _, unit := range []struct {
		suffix  string
		divisor float64
	}{
		{"mm", mmPerInch},
		{"cm", mmPerInch / 10},
		{"in", 1},
		{"px", pxPerInch},
		{"pt", ptPerInch},
	} {
		if strings.HasSuffix(value, unit.suffix) {
			number, divisor = strings.TrimSpace(strings.TrimSuffix(value, unit.suffix)), unit.divisor
			break
		}
	}

	parsed, err := strconv.ParseFloat(number, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid length %q", value)
	}
	if parsed < 0 {
		return 0, fmt.Errorf("negative length %q", value)
	}
	return parsed / divisor, nil
}

func orDefault(value string) string {
	if strings.TrimSpace(value) == "" {
		return DefaultMargin
	}
	return value
}
