package domain

import (
	"strings"

	"github.com/smallbiznis/htmlpdf/internal/renderer"
)

// GenerateRequest is the render body. Pointer fields distinguish "absent"
// from a zero value so defaults apply only to omitted fields.
type GenerateRequest struct {
	HTML            string         `json:"html" validate:"required"`
	Format          *string        `json:"format" validate:"omitempty,oneof=A4 Letter Legal"`
	Margin          *MarginRequest `json:"margin" validate:"omitempty"`
	PrintBackground *bool          `json:"printBackground"`
	Scale           *float64       `json:"scale" validate:"omitempty,gte=0.1,lte=2"`
	Filename        string         `json:"filename" validate:"omitempty,max=200"`
}

type MarginRequest struct {
	Top    *string `json:"top" validate:"omitempty,csslength"`
	Right  *string `json:"right" validate:"omitempty,csslength"`
	Bottom *string `json:"bottom" validate:"omitempty,csslength"`
	Left   *string `json:"left" validate:"omitempty,csslength"`
}

// Options converts a validated request into renderer options.
func (r GenerateRequest) Options() renderer.Options {
	opts := renderer.Options{PrintBackground: true}
	if r.Format != nil {
		opts.Format = renderer.Format(*r.Format)
	}
	if r.PrintBackground != nil {
		opts.PrintBackground = *r.PrintBackground
	}
	if r.Scale != nil {
		opts.Scale = *r.Scale
	}
	if r.Margin != nil {
		opts.Margin = renderer.Margin{
			Top:    deref(r.Margin.Top),
			Right:  deref(r.Margin.Right),
			Bottom: deref(r.Margin.Bottom),
			Left:   deref(r.Margin.Left),
		}
	}
	return opts.WithDefaults()
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return strings.TrimSpace(*value)
}
