// Package statement renders a usage report as a downloadable PDF.
package statement

import (
	"context"
	"fmt"
	"sort"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
	"github.com/shopspring/decimal"
	analyticsdomain "github.com/smallbiznis/htmlpdf/internal/analytics/domain"
)

const (
	dateLayout = "2006-01-02"
	currency   = "USD"
)

type Generator interface {
	Generate(ctx context.Context, data Data) ([]byte, error)
}

// Data is everything printed on a statement.
type Data struct {
	AccountID   string
	GeneratedAt string
	Report      *analyticsdomain.UsageReport
}

type MarotoGenerator struct{}

func New() Generator {
	return &MarotoGenerator{}
}

// FormatCents renders an amount in cents as a currency string.
func FormatCents(cents int) string {
	return decimal.New(int64(cents), -2).StringFixed(2) + " " + currency
}

func (g *MarotoGenerator) Generate(ctx context.Context, data Data) ([]byte, error) {
	if data.Report == nil {
		return nil, fmt.Errorf("statement: report is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	report := data.Report

	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Usage statement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(20,
		col.New(8).Add(
			text.New("Account: "+data.AccountID, props.Text{Top: 0}),
			text.New(fmt.Sprintf("Period: last %d days from %s", report.Period.Days, report.Period.StartDate.UTC().Format(dateLayout)), props.Text{Top: 4}),
			text.New("Generated: "+data.GeneratedAt, props.Text{Top: 8}),
		),
		col.New(4),
	)

	m.AddRow(10,
		text.NewCol(6, "Date", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, "Renders", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(3, "Amount", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	days := make([]string, 0, len(report.Daily))
	for day := range report.Daily {
		days = append(days, day)
	}
	sort.Strings(days)

	if len(days) == 0 {
		m.AddRow(8, text.NewCol(12, "No renders in this period.", props.Text{Size: 9}))
	}
	for _, day := range days {
		usage := report.Daily[day]
		m.AddRow(7,
			text.NewCol(6, day, props.Text{Size: 9}),
			text.NewCol(3, fmt.Sprintf("%d", usage.Count), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(3, FormatCents(usage.Cost), props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Total renders", props.Text{Size: 9, Top: 3}),
		text.NewCol(3, fmt.Sprintf("%d", report.Total), props.Text{Size: 9, Top: 3, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(6),
		text.NewCol(3, "Amount due", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(3, FormatCents(report.TotalCost), props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}
	return doc.GetBytes(), nil
}
