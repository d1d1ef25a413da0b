package consumers

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ai_config/internal/providers"
)

// ReportEntry is one line of data a report is written about.
type ReportEntry struct {
	Label  string
	Amount decimal.Decimal
	Note   string
}

// ReportRequest describes the report to write.
type ReportRequest struct {
	Title    string
	Period   string
	Currency string
	Entries  []ReportEntry
	// Instructions are appended to the prompt verbatim.
	Instructions string
}

// Report is a generated report.
type Report struct {
	Title    string
	Body     string
	Model    string
	Provider string
	Usage    providers.Usage
}

// ReportGenerator writes narrative reports with the configured provider.
type ReportGenerator struct {
	src ServiceSource
}

func NewReportGenerator(src ServiceSource) *ReportGenerator {
	return &ReportGenerator{src: src}
}

// Generate writes the report. It returns providers.ErrUnconfigured without
// contacting any provider when no credential is configured; provider
// failures come back as *providers.CapabilityError.
func (g *ReportGenerator) Generate(ctx context.Context, req ReportRequest) (*Report, error) {
	svc, err := current(g.src)
	if err != nil {
		return nil, err
	}

	res, err := svc.Generate(ctx, buildReportPrompt(req))
	if err != nil {
		logger.Warn("report generation failed", "provider", svc.Provider(), "error", err)
		return nil, err
	}

	return &Report{
		Title:    req.Title,
		Body:     res.Text,
		Model:    res.Model,
		Provider: svc.Provider().String(),
		Usage:    res.Usage,
	}, nil
}

func buildReportPrompt(req ReportRequest) string {
	var b strings.Builder
	b.WriteString("Write a concise report")
	if req.Title != "" {
		fmt.Fprintf(&b, " titled %q", req.Title)
	}
	if req.Period != "" {
		fmt.Fprintf(&b, " covering %s", req.Period)
	}
	b.WriteString(".\n")

	if len(req.Entries) > 0 {
		total := decimal.Zero
		b.WriteString("Data:\n")
		for _, e := range req.Entries {
			fmt.Fprintf(&b, "- %s: %s %s", e.Label, e.Amount.StringFixed(2), req.Currency)
			if e.Note != "" {
				fmt.Fprintf(&b, " (%s)", e.Note)
			}
			b.WriteString("\n")
			total = total.Add(e.Amount)
		}
		fmt.Fprintf(&b, "Total: %s %s\n", total.StringFixed(2), req.Currency)
	}

	b.WriteString("Summarise the main figures and notable changes in plain prose.")
	if req.Instructions != "" {
		b.WriteString("\n")
		b.WriteString(req.Instructions)
	}
	return b.String()
}
