package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/shopspring/decimal"

	"ai_config/internal/app"
	"ai_config/internal/consumers"
	"ai_config/internal/models"
	"ai_config/internal/providers"
	"ai_config/internal/utils"
)

func dispatch(ctx context.Context, deps *app.Dependencies, args []string) error {
	c := deps.Coordinator
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "show":
		return show(deps)

	case "providers":
		current := c.Snapshot().Provider
		for _, p := range providers.AvailableProviders() {
			marker := " "
			if p == current {
				marker = "*"
			}
			fmt.Printf("%s %-10s %s\n", marker, p, providers.DisplayName(p))
		}
		return nil

	case "models":
		p := c.Snapshot().Provider
		if len(rest) > 0 {
			parsed, err := models.ParseProviderID(rest[0])
			if err != nil {
				return err
			}
			p = parsed
		}
		for _, m := range providers.AvailableModels(p) {
			fmt.Println(m)
		}
		return nil

	case "set-provider":
		if len(rest) != 1 {
			return errors.New("usage: set-provider <id>")
		}
		p, err := models.ParseProviderID(rest[0])
		if err != nil {
			return err
		}
		if err := c.SetProvider(p); err != nil {
			return err
		}
		return show(deps)

	case "set-key":
		if len(rest) != 1 {
			return errors.New("usage: set-key <key|->")
		}
		key := rest[0]
		if key == "-" {
			line, err := bufio.NewReader(os.Stdin).ReadString('\n')
			if err != nil && line == "" {
				return fmt.Errorf("failed to read key from stdin: %w", err)
			}
			key = line
		}
		if err := c.SetAPIKey(key); err != nil {
			return err
		}
		return show(deps)

	case "set-model":
		if len(rest) != 1 {
			return errors.New("usage: set-model <name>")
		}
		if err := c.SetModelName(rest[0]); err != nil {
			return err
		}
		return show(deps)

	case "reset":
		if err := c.ResetConfig(); err != nil {
			return err
		}
		return show(deps)

	case "validate":
		svc, ok := c.Service()
		if !ok {
			return providers.ErrUnconfigured
		}
		v, ok := svc.(providers.Validator)
		if !ok {
			return fmt.Errorf("%s does not support credential validation", svc.Provider())
		}
		if err := v.ValidateCredentials(ctx); err != nil {
			return err
		}
		fmt.Println("credentials OK")
		return nil

	case "report":
		if len(rest) == 0 {
			return errors.New("usage: report <title> [label=amount ...]")
		}
		req, err := parseReportArgs(rest)
		if err != nil {
			return err
		}
		report, err := deps.Reports.Generate(ctx, req)
		if err != nil {
			return err
		}
		fmt.Printf("# %s\n\n%s\n", report.Title, report.Body)
		return nil

	case "extract":
		if len(rest) != 1 {
			return errors.New("usage: extract <image>")
		}
		data, err := os.ReadFile(rest[0])
		if err != nil {
			return err
		}
		receipt, err := deps.Receipts.Extract(ctx, providers.Image{
			Data:     data,
			MIMEType: mime.TypeByExtension(strings.ToLower(filepath.Ext(rest[0]))),
		})
		if err != nil {
			return err
		}
		printReceipt(receipt)
		return nil

	case "outbox":
		if deps.Outbox == nil {
			fmt.Println("no outbox configured")
			return nil
		}
		pending, err := deps.Outbox.GetQueueLength(ctx)
		if err != nil {
			return err
		}
		items, err := deps.Outbox.GetDeadLetterItems(ctx, 0)
		if err != nil {
			return err
		}
		fmt.Printf("pending: %d\nfailed: %d\n", pending, len(items))
		for _, item := range items {
			fmt.Printf("  %s  user=%s revision=%d  %s\n", item.ID, item.Job.Record.UserID, item.Job.Record.Revision, item.Error)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func show(deps *app.Dependencies) error {
	snap := deps.Coordinator.Snapshot()
	user, signedIn := deps.Identity.UserID()
	if !signedIn {
		user = "(signed out)"
	}

	status := "unconfigured"
	if snap.Configured {
		status = "configured"
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "provider\t%s (%s)\n", providers.DisplayName(snap.Provider), snap.Provider)
	fmt.Fprintf(w, "model\t%s\n", snap.Config.ModelName)
	fmt.Fprintf(w, "api key\t%s\n", utils.MaskSecret(snap.Config.APIKey))
	fmt.Fprintf(w, "temperature\t%g\n", snap.Config.Temperature)
	fmt.Fprintf(w, "max tokens\t%d\n", snap.Config.MaxTokens)
	fmt.Fprintf(w, "status\t%s\n", status)
	fmt.Fprintf(w, "user\t%s\n", user)
	fmt.Fprintf(w, "remote\t%s\n", snap.Remote)
	return w.Flush()
}

func parseReportArgs(args []string) (consumers.ReportRequest, error) {
	req := consumers.ReportRequest{Title: args[0]}
	for _, arg := range args[1:] {
		label, amount, ok := strings.Cut(arg, "=")
		if !ok {
			return req, fmt.Errorf("expected label=amount, got %q", arg)
		}
		v, err := decimal.NewFromString(amount)
		if err != nil {
			return req, fmt.Errorf("invalid amount for %s: %w", label, err)
		}
		req.Entries = append(req.Entries, consumers.ReportEntry{Label: label, Amount: v})
	}
	return req, nil
}

func printReceipt(r *consumers.Receipt) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(w, "merchant\t%s\n", r.Merchant)
	fmt.Fprintf(w, "date\t%s\n", r.Date)
	if r.Total != nil {
		fmt.Fprintf(w, "total\t%s %s\n", r.Total.StringFixed(2), r.Currency)
	}
	if r.Tax != nil {
		fmt.Fprintf(w, "tax\t%s %s\n", r.Tax.StringFixed(2), r.Currency)
	}
	for _, item := range r.Items {
		amount := "?"
		if item.Amount != nil {
			amount = item.Amount.StringFixed(2)
		}
		fmt.Fprintf(w, "  %g x %s\t%s\n", item.Quantity, item.Description, amount)
	}
	w.Flush()
}
