package consumers

import (
	"context"

	"github.com/shopspring/decimal"

	"ai_config/internal/providers"
	"ai_config/internal/utils"
)

const receiptPrompt = "This image is a purchase receipt. Respond with one JSON object with the keys " +
	`"merchant", "date" (YYYY-MM-DD), "currency" (ISO 4217), "total", "tax" and "items", ` +
	`where "items" is an array of objects with "description", "quantity" and "amount". ` +
	"Use null for anything you cannot read. Respond with JSON only."

// ReceiptItem is one purchased line.
type ReceiptItem struct {
	Description string
	Quantity    float64
	Amount      *decimal.Decimal
}

// Receipt is the data read from a receipt image. Fields holds everything
// the model returned, including keys not mapped here.
type Receipt struct {
	Merchant string
	Date     string
	Currency string
	Total    *decimal.Decimal
	Tax      *decimal.Decimal
	Items    []ReceiptItem
	Fields   map[string]any
	Model    string
}

// ReceiptExtractor reads receipts with the configured provider.
type ReceiptExtractor struct {
	src ServiceSource
}

func NewReceiptExtractor(src ServiceSource) *ReceiptExtractor {
	return &ReceiptExtractor{src: src}
}

// Extract reads img. It returns providers.ErrUnconfigured without contacting
// any provider when no credential is configured.
func (e *ReceiptExtractor) Extract(ctx context.Context, img providers.Image) (*Receipt, error) {
	svc, err := current(e.src)
	if err != nil {
		return nil, err
	}

	if img.Prompt == "" {
		img.Prompt = receiptPrompt
	}
	res, err := svc.ExtractStructured(ctx, img)
	if err != nil {
		logger.Warn("receipt extraction failed", "provider", svc.Provider(), "error", err)
		return nil, err
	}

	receipt := parseReceipt(res.Fields)
	receipt.Model = res.Model
	return receipt, nil
}

func parseReceipt(fields map[string]any) *Receipt {
	r := &Receipt{
		Merchant: utils.AsString(fields["merchant"]),
		Date:     utils.AsString(fields["date"]),
		Currency: utils.AsString(fields["currency"]),
		Fields:   fields,
	}
	if v, ok := utils.AsDecimal(fields["total"]); ok {
		r.Total = utils.DecimalPtr(v)
	}
	if v, ok := utils.AsDecimal(fields["tax"]); ok {
		r.Tax = utils.DecimalPtr(v)
	}

	items, _ := fields["items"].([]any)
	for _, raw := range items {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		item := ReceiptItem{
			Description: utils.AsString(m["description"]),
			Quantity:    1,
		}
		if q, ok := utils.AsFloat(m["quantity"]); ok && q > 0 {
			item.Quantity = q
		}
		if a, ok := utils.AsDecimal(m["amount"]); ok {
			item.Amount = utils.DecimalPtr(a)
		}
		r.Items = append(r.Items, item)
	}
	return r
}
