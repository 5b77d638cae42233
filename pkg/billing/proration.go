package billing

import (
	"strings"
	"time"
)

// currentPeriodSlack tolerates processor-side rounding between a proration
// line's period end and the subscription's period boundary.
const currentPeriodSlack = 24 * time.Hour

// PreviewLine is one line of a proration preview, flagged as belonging to
// the current billing period or a future one.
type PreviewLine struct {
	Description   string `json:"description"`
	Amount        int64  `json:"amount"`
	CurrentPeriod bool   `json:"current_period"`
}

// Preview reports what a plan switch would cost right now versus in future
// periods. AmountNow is the figure shown as "you will be charged X today";
// the raw processor preview also contains the next full-period charge, which
// must never be presented as an immediate charge.
type Preview struct {
	AmountNow int64         `json:"proration_amount_now"`
	Total     int64         `json:"invoice_total"`
	Currency  string        `json:"currency"`
	Lines     []PreviewLine `json:"lines"`
}

// partitionPreview splits simulated invoice lines into current-period and
// future-period charges relative to the subscription's current period
// boundary. A line belongs to the current period when its period ends at or
// within one day of the boundary; lines carrying no period information fall
// back to the processor's textual unused/remaining-time flagging. A line
// whose period ends after the boundary plus slack is never counted into
// AmountNow, regardless of wording.
func partitionPreview(inv *InvoicePreview, currentPeriodEnd time.Time) *Preview {
	preview := &Preview{
		Total:    inv.Total,
		Currency: inv.Currency,
		Lines:    make([]PreviewLine, 0, len(inv.Lines)),
	}

	cutoff := currentPeriodEnd.Add(currentPeriodSlack)

	for _, line := range inv.Lines {
		var current bool
		switch {
		case line.PeriodEnd.IsZero():
			current = line.Proration && mentionsRemainingTime(line.Description)
		default:
			current = !line.PeriodEnd.After(cutoff)
		}

		if current {
			preview.AmountNow += line.Amount
		}
		preview.Lines = append(preview.Lines, PreviewLine{
			Description:   line.Description,
			Amount:        line.Amount,
			CurrentPeriod: current,
		})
	}

	return preview
}

// mentionsRemainingTime matches the processor's wording for mid-cycle
// adjustment lines. Fragile against wording changes; the date check above is
// the primary rule and this only classifies lines with no period attached.
func mentionsRemainingTime(description string) bool {
	lower := strings.ToLower(description)
	return strings.Contains(lower, "unused time") || strings.Contains(lower, "remaining time")
}
