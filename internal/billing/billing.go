// Package billing converts AI token consumption into credit charges: a base
// cost per successful item plus a metered overage beyond a per-operation
// token budget. The budget-plus-overage design caps the predictable portion
// of spend while still recovering true cost on outlier responses.
package billing

import (
	"math"

	"github.com/applydraft/pkg/models"
)

// Model token pricing, USD per million tokens.
const (
	InputUSDPerMTok  = 0.80
	OutputUSDPerMTok = 4.00
)

// USDPerCredit is the conversion rate between metered dollars and credits.
const USDPerCredit = 0.9

// Base credit rates per successful item.
const (
	SearchCreditsPerTarget   = 0.2
	DeliveryCreditsPerTarget = 0.8
)

// Search-phase token budget coefficients: a base allowance plus a linear
// per-item allowance, for input and output separately.
const (
	searchInputBase     = 82000
	searchInputPerItem  = 40000
	searchOutputBase    = 2000
	searchOutputPerItem = 1000
)

// Generate-phase token budget coefficients. The generate phase makes at most
// one short call per target (smart subject), so the allowance is the
// per-target output cap plus subject-search input headroom.
const (
	generateInputBase    = 8000
	generateInputPerItem = 4000
	generateOutputPerItem = 2400
)

// SearchTokenLimit returns the total token budget (input + output) for a
// search batch of count targets.
func SearchTokenLimit(count int) float64 {
	if count <= 0 {
		return 0
	}
	inputLimit := float64(searchInputBase + searchInputPerItem*count)
	outputLimit := float64(searchOutputBase + searchOutputPerItem*count)
	return inputLimit + outputLimit
}

// GenerateTokenLimit returns the total token budget for a generation batch
// that processed count targets.
func GenerateTokenLimit(count int) float64 {
	if count <= 0 {
		return 0
	}
	return float64(generateInputBase + (generateInputPerItem+generateOutputPerItem)*count)
}

// SearchCost returns the minimum credit cost of a search for count targets,
// used for the pre-flight balance check before any capability call.
func SearchCost(count int) float64 {
	if count <= 0 {
		return 0
	}
	return Round(SearchCreditsPerTarget * float64(count))
}

// GenerateCost returns the base credit cost of delivering count targets.
func GenerateCost(count int) float64 {
	if count <= 0 {
		return 0
	}
	return Round(DeliveryCreditsPerTarget * float64(count))
}

// USDFromTokens converts token usage to dollars at the model's rates.
func USDFromTokens(inputTokens, outputTokens float64) float64 {
	inputUSD := (inputTokens / 1_000_000.0) * InputUSDPerMTok
	outputUSD := (outputTokens / 1_000_000.0) * OutputUSDPerMTok
	return inputUSD + outputUSD
}

// CreditsFromUSD converts a dollar amount to credits.
func CreditsFromUSD(usd float64) float64 {
	if USDPerCredit <= 0 {
		return 0
	}
	return usd / USDPerCredit
}

// OverageCredits computes the credit charge for token usage exceeding
// limitTokens. The excess is allocated proportionally between input and
// output by their share of total usage, then priced at the per-direction
// rates. The proportional split is deliberate and load-bearing for billing
// behavior; do not replace it with a fixed split.
func OverageCredits(usage models.TokenUsage, limitTokens float64) float64 {
	total := float64(usage.InputTokens + usage.OutputTokens)
	if total <= limitTokens || total <= 0 {
		return 0
	}
	extraTotal := total - limitTokens
	extraInput := float64(usage.InputTokens) * (extraTotal / total)
	extraOutput := float64(usage.OutputTokens) * (extraTotal / total)
	return CreditsFromUSD(USDFromTokens(extraInput, extraOutput))
}

// Round truncates a credit amount to 3 decimal places, the ledger's
// resolution.
func Round(credits float64) float64 {
	return math.Round(credits*1000) / 1000
}

// BatchCharge is the full charge breakdown for one billable operation.
type BatchCharge struct {
	Base        float64
	Overage     float64
	Total       float64
	LimitTokens float64
}

// SearchCharge computes the charge for a completed search: base per returned
// target plus overage against the requested-count budget.
func SearchCharge(requested, returned int, usage models.TokenUsage) BatchCharge {
	base := SearchCreditsPerTarget * float64(returned)
	limit := SearchTokenLimit(requested)
	overage := OverageCredits(usage, limit)
	return BatchCharge{
		Base:        Round(base),
		Overage:     Round(overage),
		Total:       Round(base + overage),
		LimitTokens: limit,
	}
}

// GenerateCharge computes the charge for a completed generation batch:
// search rate for manually entered targets, delivery rate per created draft,
// plus overage against the token budget for the targets actually processed.
// A target whose draft failed is never billed the delivery rate, but the
// tokens its generation consumed still count toward the budget.
func GenerateCharge(manual, delivered, processed int, usage models.TokenUsage) BatchCharge {
	base := float64(manual)*SearchCreditsPerTarget + float64(delivered)*DeliveryCreditsPerTarget
	limit := GenerateTokenLimit(processed)
	overage := OverageCredits(usage, limit)
	return BatchCharge{
		Base:        Round(base),
		Overage:     Round(overage),
		Total:       Round(base + overage),
		LimitTokens: limit,
	}
}
