package syncer

import (
	"math"

	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/models"
)

// PolicyInput gathers everything the evaluator needs to decide one
// (leader trade, relationship) pair. All lookups happen before evaluation so
// the decision itself is a pure function.
type PolicyInput struct {
	Trade        models.LeaderTrade
	Relationship models.CopyRelationship

	// TradePrice is the resolved execution price: the leader trade's price
	// when reported, otherwise a fresh quote.
	TradePrice        float64
	FollowerPortfolio float64
	LeaderPortfolio   float64

	// HasConnection reflects the follower's brokerage connection at
	// execution time; connections can be revoked after subscribing.
	HasConnection bool

	// RecentLossPct is the follower's realized loss over the configured
	// window, as a positive percent.
	RecentLossPct float64

	// Leader-side trigger prices, when the leader's position carries them.
	LeaderStopLoss   *float64
	LeaderTakeProfit *float64
}

// CopyDecision is the evaluator's verdict for one pair.
type CopyDecision struct {
	Eligible   bool
	Reason     string // skip reason code when not eligible
	Quantity   float64
	StopLoss   *float64
	TakeProfit *float64
}

// EvaluateCopy decides copy eligibility and order size. Checks run in a
// fixed order and the first failure short-circuits with its reason code.
// Pure: no I/O, deterministic for a given input.
func EvaluateCopy(in PolicyInput, cfg config.PolicyConfig) CopyDecision {
	rel := in.Relationship

	if rel.Status != models.RelationshipActive {
		return skip(models.ReasonRelationshipStopped)
	}
	if rel.AssetClassFilter != "" && in.Trade.AssetClass != "" && in.Trade.AssetClass != rel.AssetClassFilter {
		return skip(models.ReasonAssetClassFilter)
	}
	if rel.StopCopyingOnLoss != nil && in.RecentLossPct >= *rel.StopCopyingOnLoss {
		return skip(models.ReasonLossLimitReached)
	}
	if !in.HasConnection {
		return skip(models.ReasonNoConnection)
	}

	quantity := computeQuantity(in)
	if quantity <= 0 {
		return skip(models.ReasonSizeTooSmall)
	}

	if rel.MaxPositionSize != nil && quantity > *rel.MaxPositionSize {
		quantity = *rel.MaxPositionSize
	}

	decision := CopyDecision{Eligible: true}
	if in.Trade.Side == models.SideBuy {
		decision.StopLoss, decision.TakeProfit = triggerPrices(in)
	}

	if rel.MaxRiskPerTrade != nil && in.FollowerPortfolio > 0 {
		quantity = clampToRisk(quantity, in.TradePrice, in.FollowerPortfolio, *rel.MaxRiskPerTrade, decision.StopLoss)
	}

	quantity = floorQuantity(quantity, cfg.QuantityDecimals)
	if quantity <= 0 || quantity*in.TradePrice < cfg.MinOrderNotional {
		return skip(models.ReasonSizeTooSmall)
	}

	decision.Quantity = quantity
	return decision
}

func skip(reason string) CopyDecision {
	return CopyDecision{Eligible: false, Reason: reason}
}

func computeQuantity(in PolicyInput) float64 {
	if in.TradePrice <= 0 {
		return 0
	}
	rel := in.Relationship
	switch rel.Method {
	case models.AllocFixedPercent:
		return (in.FollowerPortfolio * rel.AllocationValue / 100) / in.TradePrice
	case models.AllocFixedDollar:
		return rel.AllocationValue / in.TradePrice
	case models.AllocProportional:
		if in.LeaderPortfolio <= 0 {
			return 0
		}
		return in.Trade.Quantity * (in.FollowerPortfolio / in.LeaderPortfolio)
	default:
		return 0
	}
}

// clampToRisk bounds quantity so the trade risks at most maxRiskPct of the
// follower's portfolio. Risk per unit is the stop distance when a stop-loss
// price is known, otherwise full notional.
func clampToRisk(quantity, price, portfolio, maxRiskPct float64, stopLoss *float64) float64 {
	riskPerUnit := price
	if stopLoss != nil && *stopLoss > 0 && *stopLoss < price {
		riskPerUnit = price - *stopLoss
	}
	if riskPerUnit <= 0 {
		return quantity
	}
	maxQuantity := (portfolio * maxRiskPct / 100) / riskPerUnit
	if quantity > maxQuantity {
		return maxQuantity
	}
	return quantity
}

// triggerPrices resolves the stop-loss/take-profit tags for the follower's
// new position: the relationship's percent override off the entry price when
// configured, otherwise the leader's absolute trigger price.
func triggerPrices(in PolicyInput) (stopLoss, takeProfit *float64) {
	rel := in.Relationship

	if rel.CopyStopLoss {
		if rel.StopLossOverride != nil {
			price := in.TradePrice * (1 - *rel.StopLossOverride/100)
			stopLoss = &price
		} else if in.LeaderStopLoss != nil {
			price := *in.LeaderStopLoss
			stopLoss = &price
		}
	}
	if rel.CopyTakeProfit {
		if rel.TakeProfitOverride != nil {
			price := in.TradePrice * (1 + *rel.TakeProfitOverride/100)
			takeProfit = &price
		} else if in.LeaderTakeProfit != nil {
			price := *in.LeaderTakeProfit
			takeProfit = &price
		}
	}
	return stopLoss, takeProfit
}

func floorQuantity(quantity float64, decimals int) float64 {
	if decimals <= 0 {
		return math.Floor(quantity)
	}
	pow := math.Pow(10, float64(decimals))
	return math.Floor(quantity*pow) / pow
}
