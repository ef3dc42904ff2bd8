package syncer

import (
	"math"
	"testing"

	"github.com/abhip2006/copytrade-sub001/config"
	"github.com/abhip2006/copytrade-sub001/models"
)

func fp(v float64) *float64 { return &v }

func testPolicyConfig() config.PolicyConfig {
	return config.PolicyConfig{QuantityDecimals: 4, LossWindowDays: 7, MinOrderNotional: 1.0}
}

func baseInput() PolicyInput {
	return PolicyInput{
		Trade: models.LeaderTrade{
			Symbol:     "AAPL",
			AssetClass: "equity",
			Side:       models.SideBuy,
			Quantity:   100,
		},
		Relationship: models.CopyRelationship{
			Status:          models.RelationshipActive,
			Method:          models.AllocFixedPercent,
			AllocationValue: 10,
		},
		TradePrice:        50,
		FollowerPortfolio: 20000,
		HasConnection:     true,
	}
}

func TestEvaluateCopyEligibility(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*PolicyInput)
		wantReason string
	}{
		{
			name:       "stopped relationship",
			mutate:     func(in *PolicyInput) { in.Relationship.Status = models.RelationshipStopped },
			wantReason: models.ReasonRelationshipStopped,
		},
		{
			name: "asset class filtered out",
			mutate: func(in *PolicyInput) {
				in.Relationship.AssetClassFilter = "crypto"
			},
			wantReason: models.ReasonAssetClassFilter,
		},
		{
			name: "loss limit reached",
			mutate: func(in *PolicyInput) {
				in.Relationship.StopCopyingOnLoss = fp(5)
				in.RecentLossPct = 7.5
			},
			wantReason: models.ReasonLossLimitReached,
		},
		{
			name:       "no brokerage connection",
			mutate:     func(in *PolicyInput) { in.HasConnection = false },
			wantReason: models.ReasonNoConnection,
		},
		{
			name: "zero price yields no size",
			mutate: func(in *PolicyInput) {
				in.TradePrice = 0
			},
			wantReason: models.ReasonSizeTooSmall,
		},
		{
			name: "below minimum notional",
			mutate: func(in *PolicyInput) {
				in.Relationship.Method = models.AllocFixedDollar
				in.Relationship.AllocationValue = 0.5
			},
			wantReason: models.ReasonSizeTooSmall,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			got := EvaluateCopy(in, testPolicyConfig())
			if got.Eligible {
				t.Fatalf("EvaluateCopy() eligible, want skip %q", tt.wantReason)
			}
			if got.Reason != tt.wantReason {
				t.Errorf("Reason = %q, want %q", got.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluateCopyChecksStatusBeforeConnection(t *testing.T) {
	// A stopped relationship with no connection reports the stop, not the
	// missing connection; checks run in a fixed order.
	in := baseInput()
	in.Relationship.Status = models.RelationshipStopped
	in.HasConnection = false

	got := EvaluateCopy(in, testPolicyConfig())
	if got.Reason != models.ReasonRelationshipStopped {
		t.Errorf("Reason = %q, want %q", got.Reason, models.ReasonRelationshipStopped)
	}
}

func TestEvaluateCopySizing(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*PolicyInput)
		want   float64
	}{
		{
			name:   "fixed percent: 10% of 20000 at 50",
			mutate: func(in *PolicyInput) {},
			want:   40,
		},
		{
			name: "fixed dollar: 1500 at 50",
			mutate: func(in *PolicyInput) {
				in.Relationship.Method = models.AllocFixedDollar
				in.Relationship.AllocationValue = 1500
			},
			want: 30,
		},
		{
			name: "proportional: half the leader's portfolio",
			mutate: func(in *PolicyInput) {
				in.Relationship.Method = models.AllocProportional
				in.FollowerPortfolio = 50000
				in.LeaderPortfolio = 100000
			},
			want: 50,
		},
		{
			name: "max position size clamps",
			mutate: func(in *PolicyInput) {
				in.Relationship.MaxPositionSize = fp(25)
			},
			want: 25,
		},
		{
			name: "risk clamp on notional when no stop is known",
			mutate: func(in *PolicyInput) {
				// 1% of 20000 = 200 at risk; full notional per unit is 50.
				in.Relationship.MaxRiskPerTrade = fp(1)
			},
			want: 4,
		},
		{
			name: "risk clamp uses stop distance when stop is known",
			mutate: func(in *PolicyInput) {
				// Stop at 45 risks 5/unit; 1% of 20000 = 200 allows 40 units,
				// which matches the allocation so no clamping happens.
				in.Relationship.MaxRiskPerTrade = fp(1)
				in.Relationship.CopyStopLoss = true
				in.LeaderStopLoss = fp(45)
			},
			want: 40,
		},
		{
			name: "fractional result floors to four decimals",
			mutate: func(in *PolicyInput) {
				in.Relationship.Method = models.AllocFixedDollar
				in.Relationship.AllocationValue = 100
				in.TradePrice = 3
			},
			want: 33.3333,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			got := EvaluateCopy(in, testPolicyConfig())
			if !got.Eligible {
				t.Fatalf("EvaluateCopy() skipped with %q, want eligible", got.Reason)
			}
			if math.Abs(got.Quantity-tt.want) > 1e-9 {
				t.Errorf("Quantity = %v, want %v", got.Quantity, tt.want)
			}
		})
	}
}

func TestEvaluateCopyTriggerPrices(t *testing.T) {
	t.Run("overrides are percent offsets from entry", func(t *testing.T) {
		in := baseInput()
		in.TradePrice = 100
		in.Relationship.CopyStopLoss = true
		in.Relationship.CopyTakeProfit = true
		in.Relationship.StopLossOverride = fp(5)
		in.Relationship.TakeProfitOverride = fp(10)

		got := EvaluateCopy(in, testPolicyConfig())
		if !got.Eligible {
			t.Fatalf("EvaluateCopy() skipped with %q", got.Reason)
		}
		if got.StopLoss == nil || math.Abs(*got.StopLoss-95) > 1e-9 {
			t.Errorf("StopLoss = %v, want 95", got.StopLoss)
		}
		if got.TakeProfit == nil || math.Abs(*got.TakeProfit-110) > 1e-9 {
			t.Errorf("TakeProfit = %v, want 110", got.TakeProfit)
		}
	})

	t.Run("leader triggers pass through without overrides", func(t *testing.T) {
		in := baseInput()
		in.Relationship.CopyStopLoss = true
		in.Relationship.CopyTakeProfit = true
		in.LeaderStopLoss = fp(42)
		in.LeaderTakeProfit = fp(65)

		got := EvaluateCopy(in, testPolicyConfig())
		if got.StopLoss == nil || *got.StopLoss != 42 {
			t.Errorf("StopLoss = %v, want 42", got.StopLoss)
		}
		if got.TakeProfit == nil || *got.TakeProfit != 65 {
			t.Errorf("TakeProfit = %v, want 65", got.TakeProfit)
		}
	})

	t.Run("no triggers on sells", func(t *testing.T) {
		in := baseInput()
		in.Trade.Side = models.SideSell
		in.Relationship.CopyStopLoss = true
		in.Relationship.StopLossOverride = fp(5)

		got := EvaluateCopy(in, testPolicyConfig())
		if got.StopLoss != nil || got.TakeProfit != nil {
			t.Errorf("sell decision carries triggers: sl=%v tp=%v", got.StopLoss, got.TakeProfit)
		}
	})

	t.Run("copy flags off means no triggers", func(t *testing.T) {
		in := baseInput()
		in.LeaderStopLoss = fp(42)

		got := EvaluateCopy(in, testPolicyConfig())
		if got.StopLoss != nil {
			t.Errorf("StopLoss = %v, want nil when copy_stop_loss is off", got.StopLoss)
		}
	})
}

func TestEvaluateCopyIsPure(t *testing.T) {
	in := baseInput()
	in.Relationship.MaxRiskPerTrade = fp(2)
	in.Relationship.CopyStopLoss = true
	in.LeaderStopLoss = fp(45)

	first := EvaluateCopy(in, testPolicyConfig())
	for i := 0; i < 10; i++ {
		got := EvaluateCopy(in, testPolicyConfig())
		if got.Eligible != first.Eligible || got.Quantity != first.Quantity {
			t.Fatalf("run %d differs: %+v vs %+v", i, got, first)
		}
	}
}
