package domain

import (
	"math"
	"testing"
)

func TestClampPremiumCap(t *testing.T) {
	g := Guardrail{MinPrice: 50, MaxDiscountPct: 25, MaxPremiumPct: 40}

	price, adj, applied := g.Clamp(100, 60)
	if adj != 40 {
		t.Fatalf("expected adjustment clamped to +40, got %.4f", adj)
	}
	if price != 140 {
		t.Fatalf("expected final price 140, got %.2f", price)
	}
	if !applied {
		t.Fatal("expected guardrail_applied to be set")
	}
}

func TestClampFloorOverridesDiscountCap(t *testing.T) {
	g := Guardrail{MinPrice: 50, MaxDiscountPct: 25, MaxPremiumPct: 40}

	price, adj, applied := g.Clamp(60, -40)
	if price != 50 {
		t.Fatalf("expected floor price 50, got %.2f", price)
	}
	// 50/60 - 1 = -16.666...%
	if math.Abs(adj-(-16.6667)) > 0.001 {
		t.Fatalf("expected effective adjustment ~= -16.67, got %.4f", adj)
	}
	if !applied {
		t.Fatal("expected guardrail_applied to be set")
	}
}

func TestClampNeutralPassThrough(t *testing.T) {
	g := Guardrail{MinPrice: 50, MaxDiscountPct: 25, MaxPremiumPct: 40}

	price, adj, applied := g.Clamp(100, 10)
	if applied {
		t.Fatal("no guardrail should fire for an in-range adjustment")
	}
	if adj != 10 || price != 110 {
		t.Fatalf("expected 110 at +10%%, got price=%.2f adj=%.4f", price, adj)
	}
}

func TestClampSoundness(t *testing.T) {
	g := Guardrail{MinPrice: 80, MaxDiscountPct: 20, MaxPremiumPct: 35}

	for _, base := range []float64{60, 100, 250, 1000} {
		for raw := -90.0; raw <= 90.0; raw += 7.5 {
			price, _, _ := g.Clamp(base, raw)
			if price < g.MinPrice {
				t.Fatalf("base=%.0f raw=%.1f: final price %.2f below floor %.2f", base, raw, price, g.MinPrice)
			}
			ceiling := roundTo(base*(1+g.MaxPremiumPct/100), 2)
			if price > ceiling {
				t.Fatalf("base=%.0f raw=%.1f: final price %.2f above premium ceiling %.2f", base, raw, price, ceiling)
			}
		}
	}
}

func TestSignalWeightsValid(t *testing.T) {
	if !DefaultSignalWeights().Valid() {
		t.Fatal("default weights must sum to 1.0")
	}
	bad := SignalWeights{Utilization: 0.5, Forecast: 0.5, Competitor: 0.5}
	if bad.Valid() {
		t.Fatal("weights summing to 1.5 must be invalid")
	}
}

func TestEntityScopeCrossProduct(t *testing.T) {
	scope := EntityScope{BranchIDs: []int64{1, 2}, CategoryIDs: []int64{10, 20, 30}}
	keys := scope.Entities()
	if len(keys) != 6 {
		t.Fatalf("expected 6 entities, got %d", len(keys))
	}
	if keys[0] != (EntityKey{BranchID: 1, CategoryID: 10}) {
		t.Fatalf("unexpected first key: %+v", keys[0])
	}
}
