package market

import (
	"errors"
	"testing"
	"time"
)

func ts(minute int) time.Time {
	return time.Date(2025, 6, 1, 0, minute, 0, 0, time.UTC)
}

func TestNewSeries_Valid(t *testing.T) {
	pairs := []PricePair{
		{Timestamp: ts(0), PriceA: 101, PriceB: 100},
		{Timestamp: ts(1), PriceA: 102, PriceB: 100.5},
		{Timestamp: ts(2), PriceA: 103, PriceB: 101},
	}

	series, err := NewSeries(pairs)
	if err != nil {
		t.Fatalf("NewSeries returned error: %v", err)
	}
	if series.Len() != 3 {
		t.Fatalf("Len = %d, want 3", series.Len())
	}
	if series.At(1).PriceA != 102 {
		t.Errorf("At(1).PriceA = %f, want 102", series.At(1).PriceA)
	}
}

func TestNewSeries_Rejections(t *testing.T) {
	cases := []struct {
		name  string
		pairs []PricePair
	}{
		{"empty", nil},
		{"zero timestamp", []PricePair{{PriceA: 1, PriceB: 1}}},
		{"non-positive price", []PricePair{{Timestamp: ts(0), PriceA: 0, PriceB: 1}}},
		{"duplicate timestamp", []PricePair{
			{Timestamp: ts(0), PriceA: 1, PriceB: 1},
			{Timestamp: ts(0), PriceA: 2, PriceB: 2},
		}},
		{"decreasing timestamp", []PricePair{
			{Timestamp: ts(1), PriceA: 1, PriceB: 1},
			{Timestamp: ts(0), PriceA: 2, PriceB: 2},
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewSeries(tc.pairs); !errors.Is(err, ErrMisaligned) {
				t.Fatalf("expected ErrMisaligned, got %v", err)
			}
		})
	}
}

func TestNewSeries_CopiesInput(t *testing.T) {
	pairs := []PricePair{{Timestamp: ts(0), PriceA: 100, PriceB: 99}}
	series, err := NewSeries(pairs)
	if err != nil {
		t.Fatalf("NewSeries returned error: %v", err)
	}

	pairs[0].PriceA = 1
	if series.At(0).PriceA != 100 {
		t.Errorf("series must not alias caller slice")
	}
}

func TestMerge_InnerJoin(t *testing.T) {
	future := []Candle{
		{Timestamp: ts(0), Close: 101},
		{Timestamp: ts(1), Close: 102},
		{Timestamp: ts(3), Close: 104},
	}
	perp := []Candle{
		{Timestamp: ts(1), Close: 100.5},
		{Timestamp: ts(2), Close: 100.7},
		{Timestamp: ts(3), Close: 100.9},
	}

	series, err := Merge(future, perp)
	if err != nil {
		t.Fatalf("Merge returned error: %v", err)
	}

	// 仅保留两边都有的 1 与 3 两个时间点。
	if series.Len() != 2 {
		t.Fatalf("Len = %d, want 2", series.Len())
	}
	first := series.At(0)
	if !first.Timestamp.Equal(ts(1)) || first.PriceA != 102 || first.PriceB != 100.5 {
		t.Errorf("unexpected first pair: %+v", first)
	}
	second := series.At(1)
	if !second.Timestamp.Equal(ts(3)) || second.PriceA != 104 || second.PriceB != 100.9 {
		t.Errorf("unexpected second pair: %+v", second)
	}
}

func TestMerge_NoOverlap(t *testing.T) {
	future := []Candle{{Timestamp: ts(0), Close: 101}}
	perp := []Candle{{Timestamp: ts(5), Close: 100}}

	if _, err := Merge(future, perp); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned for disjoint inputs, got %v", err)
	}
}

func TestMerge_EmptyInput(t *testing.T) {
	if _, err := Merge(nil, []Candle{{Timestamp: ts(0), Close: 1}}); !errors.Is(err, ErrMisaligned) {
		t.Fatalf("expected ErrMisaligned for empty side, got %v", err)
	}
}

func TestPairs_ReturnsCopy(t *testing.T) {
	series, err := NewSeries([]PricePair{{Timestamp: ts(0), PriceA: 100, PriceB: 99}})
	if err != nil {
		t.Fatalf("NewSeries returned error: %v", err)
	}

	out := series.Pairs()
	out[0].PriceA = 1
	if series.At(0).PriceA != 100 {
		t.Errorf("Pairs must return a copy")
	}
}
