package domain

import "testing"

func i64(v int64) *int64 { return &v }

func TestResolveValueBindingTotalWins(t *testing.T) {
	got := ResolveValue(i64(5000), i64(4000), i64(6000), true)
	if got.ValueType != ValueTypeBinding {
		t.Fatalf("expected binding, got %q", got.ValueType)
	}
	if got.Value == nil || *got.Value != 5000 {
		t.Fatalf("expected value 5000, got %v", got.Value)
	}
	if got.RangeLow != nil || got.RangeHigh != nil {
		t.Fatal("binding resolution must not carry a range")
	}
}

func TestResolveValueRangeMidpoint(t *testing.T) {
	got := ResolveValue(nil, i64(4000), i64(6000), false)
	if got.ValueType != ValueTypeNonBindingRange {
		t.Fatalf("expected non_binding_range, got %q", got.ValueType)
	}
	if *got.Value != 5000 || *got.RangeLow != 4000 || *got.RangeHigh != 6000 {
		t.Fatalf("unexpected resolution %+v", got)
	}
}

func TestResolveValueNonBindingTotalFallsBackToRange(t *testing.T) {
	got := ResolveValue(i64(9999), i64(100), i64(301), false)
	if got.ValueType != ValueTypeNonBindingRange || *got.Value != 200 {
		t.Fatalf("expected range midpoint 200, got %+v", got)
	}
}

func TestResolveValueSwapsInvertedRange(t *testing.T) {
	got := ResolveValue(nil, i64(6000), i64(4000), false)
	if got.ValueType != ValueTypeNonBindingRange {
		t.Fatalf("expected non_binding_range, got %q", got.ValueType)
	}
	if *got.Value != 5000 || *got.RangeLow != 4000 || *got.RangeHigh != 6000 {
		t.Fatalf("expected normalized range 4000..6000, got %+v", got)
	}
}

func TestResolveValueIgnoresNegativeFigures(t *testing.T) {
	got := ResolveValue(i64(-5), i64(100), i64(300), true)
	if got.ValueType != ValueTypeNonBindingRange || *got.Value != 200 {
		t.Fatalf("negative binding total must fall back to the range, got %+v", got)
	}

	got = ResolveValue(nil, i64(-100), i64(300), false)
	if got.ValueType != ValueTypeUnknown || got.Value != nil {
		t.Fatalf("range with a negative bound must resolve to unknown, got %+v", got)
	}
}

func TestResolveValueUnknown(t *testing.T) {
	cases := []struct {
		name      string
		total     *int64
		low, high *int64
		binding   bool
	}{
		{"binding without total", nil, nil, nil, true},
		{"half range", nil, i64(10), nil, false},
		{"non binding total only", i64(10), nil, nil, false},
	}
	for _, tc := range cases {
		got := ResolveValue(tc.total, tc.low, tc.high, tc.binding)
		if got.ValueType != ValueTypeUnknown || got.Value != nil {
			t.Errorf("%s: expected unknown with no value, got %+v", tc.name, got)
		}
	}
}

func TestShouldApplyValueNeverDowngrades(t *testing.T) {
	binding := ResolveValue(i64(1), nil, nil, true)
	rng := ResolveValue(nil, i64(1), i64(3), false)
	unknown := ResolveValue(nil, nil, nil, false)

	tests := []struct {
		current ValueType
		next    ValueResolution
		want    bool
	}{
		{ValueTypeUnknown, binding, true},
		{ValueTypeUnknown, rng, true},
		{ValueTypeUnknown, unknown, false},
		{ValueTypeNonBindingRange, binding, true},
		{ValueTypeNonBindingRange, rng, true},
		{ValueTypeNonBindingRange, unknown, false},
		{ValueTypeBinding, binding, true},
		{ValueTypeBinding, rng, false},
		{ValueTypeBinding, unknown, false},
	}

	for _, tc := range tests {
		if got := ShouldApplyValue(tc.current, tc.next); got != tc.want {
			t.Errorf("ShouldApplyValue(%q, %q) = %v, want %v", tc.current, tc.next.ValueType, got, tc.want)
		}
	}
}
