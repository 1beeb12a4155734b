package domain

// ValueType describes how firm a deal value is.
type ValueType string

const (
	ValueTypeBinding         ValueType = "binding"
	ValueTypeNonBindingRange ValueType = "non_binding_range"
	ValueTypeUnknown         ValueType = "unknown"
)

// Rank orders value types: binding > non_binding_range > unknown.
func (v ValueType) Rank() int {
	switch v {
	case ValueTypeBinding:
		return 2
	case ValueTypeNonBindingRange:
		return 1
	default:
		return 0
	}
}

// ValueResolution is the canonical value derived from one quote revision.
// Amounts are in minor currency units.
type ValueResolution struct {
	Value     *int64
	ValueType ValueType
	RangeLow  *int64
	RangeHigh *int64
}

// ResolveValue converts a revision's raw figures into a deal value.
// A binding total wins; otherwise a complete low/high range resolves to its
// midpoint; anything else is unknown. Negative figures count as missing and
// an inverted range is swapped.
func ResolveValue(total, rangeLow, rangeHigh *int64, isBinding bool) ValueResolution {
	total, rangeLow, rangeHigh = nonNegative(total), nonNegative(rangeLow), nonNegative(rangeHigh)
	if isBinding && total != nil {
		v := *total
		return ValueResolution{Value: &v, ValueType: ValueTypeBinding}
	}
	if rangeLow != nil && rangeHigh != nil {
		low, high := *rangeLow, *rangeHigh
		if low > high {
			low, high = high, low
		}
		mid := low + (high-low)/2
		return ValueResolution{
			Value:     &mid,
			ValueType: ValueTypeNonBindingRange,
			RangeLow:  &low,
			RangeHigh: &high,
		}
	}
	return ValueResolution{ValueType: ValueTypeUnknown}
}

func nonNegative(v *int64) *int64 {
	if v == nil || *v < 0 {
		return nil
	}
	return v
}

// ShouldApplyValue decides whether next may overwrite a stored value of type current.
// A lower-ranked type never replaces a higher-ranked one, so a binding value
// can only be replaced by another binding value. Resolutions without a value
// never overwrite anything.
func ShouldApplyValue(current ValueType, next ValueResolution) bool {
	if next.Value == nil {
		return false
	}
	return next.ValueType.Rank() >= current.Rank()
}
