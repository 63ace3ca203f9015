package indicators

// SMA returns the simple average of the last period values, or 0 when short.
func SMA(values []float64, period int) float64 {
	if period <= 0 || len(values) < period {
		return 0
	}
	m := NewMA(period)
	for _, v := range values[len(values)-period:] {
		m.Add(v)
	}
	return m.Value()
}

// EMA returns the final EMA over values, or 0 when short.
func EMA(values []float64, period int) float64 {
	s := emaSeries(values, period)
	if len(s) == 0 {
		return 0
	}
	return s[len(s)-1]
}

// emaSeries returns one EMA value per input from index period-1 on.
func emaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	e := NewEMA(period)
	out := make([]float64, 0, len(values)-period+1)
	for _, v := range values {
		e.Add(v)
		if e.Ready() {
			out = append(out, e.Value())
		}
	}
	return out
}

// smaSeries returns one SMA value per input from index period-1 on.
func smaSeries(values []float64, period int) []float64 {
	if period <= 0 || len(values) < period {
		return nil
	}
	m := NewMA(period)
	out := make([]float64, 0, len(values)-period+1)
	for _, v := range values {
		m.Add(v)
		if m.Ready() {
			out = append(out, m.Value())
		}
	}
	return out
}
