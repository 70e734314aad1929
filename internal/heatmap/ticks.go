package heatmap

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/bookmap/internal/domain"
)

// timeSteps are the candidate spacings for time axis ticks.
var timeSteps = []time.Duration{
	time.Second, 2 * time.Second, 5 * time.Second, 10 * time.Second, 15 * time.Second, 30 * time.Second,
	time.Minute, 2 * time.Minute, 5 * time.Minute, 10 * time.Minute, 15 * time.Minute, 30 * time.Minute,
	time.Hour,
}

// niceStep rounds raw up to 1, 2 or 5 times a power of ten and returns the
// step with the number of decimals needed to print it.
func niceStep(raw float64) (decimal.Decimal, int32) {
	exp := math.Floor(math.Log10(raw))
	frac := raw / math.Pow(10, exp)
	var nice int64
	switch {
	case frac <= 1:
		nice = 1
	case frac <= 2:
		nice = 2
	case frac <= 5:
		nice = 5
	default:
		nice = 1
		exp++
	}
	places := int32(0)
	if exp < 0 {
		places = int32(-exp)
	}
	return decimal.New(nice, int32(exp)), places
}

// PriceTicks returns about target evenly spaced, round-valued price labels
// inside the mapper's price range.
func (m Mapper) PriceTicks(target int) []domain.Tick {
	span := m.Price.Span()
	if target <= 0 || span <= 0 || math.IsInf(span, 0) {
		return nil
	}
	step, places := niceStep(span / float64(target))

	first := decimal.NewFromFloat(m.Price.Min).Div(step).Ceil().Mul(step)
	top := decimal.NewFromFloat(m.Price.Max)
	var out []domain.Tick
	for v := first; v.LessThanOrEqual(top); v = v.Add(step) {
		f, _ := v.Float64()
		out = append(out, domain.Tick{Pos: m.Y(f), Value: f, Label: v.StringFixed(places)})
		if len(out) > 4*target {
			break
		}
	}
	return out
}

// TimeTicks returns about target time labels inside the mapper's time range,
// aligned to round clock values.
func (m Mapper) TimeTicks(target int) []domain.Tick {
	span := m.Time.Duration()
	if target <= 0 || span <= 0 {
		return nil
	}
	step := timeSteps[len(timeSteps)-1]
	for _, s := range timeSteps {
		if s >= span/time.Duration(target) {
			step = s
			break
		}
	}

	t := m.Time.From.Truncate(step)
	if t.Before(m.Time.From) {
		t = t.Add(step)
	}
	var out []domain.Tick
	for ; !t.After(m.Time.To); t = t.Add(step) {
		out = append(out, domain.Tick{
			Pos:   m.X(t),
			Value: float64(t.UnixMilli()),
			Label: t.UTC().Format("15:04:05"),
		})
	}
	return out
}
