package chart

import (
	"time"

	"smartplug/backend/services/plug-console/internal/protocol"
)

// Label layouts per period.
const (
	layoutTimeOfDay = "15:04:05"
	layoutDate      = "2006-01-02"
	layoutMonth     = "Jan"
)

// Result is the display model handed to the chart renderer.
// len(Labels) == len(Values) always.
type Result struct {
	Period         protocol.Period `json:"period,omitempty"`
	Labels         []string        `json:"labels"`
	Values         []float64       `json:"values"`
	TotalEnergyKWh float64         `json:"totalEnergyKWh"`
	TotalCostUSD   float64         `json:"totalCostUSD"`
}

// Aggregator formats labels in a fixed time zone.
type Aggregator struct {
	Location *time.Location
}

// NewAggregator returns an aggregator for loc; nil means UTC.
func NewAggregator(loc *time.Location) *Aggregator {
	if loc == nil {
		loc = time.UTC
	}
	return &Aggregator{Location: loc}
}

// Aggregate is Aggregator.Aggregate in UTC.
func Aggregate(samples []protocol.Sample, period protocol.Period, rateUSDPerKWh float64) Result {
	return NewAggregator(time.UTC).Aggregate(samples, period, rateUSDPerKWh)
}

// Aggregate turns samples into one chart point each, in input order. Samples sharing a
// label are not merged.
func (a *Aggregator) Aggregate(samples []protocol.Sample, period protocol.Period, rateUSDPerKWh float64) Result {
	loc := a.Location
	if loc == nil {
		loc = time.UTC
	}

	res := Result{
		Period: period,
		Labels: make([]string, 0, len(samples)),
		Values: make([]float64, 0, len(samples)),
	}
	for _, s := range samples {
		ts := time.Unix(s.TimestampSeconds, 0).In(loc)
		res.Labels = append(res.Labels, label(ts, period))
		res.Values = append(res.Values, s.EnergyKWh)
		res.TotalEnergyKWh += s.EnergyKWh
	}
	res.TotalCostUSD = res.TotalEnergyKWh * rateUSDPerKWh
	return res
}

func label(ts time.Time, period protocol.Period) string {
	switch period {
	case protocol.PeriodDay:
		return ts.Format(layoutTimeOfDay)
	case protocol.PeriodWeek, protocol.PeriodMonth:
		return ts.Format(layoutDate)
	case protocol.PeriodYear:
		return ts.Format(layoutMonth)
	default:
		return ts.Format(time.RFC3339)
	}
}

// FromPayload adopts a chart the device bucketed itself. Extra labels or values beyond
// the shorter series are dropped. Missing totals are derived from the kept values and
// rateUSDPerKWh.
func FromPayload(p protocol.ChartPayload, period protocol.Period, rateUSDPerKWh float64) Result {
	n := len(p.Labels)
	if len(p.Values) < n {
		n = len(p.Values)
	}

	res := Result{
		Period: period,
		Labels: append(make([]string, 0, n), p.Labels[:n]...),
		Values: append(make([]float64, 0, n), p.Values[:n]...),
	}

	if p.TotalEnergy != nil {
		res.TotalEnergyKWh = *p.TotalEnergy
	} else {
		for _, v := range res.Values {
			res.TotalEnergyKWh += v
		}
	}

	if p.TotalCost != nil {
		res.TotalCostUSD = *p.TotalCost
	} else {
		res.TotalCostUSD = res.TotalEnergyKWh * rateUSDPerKWh
	}
	return res
}
