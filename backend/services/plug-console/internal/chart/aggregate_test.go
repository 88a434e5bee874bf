package chart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"smartplug/backend/services/plug-console/internal/protocol"
)

func TestAggregateEmpty(t *testing.T) {
	for _, period := range []protocol.Period{protocol.PeriodDay, protocol.PeriodWeek, protocol.PeriodMonth, protocol.PeriodYear} {
		res := Aggregate(nil, period, 0.12)
		assert.Empty(t, res.Labels)
		assert.Empty(t, res.Values)
		assert.NotNil(t, res.Labels)
		assert.NotNil(t, res.Values)
		assert.Zero(t, res.TotalEnergyKWh)
		assert.Zero(t, res.TotalCostUSD)
	}
}

func TestAggregateDayScenario(t *testing.T) {
	samples := []protocol.Sample{{TimestampSeconds: 0, EnergyKWh: 1.0}, {TimestampSeconds: 3600, EnergyKWh: 2.0}}

	res := Aggregate(samples, protocol.PeriodDay, 0.12)

	assert.Equal(t, []string{"00:00:00", "01:00:00"}, res.Labels)
	assert.Equal(t, []float64{1.0, 2.0}, res.Values)
	assert.Equal(t, 3.0, res.TotalEnergyKWh)
	assert.InDelta(t, 0.36, res.TotalCostUSD, 1e-12)
	assert.Equal(t, res.TotalEnergyKWh*0.12, res.TotalCostUSD)
}

func TestAggregateLabelsPerPeriod(t *testing.T) {
	ts := time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC).Unix()
	samples := []protocol.Sample{{TimestampSeconds: ts, EnergyKWh: 0.5}}

	assert.Equal(t, []string{"14:30:00"}, Aggregate(samples, protocol.PeriodDay, 1).Labels)
	assert.Equal(t, []string{"2024-03-05"}, Aggregate(samples, protocol.PeriodWeek, 1).Labels)
	assert.Equal(t, []string{"2024-03-05"}, Aggregate(samples, protocol.PeriodMonth, 1).Labels)
	assert.Equal(t, []string{"Mar"}, Aggregate(samples, protocol.PeriodYear, 1).Labels)
}

func TestAggregateKeepsOrderAndDuplicates(t *testing.T) {
	jan := time.Date(2024, time.January, 10, 0, 0, 0, 0, time.UTC).Unix()
	feb := time.Date(2024, time.February, 3, 0, 0, 0, 0, time.UTC).Unix()
	samples := []protocol.Sample{
		{TimestampSeconds: feb, EnergyKWh: 3},
		{TimestampSeconds: jan, EnergyKWh: 1},
		{TimestampSeconds: jan + 86400, EnergyKWh: 2},
	}

	res := Aggregate(samples, protocol.PeriodYear, 0.5)

	assert.Equal(t, []string{"Feb", "Jan", "Jan"}, res.Labels)
	assert.Equal(t, []float64{3, 1, 2}, res.Values)
	assert.Len(t, res.Values, len(samples))
	assert.Equal(t, 6.0, res.TotalEnergyKWh)
	assert.Equal(t, 3.0, res.TotalCostUSD)
}

func TestAggregatorUsesLocation(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	res := NewAggregator(loc).Aggregate([]protocol.Sample{{TimestampSeconds: 0, EnergyKWh: 1}}, protocol.PeriodDay, 0)
	assert.Equal(t, []string{"02:00:00"}, res.Labels)
}

func TestFromPayload(t *testing.T) {
	energy := 10.0
	res := FromPayload(protocol.ChartPayload{
		Labels:      []string{"a", "b", "c"},
		Values:      []float64{1, 2},
		TotalEnergy: &energy,
	}, protocol.PeriodWeek, 0.1)

	require.Len(t, res.Labels, 2)
	assert.Equal(t, []float64{1, 2}, res.Values)
	assert.Equal(t, 10.0, res.TotalEnergyKWh)
	assert.InDelta(t, 1.0, res.TotalCostUSD, 1e-12)

	cost := 7.0
	res = FromPayload(protocol.ChartPayload{Labels: []string{"x"}, Values: []float64{4, 5}, TotalCost: &cost}, "", 0.1)
	assert.Equal(t, []string{"x"}, res.Labels)
	assert.Equal(t, 4.0, res.TotalEnergyKWh)
	assert.Equal(t, 7.0, res.TotalCostUSD)
}
