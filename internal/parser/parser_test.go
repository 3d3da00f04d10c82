package parser

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_EndToEndRow(t *testing.T) {
	csv := "timestamp,total_energy_kWh,energy_ptot_0_kWh,energy_ptot_1_kWh\n" +
		"2025-01-01 10:00,90.0,1.0,2.0\n" +
		"2025-01-01 11:00,120.5,3.0,4.0\n"

	r, err := New().Parse([]byte(csv))
	require.NoError(t, err)

	assert.Equal(t, "2025-01-01 11:00", r.Timestamp)
	assert.Equal(t, 4.0, r.LivePower)
	assert.Equal(t, 120.5, r.EnergyToday)
	assert.Equal(t, 120.5, r.TotalEnergy)
	total := 120.5
	assert.Equal(t, total*CO2Factor, r.CO2Avoided)
	assert.Equal(t, DefaultEfficiency, r.Efficiency)
	assert.Equal(t, SourceLive, r.DataSource)
	require.Len(t, r.Curve, 2)
	assert.Equal(t, 3.0, r.Curve[0].Value)
	assert.Equal(t, 4.0, r.Curve[1].Value)
	assert.Equal(t, 1, r.Curve[1].Index)
}

func TestParse_DerivedFields(t *testing.T) {
	csv := "timestamp,total_energy_kWh,energy_ptot_0_kWh\n" +
		"t,100.0,5.0\n"

	r, err := New().Parse([]byte(csv))
	require.NoError(t, err)

	assert.Equal(t, 36.6, r.CO2Avoided)
	assert.InDelta(t, 4.6, r.ACPower, 1e-9)
	assert.InDelta(t, 5.1, r.DCPower, 1e-9)
	assert.Contains(t, r.EstimatedFields, "ac_power")
	assert.Contains(t, r.EstimatedFields, "efficiency")
}

func TestParse_Deterministic(t *testing.T) {
	csv := []byte("timestamp,total_energy_kWh,energy_ptot_2_kWh,energy_ptot_1_kWh\n" +
		"a,10,1.5,\n")

	p := New()
	first, err := p.Parse(csv)
	require.NoError(t, err)
	second, err := p.Parse(csv)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestDiscoverPointColumns_SortOrder(t *testing.T) {
	header := []string{
		"timestamp",
		"energy_ptot_3_kWh",
		"energy_ptot_x_kWh",
		"energy_ptot_1_kWh",
		"energy_ptot_10_kWh",
		"energy_ptot_2_kWh",
		"other",
	}

	cols := DiscoverPointColumns(header)
	require.Len(t, cols, 5)

	var names []string
	for _, c := range cols {
		names = append(names, c.Name)
	}
	assert.Equal(t, []string{
		"energy_ptot_1_kWh",
		"energy_ptot_2_kWh",
		"energy_ptot_3_kWh",
		"energy_ptot_10_kWh",
		"energy_ptot_x_kWh",
	}, names)
	assert.Equal(t, math.MaxInt, cols[4].Index)
}

func TestParse_CurveOrderAndFiltering(t *testing.T) {
	csv := "timestamp,energy_ptot_3_kWh,energy_ptot_1_kWh,energy_ptot_10_kWh,energy_ptot_2_kWh,energy_ptot_bad_kWh\n" +
		"t,3,1,NaN,-2,7\n"

	r, err := New().Parse([]byte(csv))
	require.NoError(t, err)

	var values []float64
	for _, c := range r.Curve {
		values = append(values, c.Value)
	}
	// 10 is NaN and 2 is negative, both dropped; the unparsable column comes last.
	assert.Equal(t, []float64{1, 3, 7}, values)
	assert.Equal(t, 7.0, r.LivePower)
}

func TestParse_EmptyCurve(t *testing.T) {
	csv := "timestamp,total_energy_kWh\n" +
		"t,50\n"

	r, err := New().Parse([]byte(csv))
	require.NoError(t, err)

	assert.Equal(t, 0.0, r.LivePower)
	assert.Empty(t, r.Curve)
	assert.Equal(t, 0.0, r.ACPower)
}

func TestParse_MissingTotalFallsBackToCurveSum(t *testing.T) {
	csv := "timestamp,energy_ptot_0_kWh,energy_ptot_1_kWh\n" +
		"t,1.5,2.5\n"

	r, err := New().Parse([]byte(csv))
	require.NoError(t, err)

	assert.Equal(t, 4.0, r.EnergyToday)
	assert.Equal(t, 0.0, r.TotalEnergy)
	assert.Equal(t, 0.0, r.CO2Avoided)
}

func TestParse_MeasuredColumns(t *testing.T) {
	csv := "timestamp,total_energy_kWh,efficiency,ambient_temp\n" +
		"t,1,88.5,21.0\n"

	r, err := New().Parse([]byte(csv))
	require.NoError(t, err)

	assert.Equal(t, 88.5, r.Efficiency)
	assert.Equal(t, 21.0, r.AmbientTemp)
	assert.Equal(t, 0.0, r.SystemTemp)
	assert.NotContains(t, r.EstimatedFields, "efficiency")
	assert.Contains(t, r.EstimatedFields, "system_temp")
}

func TestParse_SchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{name: "empty", data: ""},
		{name: "header only", data: "timestamp,total_energy_kWh\n"},
		{name: "blank data rows", data: "timestamp,total_energy_kWh\n,\n"},
		{name: "negative total", data: "timestamp,total_energy_kWh\nt,-1\n"},
		{name: "broken quoting", data: "timestamp,total_energy_kWh\n\"t,1\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New().Parse([]byte(tt.data))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSchema)
		})
	}
}

func TestParse_ShortRowAndBOM(t *testing.T) {
	csv := "\xef\xbb\xbftimestamp,total_energy_kWh,energy_ptot_0_kWh\n" +
		"t,12\n"

	r, err := New().Parse([]byte(csv))
	require.NoError(t, err)

	assert.Equal(t, "t", r.Timestamp)
	assert.Equal(t, 12.0, r.TotalEnergy)
	assert.Empty(t, r.Curve)
}

func TestDiscoverPointColumns_NegativeIndexSortsFirst(t *testing.T) {
	header := []string{"timestamp", "energy_ptot_0_kWh", "energy_ptot_-1_kWh", "energy_ptot_y_kWh"}

	cols := DiscoverPointColumns(header)
	require.Len(t, cols, 3)
	assert.Equal(t, "energy_ptot_-1_kWh", cols[0].Name)
	assert.Equal(t, -1, cols[0].Index)
	assert.Equal(t, "energy_ptot_0_kWh", cols[1].Name)
	assert.Equal(t, "energy_ptot_y_kWh", cols[2].Name)
}

func TestParse_TimestampKeptVerbatim(t *testing.T) {
	csv := "timestamp,total_energy_kWh,energy_ptot_0_kWh\n" +
		" 2025-01-01 11:00, 12.5, 4.0\n"

	r, err := New().Parse([]byte(csv))
	require.NoError(t, err)

	assert.Equal(t, " 2025-01-01 11:00", r.Timestamp)
	assert.Equal(t, 12.5, r.TotalEnergy)
	assert.Equal(t, 4.0, r.LivePower)
}
