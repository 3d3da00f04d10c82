package models

import "time"

// ChangeToken identifies one revision of the remote file. Only equality is meaningful.
type ChangeToken string

// Snapshot is one immutable local copy of the remote file
type Snapshot struct {
	Token       ChangeToken
	Path        string // latest pointer
	ArchivePath string
	Data        []byte
	RetrievedAt time.Time
}

// CurvePoint is one value of the per-point production curve
type CurvePoint struct {
	Index  int     `json:"index"`
	Column string  `json:"column"`
	Value  float64 `json:"value"`
}

// Reading represents one parsed observation of the PV system
type Reading struct {
	Timestamp   string       `json:"timestamp"`
	LivePower   float64      `json:"live_power"`
	EnergyToday float64      `json:"energy_today"`
	ACPower     float64      `json:"ac_power"`
	DCPower     float64      `json:"dc_power"`
	Efficiency  float64      `json:"efficiency"`
	UVIndex     float64      `json:"uv_index"`
	TotalEnergy float64      `json:"total_energy"`
	SystemTemp  float64      `json:"system_temp"`
	CO2Avoided  float64      `json:"co2_avoided"`
	AmbientTemp float64      `json:"ambient_temp"`
	Curve       []CurvePoint `json:"production_curve"`
	DataSource  string       `json:"data_source"`

	// EstimatedFields lists the fields that were derived or defaulted rather than read
	// from the source. Not persisted.
	EstimatedFields []string `json:"estimated_fields,omitempty"`
}

// Record is a persisted Reading
type Record struct {
	ID         int64     `json:"id"`
	RecordedAt time.Time `json:"recorded_at"`
	Reading    Reading   `json:"reading"`
	Source     string    `json:"data_source"`
}

// Stats holds summary statistics over a window of records
type Stats struct {
	Count          int64   `json:"reading_count"`
	AvgPower       float64 `json:"avg_power"`
	MaxPower       float64 `json:"max_power"`
	MinPower       float64 `json:"min_power"`
	AvgEfficiency  float64 `json:"avg_efficiency"`
	AvgDailyEnergy float64 `json:"avg_daily_energy"`
}

// Summarize computes Stats in memory from already retrieved records.
func Summarize(records []Record) Stats {
	if len(records) == 0 {
		return Stats{}
	}

	s := Stats{
		Count:    int64(len(records)),
		MaxPower: records[0].Reading.LivePower,
		MinPower: records[0].Reading.LivePower,
	}
	var power, eff, energy float64
	for _, r := range records {
		p := r.Reading.LivePower
		power += p
		eff += r.Reading.Efficiency
		energy += r.Reading.EnergyToday
		if p > s.MaxPower {
			s.MaxPower = p
		}
		if p < s.MinPower {
			s.MinPower = p
		}
	}
	n := float64(len(records))
	s.AvgPower = power / n
	s.AvgEfficiency = eff / n
	s.AvgDailyEnergy = energy / n
	return s
}

// SeriesPoint is one value of a single metric over time
type SeriesPoint struct {
	Time  time.Time `json:"time"`
	Value float64   `json:"value"`
}
