// Package parser turns one pv.csv snapshot into a models.Reading.
//
// The last data row of the file is the current observation. Per-point energy
// columns named energy_ptot_<N>_kWh form the production curve, ordered by N.
// Several fields are derived from the curve and the total energy counter using
// fixed factors; they are approximations, not measurements.
package parser

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

const (
	TimestampColumn   = "timestamp"
	TotalEnergyColumn = "total_energy_kWh"

	pointPrefix = "energy_ptot_"
	pointSuffix = "_kWh"

	// ACFactor and DCFactor derive inverter powers from the live power.
	ACFactor = 0.92
	DCFactor = 1.02
	// CO2Factor is kg CO2 avoided per kWh produced.
	CO2Factor = 0.366
	// DefaultEfficiency is reported when the feed has no efficiency column.
	DefaultEfficiency = 92.0

	// SourceLive tags readings parsed from the remote feed.
	SourceLive = "live"

	unparsedIndex = math.MaxInt
)

// ErrSchema is returned when a snapshot cannot be interpreted as a reading.
var ErrSchema = errors.New("schema error")

// Optional measured columns. When absent the field is defaulted.
var measuredColumns = []string{"efficiency", "uv_index", "system_temp", "ambient_temp"}

// PointColumn is a discovered per-point energy column.
type PointColumn struct {
	Index int    // embedded N, or math.MaxInt when unparsable
	Name  string // header text
	Pos   int    // position in the row
}

// Parser converts CSV snapshots into readings. It holds no state between calls.
type Parser struct {
	source string
}

func New() *Parser {
	return &Parser{source: SourceLive}
}

// Parse converts raw CSV bytes into a Reading.
func (p *Parser) Parse(data []byte) (models.Reading, error) {
	header, row, err := lastRow(data)
	if err != nil {
		return models.Reading{}, err
	}

	cols := indexHeader(header)
	points := DiscoverPointColumns(header)

	curve := make([]models.CurvePoint, 0, len(points))
	for _, pc := range points {
		v, ok := cellFloat(row, pc.Pos)
		if !ok || v < 0 {
			continue
		}
		curve = append(curve, models.CurvePoint{
			Index:  len(curve),
			Column: pc.Name,
			Value:  v,
		})
	}

	var live, sum float64
	if len(curve) > 0 {
		live = curve[len(curve)-1].Value
	}
	for _, c := range curve {
		sum += c.Value
	}

	r := models.Reading{
		LivePower:  live,
		Curve:      curve,
		DataSource: p.source,
		Efficiency: DefaultEfficiency,
	}

	total, hasTotal := lookupFloat(row, cols, TotalEnergyColumn)
	if hasTotal {
		if total < 0 {
			return models.Reading{}, fmt.Errorf("%w: negative %s %v", ErrSchema, TotalEnergyColumn, total)
		}
		r.TotalEnergy = total
		r.EnergyToday = total
	} else {
		r.EnergyToday = sum
		r.EstimatedFields = append(r.EstimatedFields, "energy_today", "total_energy")
	}

	r.ACPower = live * ACFactor
	r.DCPower = live * DCFactor
	r.CO2Avoided = r.TotalEnergy * CO2Factor
	r.EstimatedFields = append(r.EstimatedFields, "ac_power", "dc_power")

	for _, name := range measuredColumns {
		v, ok := lookupFloat(row, cols, name)
		if !ok {
			r.EstimatedFields = append(r.EstimatedFields, name)
			continue
		}
		switch name {
		case "efficiency":
			r.Efficiency = v
		case "uv_index":
			r.UVIndex = v
		case "system_temp":
			r.SystemTemp = v
		case "ambient_temp":
			r.AmbientTemp = v
		}
	}

	if pos, ok := cols[TimestampColumn]; ok && pos < len(row) {
		r.Timestamp = row[pos]
	}

	return r, nil
}

// DiscoverPointColumns returns the energy_ptot_<N>_kWh columns of a header
// sorted ascending by N. Columns whose N cannot be parsed sort last in header order.
func DiscoverPointColumns(header []string) []PointColumn {
	var out []PointColumn
	for pos, raw := range header {
		name := strings.TrimSpace(raw)
		if !strings.HasPrefix(name, pointPrefix) || !strings.HasSuffix(name, pointSuffix) {
			continue
		}
		if len(name) < len(pointPrefix)+len(pointSuffix) {
			continue
		}
		out = append(out, PointColumn{
			Index: pointIndex(name),
			Name:  name,
			Pos:   pos,
		})
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Index < out[j].Index
	})
	return out
}

func pointIndex(name string) int {
	token := strings.TrimSuffix(strings.TrimPrefix(name, pointPrefix), pointSuffix)
	n, err := strconv.Atoi(token)
	if err != nil {
		return unparsedIndex
	}
	return n
}

func lastRow(data []byte) ([]string, []string, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, fmt.Errorf("%w: empty file", ErrSchema)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("%w: reading header: %v", ErrSchema, err)
	}

	var last []string
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrSchema, err)
		}
		if isBlank(record) {
			continue
		}
		last = record
	}
	if last == nil {
		return nil, nil, fmt.Errorf("%w: no data rows", ErrSchema)
	}
	return header, last, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func indexHeader(header []string) map[string]int {
	m := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.TrimSpace(h)
		if _, dup := m[name]; !dup {
			m[name] = i
		}
	}
	return m
}

func lookupFloat(row []string, cols map[string]int, name string) (float64, bool) {
	pos, ok := cols[name]
	if !ok {
		return 0, false
	}
	return cellFloat(row, pos)
}

// cellFloat reads a finite float; empty and NaN cells report false.
func cellFloat(row []string, pos int) (float64, bool) {
	if pos >= len(row) {
		return 0, false
	}
	s := strings.TrimSpace(row[pos])
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
