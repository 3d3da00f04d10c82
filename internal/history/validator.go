package history

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tejusbharadwaj/pvwatch/internal/models"
)

const (
	maxWindow     = 2 * 365 * 24 * time.Hour
	DefaultWindow = 24 * time.Hour

	maxWindowHours = int64(maxWindow / time.Hour)
	maxWindowDays  = maxWindowHours / 24
)

// Presets are the windows offered to operators, in hours.
var Presets = []time.Duration{
	6 * time.Hour,
	12 * time.Hour,
	24 * time.Hour,
	48 * time.Hour,
	168 * time.Hour,
}

var metricNames = []string{"live_power", "energy_today", "efficiency", "system_temp", "ambient_temp", "ac_power", "dc_power"}

// metrics maps a selectable metric name to its reading field.
var metrics = map[string]func(models.Reading) float64{
	"live_power":   func(r models.Reading) float64 { return r.LivePower },
	"energy_today": func(r models.Reading) float64 { return r.EnergyToday },
	"efficiency":   func(r models.Reading) float64 { return r.Efficiency },
	"system_temp":  func(r models.Reading) float64 { return r.SystemTemp },
	"ambient_temp": func(r models.Reading) float64 { return r.AmbientTemp },
	"ac_power":     func(r models.Reading) float64 { return r.ACPower },
	"dc_power":     func(r models.Reading) float64 { return r.DCPower },
}

// Metrics returns the names accepted by Series.
func Metrics() []string {
	return append([]string(nil), metricNames...)
}

// ParseWindow accepts a bare hour count ("24"), a day count ("7d") or a Go
// duration ("90m", "48h"). An empty string selects DefaultWindow.
func ParseWindow(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultWindow, nil
	}

	var d time.Duration
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		if err := checkCount(n, maxWindowHours); err != nil {
			return 0, err
		}
		d = time.Duration(n) * time.Hour
	} else if strings.HasSuffix(s, "d") {
		days, err := strconv.ParseInt(strings.TrimSuffix(s, "d"), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
		}
		if err := checkCount(days, maxWindowDays); err != nil {
			return 0, err
		}
		d = time.Duration(days) * 24 * time.Hour
	} else {
		d, err = time.ParseDuration(s)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWindow, s)
		}
	}

	if err := ValidateWindow(d); err != nil {
		return 0, err
	}
	return d, nil
}

// checkCount bounds an hour or day count before it is scaled to a Duration.
func checkCount(n, limit int64) error {
	if n <= 0 {
		return fmt.Errorf("%w: must be positive, got %d", ErrInvalidWindow, n)
	}
	if n > limit {
		return fmt.Errorf("%w: exceeds maximum of %s", ErrInvalidWindow, maxWindow)
	}
	return nil
}

// ValidateWindow checks that a trailing window is positive and at most two years.
func ValidateWindow(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("%w: must be positive, got %s", ErrInvalidWindow, d)
	}
	if d > maxWindow {
		return fmt.Errorf("%w: exceeds maximum of %s", ErrInvalidWindow, maxWindow)
	}
	return nil
}

func metricFunc(name string) (func(models.Reading) float64, error) {
	f, ok := metrics[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMetric, name)
	}
	return f, nil
}
