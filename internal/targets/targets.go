// Package targets validates target rows returned by the target repository.
package targets

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// Validate splits rows into valid targets and a count of malformed ones.
// Ids must parse as integers, coordinates as finite floats.
func Validate(rows []domain.RawTarget) ([]domain.Target, int) {
	valid := make([]domain.Target, 0, len(rows))
	malformed := 0
	for _, row := range rows {
		t, err := Parse(row)
		if err != nil {
			malformed++
			continue
		}
		valid = append(valid, t)
	}
	return valid, malformed
}

// Parse converts one row into a Target.
func Parse(row domain.RawTarget) (domain.Target, error) {
	id, err := toInt(row.ID)
	if err != nil {
		return domain.Target{}, fmt.Errorf("target_id: %w", err)
	}
	geocell, err := toInt(row.GeocellID)
	if err != nil {
		return domain.Target{}, fmt.Errorf("geocell_id: %w", err)
	}
	lon, err := toFloat(row.Lon)
	if err != nil {
		return domain.Target{}, fmt.Errorf("lon: %w", err)
	}
	lat, err := toFloat(row.Lat)
	if err != nil {
		return domain.Target{}, fmt.Errorf("lat: %w", err)
	}
	return domain.Target{ID: id, GeocellID: geocell, Lon: lon, Lat: lat}, nil
}

func toInt(v any) (int64, error) {
	switch x := v.(type) {
	case int:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case int64:
		return x, nil
	case float64:
		if x != math.Trunc(x) || math.IsInf(x, 0) {
			return 0, fmt.Errorf("not an integer: %v", x)
		}
		return int64(x), nil
	case json.Number:
		return x.Int64()
	case []byte:
		return strconv.ParseInt(strings.TrimSpace(string(x)), 10, 64)
	case string:
		return strconv.ParseInt(strings.TrimSpace(x), 10, 64)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
}

func toFloat(v any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	case json.Number:
		f, err = x.Float64()
	case []byte:
		f, err = strconv.ParseFloat(strings.TrimSpace(string(x)), 64)
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(x), 64)
	default:
		return 0, fmt.Errorf("unsupported value %v (%T)", v, v)
	}
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("not finite: %v", f)
	}
	return f, nil
}
