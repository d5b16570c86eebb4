package scenario

import (
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/dist"
	"github.com/GFZ-Centre-for-Early-Warning/caravan/internal/domain"
)

// Input event keys.
const (
	KeyLat         = "lat"
	KeyLon         = "lon"
	KeyMag         = "mag"
	KeyDepth       = "dep"
	KeyGMPE        = "ipe"
	KeyStrike      = "str"
	KeyDip         = "dip"
	KeyFaultStyle  = "sof"
	KeyTime        = "tim"
	KeyEventID     = "eid"
	KeyGMOnly      = "gm_only"
	KeySampleCount = "mcerp_npts"
	KeyTessIDs     = "tess_ids"
	KeyAOI         = "aoi"
	KeyIRef        = "aoi_i_ref"
	KeyKmStep      = "aoi_km_step"
)

// MaxTessellationID is the highest known tessellation id.
const MaxTessellationID = 7

// Settings supplies values for keys an event omits, and the valid model ids.
type Settings struct {
	TessIDs     []int
	IRef        float64
	KmStep      float64
	SampleCount int
	Percentiles []float64
	GMOnly      bool
	GMPEIDs     []int
}

// DefaultSettings returns the stock settings.
func DefaultSettings() Settings {
	return Settings{
		TessIDs:     []int{1, 2},
		IRef:        6,
		KmStep:      1,
		SampleCount: dist.DefaultSampleCount,
		Percentiles: []float64{0.05, 0.25, 0.5, 0.75, 0.95},
		GMPEIDs:     []int{1, 2, 3},
	}
}

type paramSpec struct {
	key      string
	family   domain.Family
	lo, hi   float64
	decimals int
}

var (
	latSpec    = paramSpec{key: KeyLat, family: domain.FamilyNormal, lo: -90, hi: 90, decimals: 3}
	lonSpec    = paramSpec{key: KeyLon, family: domain.FamilyNormal, lo: -180, hi: 180, decimals: 3}
	depthSpec  = paramSpec{key: KeyDepth, family: domain.FamilyUniform, lo: 0.001, hi: 660, decimals: 3}
	magSpec    = paramSpec{key: KeyMag, family: domain.FamilyUniform, lo: 0.1, hi: 12, decimals: 2}
	strikeSpec = paramSpec{key: KeyStrike, family: domain.FamilyUniform, lo: 0, hi: 360, decimals: 0}
	dipSpec    = paramSpec{key: KeyDip, family: domain.FamilyUniform, lo: 0, hi: 360, decimals: 0}
)

// Parse validates an input event. Numbers may be JSON numbers or numeric
// strings; distributions are two element arrays.
func Parse(event map[string]any, settings Settings) (*domain.Scenario, error) {
	s := &domain.Scenario{
		TessIDs:     slices.Clone(settings.TessIDs),
		IRef:        settings.IRef,
		KmStep:      settings.KmStep,
		SampleCount: settings.SampleCount,
		Percentiles: slices.Clone(settings.Percentiles),
		GMOnly:      settings.GMOnly,
	}
	slices.Sort(s.Percentiles)

	var err error
	for _, p := range []struct {
		spec paramSpec
		dst  *domain.Param
	}{
		{latSpec, &s.Lat},
		{lonSpec, &s.Lon},
		{depthSpec, &s.Depth},
		{magSpec, &s.Mag},
	} {
		raw, ok := event[p.spec.key]
		if !ok || raw == nil {
			return nil, &domain.ValidationError{Field: p.spec.key, Reason: "missing value"}
		}
		if *p.dst, err = parseParam(p.spec, raw); err != nil {
			return nil, err
		}
	}

	if s.Strike, err = optionalParam(event, strikeSpec); err != nil {
		return nil, err
	}
	if s.Dip, err = optionalParam(event, dipSpec); err != nil {
		return nil, err
	}

	raw, ok := event[KeyGMPE]
	if !ok || raw == nil {
		return nil, &domain.ValidationError{Field: KeyGMPE, Reason: "missing value"}
	}
	if s.GMPEID, err = parseInt(KeyGMPE, raw); err != nil {
		return nil, err
	}
	if len(settings.GMPEIDs) > 0 && !slices.Contains(settings.GMPEIDs, s.GMPEID) {
		return nil, &domain.ValidationError{Field: KeyGMPE, Value: s.GMPEID, Reason: fmt.Sprintf("not one of %v", settings.GMPEIDs)}
	}

	if raw, ok := event[KeyFaultStyle]; ok && raw != nil && raw != "" {
		if s.FaultStyle, err = parseIntIn(KeyFaultStyle, raw, 1, 4); err != nil {
			return nil, err
		}
	}

	if raw, ok := event[KeyTime]; ok && raw != nil && raw != "" {
		t, err := parseTime(raw)
		if err != nil {
			return nil, err
		}
		s.Time = &t
	}

	if raw, ok := event[KeyEventID]; ok && raw != nil {
		s.EventID = strings.TrimSpace(fmt.Sprint(raw))
	}

	if raw, ok := event[KeyGMOnly]; ok {
		s.GMOnly = parseBool(raw)
	}

	if raw, ok := event[KeySampleCount]; ok && raw != nil && raw != "" {
		if s.SampleCount, err = parseIntIn(KeySampleCount, raw, 1, math.MaxInt32); err != nil {
			return nil, err
		}
	}
	s.SampleCount = max(s.SampleCount, dist.MinSampleCount(s.Percentiles))

	if raw, ok := event[KeyTessIDs]; ok && raw != nil && raw != "" {
		if s.TessIDs, err = parseTessIDs(raw); err != nil {
			return nil, err
		}
	}
	if len(s.TessIDs) == 0 {
		return nil, &domain.ValidationError{Field: KeyTessIDs, Reason: "at least one tessellation id is required"}
	}

	if raw, ok := event[KeyAOI]; ok && raw != nil && raw != "" {
		if s.AOI, err = parseAOI(raw); err != nil {
			return nil, err
		}
	}

	if raw, ok := event[KeyIRef]; ok && raw != nil && raw != "" {
		if s.IRef, err = parseFloat(KeyIRef, raw); err != nil {
			return nil, err
		}
	}

	if raw, ok := event[KeyKmStep]; ok && raw != nil && raw != "" {
		step, err := parseIntIn(KeyKmStep, raw, 1, math.MaxInt32)
		if err != nil {
			return nil, err
		}
		s.KmStep = float64(step)
	}
	if s.KmStep <= 0 {
		return nil, &domain.ValidationError{Field: KeyKmStep, Value: s.KmStep, Reason: "must be positive"}
	}

	return s, nil
}

func optionalParam(event map[string]any, spec paramSpec) (*domain.Param, error) {
	raw, ok := event[spec.key]
	if !ok || raw == nil || raw == "" {
		return nil, nil
	}
	p, err := parseParam(spec, raw)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func parseParam(spec paramSpec, raw any) (domain.Param, error) {
	vals, err := toFloats(spec.key, raw)
	if err != nil {
		return domain.Param{}, err
	}
	for i := range vals {
		vals[i] = round(vals[i], spec.decimals)
	}

	invalid := func(reason string) error {
		return &domain.ValidationError{Field: spec.key, Value: raw, Reason: reason}
	}
	inRange := func(v float64) bool { return v >= spec.lo && v <= spec.hi }
	rangeReason := fmt.Sprintf("value not in [%g, %g]", spec.lo, spec.hi)

	switch len(vals) {
	case 1:
		if !inRange(vals[0]) {
			return domain.Param{}, invalid(rangeReason)
		}
		return domain.ScalarParam(spec.family, vals[0]), nil
	case 2:
	default:
		return domain.Param{}, invalid("expected a number or a two element array")
	}

	a, b := vals[0], vals[1]
	if spec.family == domain.FamilyNormal {
		if !inRange(a) {
			return domain.Param{}, invalid(rangeReason)
		}
		if b < 0 {
			return domain.Param{}, invalid("standard deviation must not be negative")
		}
		if b == 0 {
			return domain.ScalarParam(spec.family, a), nil
		}
		return domain.NormalParam(a, b), nil
	}

	if !inRange(a) || !inRange(b) {
		return domain.Param{}, invalid(rangeReason)
	}
	if a > b {
		return domain.Param{}, invalid("uniform bounds must be [min, max]")
	}
	if a == b {
		return domain.ScalarParam(spec.family, a), nil
	}
	return domain.UniformParam(a, b), nil
}

func round(v float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(v*pow) / pow
}

// toFloats accepts a number, a numeric string, a list, or a string holding
// a list such as "[6.5, 7]" or "6.5 7".
func toFloats(key string, raw any) ([]float64, error) {
	switch v := raw.(type) {
	case []any:
		out := make([]float64, len(v))
		for i, e := range v {
			f, err := parseFloat(key, e)
			if err != nil {
				return nil, err
			}
			out[i] = f
		}
		return out, nil
	case []float64:
		return slices.Clone(v), nil
	case string:
		fields := splitList(v)
		if len(fields) == 0 {
			return nil, &domain.ValidationError{Field: key, Value: raw, Reason: "missing value"}
		}
		out := make([]float64, len(fields))
		for i, f := range fields {
			val, err := parseFloat(key, f)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	default:
		f, err := parseFloat(key, raw)
		if err != nil {
			return nil, err
		}
		return []float64{f}, nil
	}
}

func splitList(s string) []string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	return strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n'
	})
}

func parseFloat(key string, raw any) (float64, error) {
	var (
		f   float64
		err error
	)
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		f, err = v.Float64()
	case string:
		f, err = strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, &domain.ValidationError{Field: key, Value: raw, Reason: "not a number"}
	}
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, &domain.ValidationError{Field: key, Value: raw, Reason: "not a number"}
	}
	return f, nil
}

func parseInt(key string, raw any) (int, error) {
	f, err := parseFloat(key, raw)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, &domain.ValidationError{Field: key, Value: raw, Reason: "not an integer"}
	}
	return int(f), nil
}

func parseIntIn(key string, raw any, lo, hi int) (int, error) {
	i, err := parseInt(key, raw)
	if err != nil {
		return 0, err
	}
	if i < lo || i > hi {
		return 0, &domain.ValidationError{Field: key, Value: raw, Reason: fmt.Sprintf("value not in [%d, %d]", lo, hi)}
	}
	return i, nil
}

func parseTessIDs(raw any) ([]int, error) {
	vals, err := toFloats(KeyTessIDs, raw)
	if err != nil {
		return nil, err
	}
	if len(vals) > MaxTessellationID {
		return nil, &domain.ValidationError{Field: KeyTessIDs, Value: raw, Reason: fmt.Sprintf("at most %d ids", MaxTessellationID)}
	}
	ids := make([]int, 0, len(vals))
	for _, v := range vals {
		id, err := parseIntIn(KeyTessIDs, v, 1, MaxTessellationID)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(ids, id) {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func parseAOI(raw any) (*domain.BBox, error) {
	vals, err := toFloats(KeyAOI, raw)
	if err != nil {
		return nil, err
	}
	if len(vals) != 4 {
		return nil, &domain.ValidationError{Field: KeyAOI, Value: raw, Reason: "expected [lon1, lat1, lon2, lat2]"}
	}
	box := &domain.BBox{Lon1: vals[0], Lat1: vals[1], Lon2: vals[2], Lat2: vals[3]}
	for _, lon := range []float64{box.Lon1, box.Lon2} {
		if lon < -180 || lon > 180 {
			return nil, &domain.ValidationError{Field: KeyAOI, Value: raw, Reason: "longitude not in [-180, 180]"}
		}
	}
	for _, lat := range []float64{box.Lat1, box.Lat2} {
		if lat < -90 || lat > 90 {
			return nil, &domain.ValidationError{Field: KeyAOI, Value: raw, Reason: "latitude not in [-90, 90]"}
		}
	}
	return box, nil
}

func parseBool(raw any) bool {
	switch v := raw.(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "checked", "1", "on", "yes":
			return true
		}
		return false
	case float64:
		return v != 0
	case int:
		return v != 0
	default:
		return false
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006",
}

func parseTime(raw any) (time.Time, error) {
	if t, ok := raw.(time.Time); ok {
		return t.UTC(), nil
	}
	s := strings.TrimSpace(fmt.Sprint(raw))
	if f, ok := raw.(float64); ok {
		s = strconv.Itoa(int(f))
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, &domain.ValidationError{Field: KeyTime, Value: raw, Reason: "unrecognised date"}
}
