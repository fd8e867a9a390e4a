package race

import "fmt"

// SegmentKind classifies a track segment.
type SegmentKind string

const (
	SegmentStraight SegmentKind = "straight"
	SegmentCorner   SegmentKind = "corner"
)

// Segment covers [StartFrac, EndFrac) of a single lap.
type Segment struct {
	StartFrac float64     `json:"start_frac"`
	EndFrac   float64     `json:"end_frac"`
	Kind      SegmentKind `json:"kind"`
}

// SlopePoint gives the grade at a lap fraction; grades between points are
// taken from the nearest preceding point.
type SlopePoint struct {
	Frac  float64 `json:"frac"`
	Grade float64 `json:"grade"`
}

// Track is an immutable circular course profile selected by key.
type Track struct {
	Key          string       `json:"key"`
	LapLength    float64      `json:"lap_length"`
	Laps         int          `json:"laps"`
	Segments     []Segment    `json:"segments"`
	Slope        []SlopePoint `json:"slope"`
	WindVariance float64      `json:"wind_variance"`
	CornerRadius float64      `json:"corner_radius"`
}

// TotalLength is the full race distance.
func (t Track) TotalLength() float64 {
	laps := t.Laps
	if laps < 1 {
		laps = 1
	}
	return t.LapLength * float64(laps)
}

// inCorner reports whether the lap fraction falls inside a corner segment.
func (t Track) inCorner(lapFrac float64) bool {
	for _, s := range t.Segments {
		if s.Kind == SegmentCorner && lapFrac >= s.StartFrac && lapFrac < s.EndFrac {
			return true
		}
	}
	return false
}

// gradeAt returns the slope grade at the given lap fraction.
func (t Track) gradeAt(lapFrac float64) float64 {
	grade := 0.0
	for _, p := range t.Slope {
		if lapFrac >= p.Frac {
			grade = p.Grade
		}
	}
	return grade
}

var tracks = map[string]Track{
	"oval": {
		Key:       "oval",
		LapLength: 1000,
		Laps:      2,
		Segments: []Segment{
			{StartFrac: 0.0, EndFrac: 0.42, Kind: SegmentStraight},
			{StartFrac: 0.42, EndFrac: 0.5, Kind: SegmentCorner},
			{StartFrac: 0.5, EndFrac: 0.92, Kind: SegmentStraight},
			{StartFrac: 0.92, EndFrac: 1.0, Kind: SegmentCorner},
		},
		Slope: []SlopePoint{
			{Frac: 0.0, Grade: 0},
			{Frac: 0.5, Grade: 0.01},
			{Frac: 0.75, Grade: -0.01},
		},
		WindVariance: 0.15,
		CornerRadius: 60,
	},
	"ridge": {
		Key:       "ridge",
		LapLength: 1400,
		Laps:      1,
		Segments: []Segment{
			{StartFrac: 0.0, EndFrac: 0.3, Kind: SegmentStraight},
			{StartFrac: 0.3, EndFrac: 0.45, Kind: SegmentCorner},
			{StartFrac: 0.45, EndFrac: 0.6, Kind: SegmentStraight},
			{StartFrac: 0.6, EndFrac: 0.7, Kind: SegmentCorner},
			{StartFrac: 0.7, EndFrac: 0.95, Kind: SegmentStraight},
			{StartFrac: 0.95, EndFrac: 1.0, Kind: SegmentCorner},
		},
		Slope: []SlopePoint{
			{Frac: 0.0, Grade: 0.015},
			{Frac: 0.45, Grade: -0.02},
			{Frac: 0.7, Grade: 0.01},
		},
		WindVariance: 0.25,
		CornerRadius: 45,
	},
}

// LookupTrack resolves a track key. Unknown keys are an input validation
// error, reported before any simulation runs.
func LookupTrack(key string) (Track, error) {
	t, ok := tracks[key]
	if !ok {
		return Track{}, fmt.Errorf("unknown track %q", key)
	}
	return t, nil
}

// TrackKeys lists the available track keys.
func TrackKeys() []string {
	keys := make([]string, 0, len(tracks))
	for k := range tracks {
		keys = append(keys, k)
	}
	return keys
}
