package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var ErrInvalidQuality = errors.New("invalid quality level")

// Quality controls downstream capture and encoding, 1 (lowest) to 4 (best).
type Quality int

const (
	QualityLow Quality = iota + 1
	QualityMedium
	QualityHigh
	QualityBest

	DefaultQuality = QualityBest
)

// QualityPreset is what a capturer does for a given level.
type QualityPreset struct {
	Name        string
	JPEGQuality int
	Scale       float64
}

var QualityPresets = map[Quality]QualityPreset{
	QualityLow:    {Name: "low", JPEGQuality: 10, Scale: 0.25},
	QualityMedium: {Name: "medium", JPEGQuality: 30, Scale: 0.5},
	QualityHigh:   {Name: "high", JPEGQuality: 50, Scale: 0.75},
	QualityBest:   {Name: "best", JPEGQuality: 70, Scale: 1.0},
}

func (q Quality) Valid() bool {
	return q >= QualityLow && q <= QualityBest
}

// Preset returns the preset for q, or the default one when q is out of range.
func (q Quality) Preset() QualityPreset {
	if p, ok := QualityPresets[q]; ok {
		return p
	}
	return QualityPresets[DefaultQuality]
}

// ParseQuality accepts either a level number or a preset name.
func ParseQuality(s string) (Quality, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if n, err := strconv.Atoi(s); err == nil {
		q := Quality(n)
		if !q.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrInvalidQuality, n)
		}
		return q, nil
	}
	for q, p := range QualityPresets {
		if p.Name == s {
			return q, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidQuality, s)
}

// UnmarshalJSON takes a level number or a quoted preset name. Numbers are
// not range checked here; callers use Valid.
func (q *Quality) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var name string
		if err := json.Unmarshal(b, &name); err != nil {
			return err
		}
		parsed, err := ParseQuality(name)
		if err != nil {
			return err
		}
		*q = parsed
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*q = Quality(n)
	return nil
}
