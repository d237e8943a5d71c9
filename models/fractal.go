package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// FractalStatus mirrors the fractal_status ENUM in the database.
type FractalStatus string

const (
	FractalStatusWaiting    FractalStatus = "waiting"
	FractalStatusInProgress FractalStatus = "in_progress"
	FractalStatusClosed     FractalStatus = "closed"
)

const (
	DefaultGroupSize               = 6
	DefaultProposalsPerUser        = 1
	DefaultRoundDuration           = 24 * time.Hour
	DefaultCarryOverProposals      = 2
	DefaultRepresentativesPerGroup = 1
)

// FractalSettings are stored as JSON next to the fractal row.
type FractalSettings struct {
	GroupSize               int      `json:"group_size"`
	ProposalsPerUser        int      `json:"proposals_per_user"`
	RoundDuration           Duration `json:"round_duration"`
	CarryOverProposals      int      `json:"carry_over_proposals"`
	RepresentativesPerGroup int      `json:"representatives_per_group"`
}

// WithDefaults fills zero values so that a fractal created with a partial
// settings map still behaves sanely.
func (s FractalSettings) WithDefaults() FractalSettings {
	if s.GroupSize <= 0 {
		s.GroupSize = DefaultGroupSize
	}
	if s.ProposalsPerUser <= 0 {
		s.ProposalsPerUser = DefaultProposalsPerUser
	}
	if s.RoundDuration <= 0 {
		s.RoundDuration = Duration(DefaultRoundDuration)
	}
	if s.CarryOverProposals <= 0 {
		s.CarryOverProposals = DefaultCarryOverProposals
	}
	if s.RepresentativesPerGroup <= 0 {
		s.RepresentativesPerGroup = DefaultRepresentativesPerGroup
	}
	if s.RepresentativesPerGroup > 3 {
		s.RepresentativesPerGroup = 3
	}
	return s
}

type Fractal struct {
	ID          int             `json:"id" db:"id"`
	Name        string          `json:"name" db:"name"`
	Description *string         `json:"description,omitempty" db:"description"`
	StartTime   time.Time       `json:"start_time" db:"start_time"`
	Status      FractalStatus   `json:"status" db:"status"`
	Settings    FractalSettings `json:"settings" db:"settings"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty" db:"started_at"`
	ClosedAt    *time.Time      `json:"closed_at,omitempty" db:"closed_at"`
}

// Duration marshals as a Go duration string ("24h", "90m") in settings JSON.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		// bare numbers are seconds
		*d = Duration(time.Duration(v) * time.Second)
		return nil
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
		return nil
	case nil:
		*d = 0
		return nil
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
}

// Value stores settings as JSONB.
func (s FractalSettings) Value() (driver.Value, error) {
	return json.Marshal(s)
}

func (s *FractalSettings) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*s = FractalSettings{}
		return nil
	case []byte:
		return json.Unmarshal(v, s)
	case string:
		return json.Unmarshal([]byte(v), s)
	default:
		return errors.New("fractal settings: unsupported source type")
	}
}
