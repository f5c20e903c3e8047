package neo

import (
	"fmt"
	"time"
)

// Object represents a near-earth object tracked by the feed
type Object struct {
	ID          string
	Name        string
	Designation string
	Magnitude   float64 // absolute magnitude (H)
	Diameter    Diameter
	Hazardous   bool
	Sentry      bool
	Approaches  []CloseApproach
	UpdatedAt   time.Time
}

// Diameter is the estimated diameter range in kilometers
type Diameter struct {
	MinKm float64
	MaxKm float64
}

// MeanKm returns the midpoint of the estimated diameter range
func (d Diameter) MeanKm() float64 {
	return (d.MinKm + d.MaxKm) / 2
}

// CloseApproach represents a single close-approach event
type CloseApproach struct {
	Time         time.Time
	VelocityKps  float64 // relative velocity, km/s
	MissKm       float64 // miss distance, kilometers
	MissLunar    float64 // miss distance, lunar distances
	OrbitingBody string
}

// RiskLevel classifies how much attention an object deserves
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"      // No hazard markers
	RiskElevated RiskLevel = "elevated" // Flagged potentially hazardous
	RiskSentry   RiskLevel = "sentry"   // On the Sentry impact-monitoring list
)

// Validate validates the object data
func (o *Object) Validate() error {
	if o.ID == "" {
		return NewValidationError("object id cannot be empty")
	}

	if o.Name == "" {
		return NewValidationError("object name cannot be empty")
	}

	if o.Diameter.MinKm < 0 || o.Diameter.MaxKm < 0 {
		return NewValidationError("diameter cannot be negative")
	}

	if o.Diameter.MinKm > o.Diameter.MaxKm {
		return NewValidationError(
			fmt.Sprintf("diameter min %.4f km exceeds max %.4f km", o.Diameter.MinKm, o.Diameter.MaxKm),
		)
	}

	// Objetos sem aproximações são válidos
	if len(o.Approaches) == 0 {
		return nil
	}

	for i, approach := range o.Approaches {
		if err := approach.Validate(); err != nil {
			return fmt.Errorf("approach %d: %w", i, err)
		}
	}

	return nil
}

// Validate validates a single close-approach record
func (a *CloseApproach) Validate() error {
	if a.Time.IsZero() {
		return NewValidationError("approach time cannot be zero")
	}

	if a.VelocityKps < 0 {
		return NewValidationError("approach velocity cannot be negative")
	}

	if a.MissKm < 0 || a.MissLunar < 0 {
		return NewValidationError("miss distance cannot be negative")
	}

	return nil
}

// DetermineRisk classifies the object by its hazard markers
func (o *Object) DetermineRisk() RiskLevel {
	if o.Sentry {
		return RiskSentry // Sentry listing outranks everything
	}

	if o.Hazardous {
		return RiskElevated
	}

	return RiskLow
}

// ClosestApproach returns the approach with the smallest miss distance
func (o *Object) ClosestApproach() (*CloseApproach, bool) {
	if len(o.Approaches) == 0 {
		return nil, false
	}

	closest := &o.Approaches[0]
	for i := range o.Approaches {
		if o.Approaches[i].MissKm < closest.MissKm {
			closest = &o.Approaches[i]
		}
	}

	return closest, true
}

// NextApproach returns the earliest approach at or after now
func (o *Object) NextApproach(now time.Time) (*CloseApproach, bool) {
	var next *CloseApproach
	for i := range o.Approaches {
		if o.Approaches[i].Time.Before(now) {
			continue
		}
		if next == nil || o.Approaches[i].Time.Before(next.Time) {
			next = &o.Approaches[i]
		}
	}

	if next == nil {
		return nil, false
	}
	return next, true
}

// ApproachWithin reports whether any approach falls inside the window starting at now
func (o *Object) ApproachWithin(now time.Time, window time.Duration) bool {
	end := now.Add(window)
	for _, approach := range o.Approaches {
		if !approach.Time.Before(now) && !approach.Time.After(end) {
			return true
		}
	}
	return false
}

// SortedApproaches returns approaches sorted by time
func (o *Object) SortedApproaches() []CloseApproach {
	approaches := make([]CloseApproach, len(o.Approaches))
	copy(approaches, o.Approaches)

	// Bubble sort by time (approach lists are short, simple is fine)
	for i := 0; i < len(approaches); i++ {
		for j := i + 1; j < len(approaches); j++ {
			if approaches[i].Time.After(approaches[j].Time) {
				approaches[i], approaches[j] = approaches[j], approaches[i]
			}
		}
	}

	return approaches
}
