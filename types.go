package bolide

import (
	"time"

	"github.com/pcoutinho/bolide/internal/cache"
	"github.com/pcoutinho/bolide/internal/neo"
)

// Object is a tracked near-Earth object.
type Object struct {
	// ID is the feed identifier (SPK-ID for catalogued objects)
	ID string

	// Name is the display name, e.g. "99942 Apophis (2004 MN4)"
	Name string

	// Designation is the provisional or permanent designation
	Designation string

	// Magnitude is the absolute magnitude (H)
	Magnitude float64

	// DiameterMinKm and DiameterMaxKm bound the estimated diameter
	DiameterMinKm float64
	DiameterMaxKm float64

	// Hazardous marks objects flagged potentially hazardous
	Hazardous bool

	// Sentry marks objects on the Sentry impact-monitoring list
	Sentry bool

	// Risk summarizes the hazard markers: "low", "elevated" or "sentry"
	Risk string

	// Approaches lists the known close-approach events
	Approaches []Approach

	// UpdatedAt is when the feed last revised this object
	UpdatedAt time.Time
}

// MeanDiameterKm returns the midpoint of the estimated diameter range
func (o Object) MeanDiameterKm() float64 {
	return (o.DiameterMinKm + o.DiameterMaxKm) / 2
}

// NextApproach returns the next upcoming close approach, if any
func (o Object) NextApproach(now time.Time) (Approach, bool) {
	var next *Approach
	for i := range o.Approaches {
		if o.Approaches[i].Time.Before(now) {
			continue
		}
		if next == nil || o.Approaches[i].Time.Before(next.Time) {
			next = &o.Approaches[i]
		}
	}

	if next == nil {
		return Approach{}, false
	}
	return *next, true
}

// Approach is a single close-approach event.
type Approach struct {
	Time         time.Time
	VelocityKps  float64
	MissKm       float64
	MissLunar    float64
	OrbitingBody string
}

// Alert is a watch rule that matched an object during a refresh.
type Alert struct {
	Rule   string
	Object Object
}

// Metrics reports client state and cache performance.
type Metrics struct {
	// Storage metrics
	Storage StorageMetrics

	// LastRefresh is when the cache last completed a refresh
	LastRefresh time.Time

	// LastFeedTotal and LastFeedCached count the last refresh: objects
	// received versus objects that passed the filter
	LastFeedTotal  int
	LastFeedCached int

	// ConsecutiveFails counts refresh failures since the last success
	ConsecutiveFails int

	// CircuitOpen indicates the breaker is rejecting feed calls
	CircuitOpen bool

	// CircuitState is "closed", "open" or "half-open"
	CircuitState string

	// WatchRules lists the registered rule names
	WatchRules []string

	// ActiveAlerts counts matches from the most recent evaluation
	ActiveAlerts int
}

// StorageMetrics reports the memory store.
type StorageMetrics struct {
	Hits        uint64
	Misses      uint64
	KeysAdded   uint64
	KeysEvicted uint64
	HitRatio    float64
	Objects     int64
}

// Internal conversion helpers

func toPublicObject(o neo.Object) Object {
	approaches := make([]Approach, len(o.Approaches))
	for i, a := range o.Approaches {
		approaches[i] = Approach{
			Time:         a.Time,
			VelocityKps:  a.VelocityKps,
			MissKm:       a.MissKm,
			MissLunar:    a.MissLunar,
			OrbitingBody: a.OrbitingBody,
		}
	}

	return Object{
		ID:            o.ID,
		Name:          o.Name,
		Designation:   o.Designation,
		Magnitude:     o.Magnitude,
		DiameterMinKm: o.Diameter.MinKm,
		DiameterMaxKm: o.Diameter.MaxKm,
		Hazardous:     o.Hazardous,
		Sentry:        o.Sentry,
		Risk:          string(o.DetermineRisk()),
		Approaches:    approaches,
		UpdatedAt:     o.UpdatedAt,
	}
}

func toPublicObjects(objects []neo.Object) []Object {
	out := make([]Object, len(objects))
	for i, o := range objects {
		out[i] = toPublicObject(o)
	}
	return out
}

func toPublicMetrics(stats cache.Stats) Metrics {
	return Metrics{
		Storage: StorageMetrics{
			Hits:        stats.Storage.Hits,
			Misses:      stats.Storage.Misses,
			KeysAdded:   stats.Storage.KeysAdded,
			KeysEvicted: stats.Storage.KeysEvicted,
			HitRatio:    stats.Storage.HitRatio,
			Objects:     stats.Storage.Size,
		},
		LastRefresh:      stats.LastRefresh,
		LastFeedTotal:    stats.LastFeedTotal,
		LastFeedCached:   stats.LastFeedCached,
		ConsecutiveFails: stats.ConsecutiveFails,
		CircuitOpen:      stats.CircuitOpen,
		CircuitState:     stats.CircuitState,
		WatchRules:       stats.WatchRules,
		ActiveAlerts:     stats.ActiveAlerts,
	}
}
