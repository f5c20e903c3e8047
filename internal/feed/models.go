package feed

import (
	"time"
)

// =======================
// OBJECT MODELS (API)
// =======================

// FeedObject represents the object model returned by the feed API
type FeedObject struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Designation string         `json:"designation"`
	Magnitude   float64        `json:"absolute_magnitude"`
	Diameter    FeedDiameter   `json:"diameter_km"`
	Hazardous   bool           `json:"hazardous"`
	Sentry      bool           `json:"sentry"`
	Approaches  []FeedApproach `json:"close_approaches"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// =======================
// DIAMETER
// =======================

type FeedDiameter struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// =======================
// CLOSE APPROACHES
// =======================

type FeedApproach struct {
	Time         time.Time `json:"time"`
	VelocityKps  float64   `json:"velocity_kps"`
	MissKm       float64   `json:"miss_distance_km"`
	MissLunar    float64   `json:"miss_distance_lunar"`
	OrbitingBody string    `json:"orbiting_body"`
}

// =======================
// FEED RESPONSE
// =======================

// FeedResponse is the collection payload returned by the listing endpoint
type FeedResponse struct {
	Count   int          `json:"count"`
	Objects []FeedObject `json:"objects"`
}

// -----------------------------------------------------------------------------
// Health
// -----------------------------------------------------------------------------

// HealthResponse represents the feed health-check API response
type HealthResponse struct {
	Status string `json:"status"`
}
