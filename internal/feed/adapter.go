package feed

import (
	"github.com/pcoutinho/bolide/internal/neo"
)

// ToDomain converts feed API models to domain models

// ObjectToDomain converts a FeedObject to a neo.Object
func ObjectToDomain(o *FeedObject) neo.Object {
	return neo.Object{
		ID:          o.ID,
		Name:        o.Name,
		Designation: o.Designation,
		Magnitude:   o.Magnitude,
		Diameter: neo.Diameter{
			MinKm: o.Diameter.Min,
			MaxKm: o.Diameter.Max,
		},
		Hazardous:  o.Hazardous,
		Sentry:     o.Sentry,
		Approaches: ApproachesToDomain(o.Approaches),
		UpdatedAt:  o.UpdatedAt,
	}
}

// ObjectsToDomain converts multiple FeedObjects to neo.Objects
func ObjectsToDomain(objects []FeedObject) []neo.Object {
	result := make([]neo.Object, len(objects))
	for i, o := range objects {
		result[i] = ObjectToDomain(&o)
	}
	return result
}

// ApproachesToDomain converts FeedApproaches to neo.CloseApproaches
func ApproachesToDomain(approaches []FeedApproach) []neo.CloseApproach {
	result := make([]neo.CloseApproach, len(approaches))
	for i, a := range approaches {
		result[i] = ApproachToDomain(a)
	}
	return result
}

// ApproachToDomain converts a FeedApproach to a neo.CloseApproach
func ApproachToDomain(a FeedApproach) neo.CloseApproach {
	return neo.CloseApproach{
		Time:         a.Time,
		VelocityKps:  a.VelocityKps,
		MissKm:       a.MissKm,
		MissLunar:    a.MissLunar,
		OrbitingBody: a.OrbitingBody,
	}
}
