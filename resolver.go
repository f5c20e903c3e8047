package bolide

import "net/url"

// Environment classifies where an origin points
type Environment int

const (
	EnvUnknown Environment = iota
	EnvDevelopment
	EnvProduction
)

func (e Environment) String() string {
	switch e {
	case EnvDevelopment:
		return "development"
	case EnvProduction:
		return "production"
	default:
		return "unknown"
	}
}

// EnvClassifier maps an origin to an environment. It is an injected
// policy: no origin is ever classified unless the caller installs one.
type EnvClassifier func(origin string) Environment

// ResolveBaseURL picks the base address for the feed service. A non-empty
// override wins and is returned verbatim, with no normalization and no
// validation; otherwise the origin is used as-is. Empty means absent,
// nothing more, so a whitespace-only override still wins.
func ResolveBaseURL(override, origin string) string {
	if override != "" {
		return override
	}
	return origin
}

// Resolver resolves the base address with an optional environment
// substitution for development origins.
type Resolver struct {
	// Override wins over everything when non-empty
	Override string

	// DevFallback replaces origins the Classifier marks as development
	DevFallback string

	// Classifier decides the environment; nil disables substitution
	Classifier EnvClassifier
}

// BaseURL resolves the address for the given origin. Resolution is pure:
// no I/O, no globals, recomputed from the inputs on every call.
func (r Resolver) BaseURL(origin string) string {
	if r.Override != "" {
		return r.Override
	}

	if r.Classifier != nil && r.DevFallback != "" && r.Classifier(origin) == EnvDevelopment {
		return r.DevFallback
	}

	return origin
}

// LoopbackClassifier marks loopback origins as development and everything
// else as unknown. It is a convenience for local setups and is never
// installed by default; pass it to WithEnvClassifier to opt in.
func LoopbackClassifier(origin string) Environment {
	u, err := url.Parse(origin)
	if err != nil {
		return EnvUnknown
	}

	switch u.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return EnvDevelopment
	}

	return EnvUnknown
}
