// Package watch evaluates user-defined alert rules against tracked objects.
// Rules are expr expressions compiled once and run after every refresh.
package watch

import (
	"fmt"
	"sync"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/rs/zerolog"

	"github.com/pcoutinho/bolide/internal/neo"
)

// Match ties a rule to an object that satisfied it
type Match struct {
	Rule   string
	Object neo.Object
}

// Engine compiles and runs watch rules
type Engine struct {
	mu       sync.RWMutex
	names    []string
	programs map[string]*vm.Program

	logger zerolog.Logger
}

// New creates an empty rule engine
func New(logger zerolog.Logger) *Engine {
	return &Engine{
		programs: make(map[string]*vm.Program),
		logger:   logger.With().Str("component", "watch").Logger(),
	}
}

// AddRule compiles and registers a rule. Compilation is eager so a broken
// expression is rejected here, not during a refresh.
func (e *Engine) AddRule(name, expression string) error {
	if name == "" {
		return fmt.Errorf("rule name is required")
	}
	if expression == "" {
		return fmt.Errorf("rule %q: expression is required", name)
	}

	program, err := expr.Compile(expression,
		expr.Env(compileEnv()),
		expr.AsBool(),
	)
	if err != nil {
		return fmt.Errorf("rule %q: %w", name, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.programs[name]; exists {
		return fmt.Errorf("rule %q already registered", name)
	}

	e.programs[name] = program
	e.names = append(e.names, name)

	return nil
}

// RemoveRule unregisters a rule
func (e *Engine) RemoveRule(name string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, exists := e.programs[name]; !exists {
		return false
	}

	delete(e.programs, name)
	for i, n := range e.names {
		if n == name {
			e.names = append(e.names[:i], e.names[i+1:]...)
			break
		}
	}

	return true
}

// Rules returns registered rule names in registration order
func (e *Engine) Rules() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, len(e.names))
	copy(names, e.names)
	return names
}

// Len returns the number of registered rules
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

// Evaluate runs every rule against every object. A rule that fails at
// runtime is logged and skipped; one bad rule must not block the others.
func (e *Engine) Evaluate(objects []neo.Object, now time.Time) []Match {
	e.mu.RLock()
	names := make([]string, len(e.names))
	copy(names, e.names)
	programs := make(map[string]*vm.Program, len(e.programs))
	for name, program := range e.programs {
		programs[name] = program
	}
	e.mu.RUnlock()

	var matches []Match

	for _, name := range names {
		program := programs[name]

		for _, object := range objects {
			result, err := expr.Run(program, ruleEnv(object, now))
			if err != nil {
				e.logger.Warn().
					Err(err).
					Str("rule", name).
					Str("object_id", object.ID).
					Msg("watch rule evaluation failed")
				continue
			}

			matched, ok := result.(bool)
			if !ok || !matched {
				continue
			}

			matches = append(matches, Match{Rule: name, Object: object})
		}
	}

	return matches
}

// compileEnv returns the type skeleton rules are checked against
func compileEnv() map[string]interface{} {
	return map[string]interface{}{
		"id":                   "",
		"name":                 "",
		"designation":          "",
		"hazardous":            false,
		"sentry":               false,
		"magnitude":            float64(0),
		"diameter_min_km":      float64(0),
		"diameter_max_km":      float64(0),
		"diameter_mean_km":     float64(0),
		"miss_distance_km":     float64(0),
		"miss_distance_lunar":  float64(0),
		"velocity_kps":         float64(0),
		"orbiting_body":        "",
		"approach_within_days": func(days int) bool { return false },
	}
}

// ruleEnv builds the evaluation environment for one object. The approach
// fields come from the next upcoming pass; without one they stay zero.
func ruleEnv(object neo.Object, now time.Time) map[string]interface{} {
	env := map[string]interface{}{
		"id":                  object.ID,
		"name":                object.Name,
		"designation":         object.Designation,
		"hazardous":           object.Hazardous,
		"sentry":              object.Sentry,
		"magnitude":           object.Magnitude,
		"diameter_min_km":     object.Diameter.MinKm,
		"diameter_max_km":     object.Diameter.MaxKm,
		"diameter_mean_km":    object.Diameter.MeanKm(),
		"miss_distance_km":    float64(0),
		"miss_distance_lunar": float64(0),
		"velocity_kps":        float64(0),
		"orbiting_body":       "",
		"approach_within_days": func(days int) bool {
			return object.ApproachWithin(now, time.Duration(days)*24*time.Hour)
		},
	}

	if next, ok := object.NextApproach(now); ok {
		env["miss_distance_km"] = next.MissKm
		env["miss_distance_lunar"] = next.MissLunar
		env["velocity_kps"] = next.VelocityKps
		env["orbiting_body"] = next.OrbitingBody
	}

	return env
}
