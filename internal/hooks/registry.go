// Package hooks implements the lifecycle webhook subsystem: resolving hook
// registrations from a hooks URI and delivering notification payloads at run
// boundaries.
//
// Hook configuration document:
//
//	{
//	    "run_started": [
//	        {"url": "http://localhost/new_run", "name": "firstHook"},
//	        ...
//	    ],
//	    ...
//	}
package hooks

import "fmt"

// Event is a run lifecycle event hooks can be registered against.
type Event string

const (
	EventRunStarted Event = "run_started"
	EventRunEnded   Event = "run_ended"
)

// Known reports whether e is a recognized lifecycle event. Unknown event keys
// in a configuration document are ignored, not errors.
func (e Event) Known() bool {
	return e == EventRunStarted || e == EventRunEnded
}

// Registration is one webhook bound to a lifecycle event.
type Registration struct {
	URL  string `json:"url" yaml:"url"`
	Name string `json:"name,omitempty" yaml:"name,omitempty"`
}

// Registry maps each lifecycle event to its registrations in delivery order.
// A registry handed to a dispatcher is treated as a read-only snapshot.
type Registry map[Event][]Registration

// Add appends a registration for event, defaulting the name to "<event>-hook"
// when none is given.
func (r Registry) Add(event Event, url, name string) {
	if name == "" {
		name = string(event) + "-hook"
	}
	r[event] = append(r[event], Registration{URL: url, Name: name})
}

// Merge appends every registration of other after the existing ones, so
// explicit registrations supplement URI-sourced hooks without replacing them.
func (r Registry) Merge(other Registry) {
	for event, regs := range other {
		r[event] = append(r[event], regs...)
	}
}

// Clone returns a deep copy. Dispatchers snapshot the registry at run start so
// later Add calls cannot affect runs in flight.
func (r Registry) Clone() Registry {
	out := make(Registry, len(r))
	for event, regs := range r {
		cp := make([]Registration, len(regs))
		copy(cp, regs)
		out[event] = cp
	}
	return out
}

func (r Registry) String() string {
	return fmt.Sprintf("hooks(run_started=%d, run_ended=%d)",
		len(r[EventRunStarted]), len(r[EventRunEnded]))
}
