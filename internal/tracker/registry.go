package tracker

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/claude/reptrack/internal/pose"
)

// Info describes an exercise in the public catalog.
type Info struct {
	Name          string   `json:"name"`
	DisplayName   string   `json:"display_name"`
	Description   string   `json:"description"`
	TargetMuscles []string `json:"target_muscles"`
	TrackedAngle  string   `json:"tracked_angle"`
}

// Entry is one registered exercise: its catalog info, the joints whose
// angles feed the tracker, and the tracker profile.
type Entry struct {
	Kind    string
	Info    Info
	Joints  []pose.Joint
	Profile Profile
}

// UnknownExerciseError is returned by Create for an unregistered kind.
type UnknownExerciseError struct {
	Kind      string
	Available []string
}

func (e *UnknownExerciseError) Error() string {
	return fmt.Sprintf("Unknown exercise: %s. Available: [%s]", e.Kind, strings.Join(e.Available, ", "))
}

// Registry maps exercise kinds to tracker configurations. It is immutable
// after construction and safe to share between sessions.
type Registry struct {
	entries []Entry
	index   map[string]int
	log     *slog.Logger
}

// NewRegistry builds a registry from entries, keeping their order.
func NewRegistry(log *slog.Logger, entries ...Entry) (*Registry, error) {
	r := &Registry{
		entries: make([]Entry, 0, len(entries)),
		index:   make(map[string]int, len(entries)),
		log:     log,
	}
	for _, e := range entries {
		if e.Kind == "" {
			return nil, fmt.Errorf("registry: entry with empty kind")
		}
		if e.Profile == nil {
			return nil, fmt.Errorf("registry: %s has no profile", e.Kind)
		}
		if _, dup := r.index[e.Kind]; dup {
			return nil, fmt.Errorf("registry: duplicate exercise %s", e.Kind)
		}
		r.index[e.Kind] = len(r.entries)
		r.entries = append(r.entries, e)
	}
	return r, nil
}

// NewDefaultRegistry returns a registry holding DefaultEntries.
func NewDefaultRegistry(log *slog.Logger) *Registry {
	r, err := NewRegistry(log, DefaultEntries()...)
	if err != nil {
		panic(err) // DefaultEntries is static
	}
	return r
}

// Lookup returns the entry registered for kind.
func (r *Registry) Lookup(kind string) (Entry, bool) {
	i, ok := r.index[kind]
	if !ok {
		return Entry{}, false
	}
	return r.entries[i], true
}

// Create returns a fresh tracker for kind, or *UnknownExerciseError.
func (r *Registry) Create(kind string) (*Tracker, error) {
	e, ok := r.Lookup(kind)
	if !ok {
		return nil, &UnknownExerciseError{Kind: kind, Available: r.Kinds()}
	}
	return New(e.Kind, e.Profile, r.log), nil
}

// Kinds lists the registered exercise kinds in registration order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, len(r.entries))
	for i, e := range r.entries {
		kinds[i] = e.Kind
	}
	return kinds
}

// Catalog lists the catalog info of every registered exercise.
func (r *Registry) Catalog() []Info {
	infos := make([]Info, len(r.entries))
	for i, e := range r.entries {
		infos[i] = e.Info
	}
	return infos
}
