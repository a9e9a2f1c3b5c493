package hooking

import (
	"context"
	"fmt"

	"github.com/conneroisu/agentwire/pkg/agenterrs"
)

// registered is one matcher under one event, in registration order.
type registered struct {
	event       Event
	matcher     Matcher
	callbackIDs []string
}

// Registry holds hook registrations for one session. Populate it
// before the session connects; it is read-only afterwards, which makes
// concurrent lookups from callback goroutines safe.
type Registry struct {
	entries []registered
	byID    map[string]Callback
	nextID  int
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]Callback)}
}

// Add registers callbacks for an event under a matcher pattern. Each
// callback is assigned a stable ID of the form "hook_<n>" used in the
// initialize handshake.
func (r *Registry) Add(event Event, pattern string, callbacks ...Callback) {
	ids := make([]string, 0, len(callbacks))
	for _, cb := range callbacks {
		id := fmt.Sprintf("hook_%d", r.nextID)
		r.nextID++
		r.byID[id] = cb
		ids = append(ids, id)
	}
	r.entries = append(r.entries, registered{
		event:       event,
		matcher:     Matcher{Pattern: pattern, Callbacks: callbacks},
		callbackIDs: ids,
	})
}

// Empty reports whether no hooks are registered.
func (r *Registry) Empty() bool {
	return r == nil || len(r.entries) == 0
}

// MatcherConfig is one matcher entry in the initialize handshake.
type MatcherConfig struct {
	Matcher         string   `json:"matcher,omitempty"`
	HookCallbackIDs []string `json:"hookCallbackIds"`
}

// InitConfig renders the registry as the hooks field of the
// initialize request: event name to its matcher configs, in
// registration order. Returns nil when no hooks are registered.
func (r *Registry) InitConfig() map[string][]MatcherConfig {
	if r.Empty() {
		return nil
	}
	cfg := make(map[string][]MatcherConfig)
	for _, e := range r.entries {
		cfg[string(e.event)] = append(cfg[string(e.event)], MatcherConfig{
			Matcher:         e.matcher.Pattern,
			HookCallbackIDs: e.callbackIDs,
		})
	}
	return cfg
}

// ByID returns the callback registered under id.
func (r *Registry) ByID(id string) (Callback, bool) {
	if r == nil {
		return nil, false
	}
	cb, ok := r.byID[id]
	return cb, ok
}

// Run invokes every callback registered for event whose matcher
// applies to input, in registration order. Outputs merge into one map,
// later keys overwriting earlier ones. A callback output carrying
// "decision": "block" short-circuits: it is returned immediately and
// no further callbacks run. A callback error aborts the run.
func (r *Registry) Run(ctx context.Context, event Event, input map[string]any, toolUseID string) (map[string]any, error) {
	merged := make(map[string]any)
	if r == nil {
		return merged, nil
	}

	for _, e := range r.entries {
		if e.event != event || !e.matcher.Matches(input) {
			continue
		}
		for _, cb := range e.matcher.Callbacks {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			out, err := cb(ctx, input, toolUseID)
			if err != nil {
				return nil, agenterrs.NewCallbackError(
					agenterrs.ErrCodeHookFailed,
					string(event),
					fmt.Sprintf("hook for %s failed", event),
					err,
				)
			}
			if out == nil {
				continue
			}
			if decision, ok := out["decision"].(string); ok && decision == "block" {
				return out, nil
			}
			for k, v := range out {
				merged[k] = v
			}
		}
	}

	return merged, nil
}
