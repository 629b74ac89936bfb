package registry

import (
	"log/slog"
	"maps"
	"sort"
	"sync"
	"time"

	discoverymodels "lanbeacon/internal/discovery_manager/models"

	"github.com/benbjohnson/clock"
)

// Dispatcher receives the events produced by registry transitions.
type Dispatcher interface {
	Dispatch(discoverymodels.Event)
}

// Registry tracks live discoverables by session id.
//
// ABSENT --packet--> PRESENT (FOUND)
// PRESENT --packet, same payload--> PRESENT (no event)
// PRESENT --packet, new payload--> PRESENT (CHANGED)
// PRESENT --silence > window--> ABSENT (LOST)
//
// Events are dispatched while the lock is held, so the dispatcher sees the
// transitions of a session in the order they happened.
type Registry struct {
	mu         sync.Mutex
	entries    map[string]*discoverymodels.Discoverable
	cfg        discoverymodels.Configuration
	clock      clock.Clock
	dispatcher Dispatcher
	log        *slog.Logger
}

func New(cfg discoverymodels.Configuration, d Dispatcher, clk clock.Clock, log *slog.Logger) *Registry {
	if clk == nil {
		clk = clock.New()
	}
	return &Registry{
		entries:    make(map[string]*discoverymodels.Discoverable),
		cfg:        cfg,
		clock:      clk,
		dispatcher: d,
		log:        log.With(slog.String("component", "registry")),
	}
}

// Update records a heartbeat from sessionID. payload must not contain the
// reserved keys; the registry keeps its own copy.
func (r *Registry) Update(sessionID string, payload map[string]string, period time.Duration, source string) {
	const op = "registry.Update"

	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, known := r.entries[sessionID]
	if !known {
		entry = &discoverymodels.Discoverable{
			SessionID:      sessionID,
			Payload:        maps.Clone(payload),
			Source:         source,
			FirstSeen:      now,
			LastSeen:       now,
			DeclaredPeriod: period,
		}
		if entry.Payload == nil {
			entry.Payload = map[string]string{}
		}
		r.entries[sessionID] = entry

		r.log.Info("discoverable found",
			slog.String("op", op),
			slog.String("session_id", sessionID),
			slog.String("source", source),
		)
		r.dispatcher.Dispatch(discoverymodels.NewEvent(discoverymodels.EventFound, *entry, now))
		return
	}

	entry.LastSeen = now
	entry.DeclaredPeriod = period
	entry.Source = source

	if discoverymodels.PayloadEqual(entry.Payload, payload) {
		return
	}

	entry.Payload = maps.Clone(payload)
	if entry.Payload == nil {
		entry.Payload = map[string]string{}
	}

	r.log.Info("discoverable changed",
		slog.String("op", op),
		slog.String("session_id", sessionID),
	)
	r.dispatcher.Dispatch(discoverymodels.NewEvent(discoverymodels.EventChanged, *entry, now))
}

// EvictExpired removes every session silent for longer than its window and
// returns how many were removed.
func (r *Registry) EvictExpired() int {
	const op = "registry.EvictExpired"

	now := r.clock.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	// детерминированный порядок LOST при одновременном истечении
	expired := make([]string, 0)
	for id, entry := range r.entries {
		if now.Sub(entry.LastSeen) > r.cfg.Window(entry.DeclaredPeriod) {
			expired = append(expired, id)
		}
	}
	sort.Strings(expired)

	for _, id := range expired {
		entry := r.entries[id]
		delete(r.entries, id)

		r.log.Info("discoverable lost",
			slog.String("op", op),
			slog.String("session_id", id),
			slog.Duration("silence", now.Sub(entry.LastSeen)),
		)
		r.dispatcher.Dispatch(discoverymodels.NewEvent(discoverymodels.EventLost, *entry, now))
	}

	return len(expired)
}

// Get returns a copy of the tracked entry.
func (r *Registry) Get(sessionID string) (discoverymodels.Discoverable, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[sessionID]
	if !ok {
		return discoverymodels.Discoverable{}, false
	}
	return entry.Clone(), true
}

// Snapshot returns copies of all tracked entries ordered by session id.
func (r *Registry) Snapshot() []discoverymodels.Discoverable {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]discoverymodels.Discoverable, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].SessionID < out[j].SessionID
	})
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
