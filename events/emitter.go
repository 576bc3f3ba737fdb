// Package events is a small synchronous pub/sub bus for ledger events.
package events

import (
	"sync"

	"github.com/decred/slog"
)

var log = slog.Disabled

// UseLogger sets the package logger.
func UseLogger(logger slog.Logger) {
	log = logger
}

// EventType labels what happened.
type EventType string

const (
	EventBlockCommit EventType = "block_commit"
	EventTxExecuted  EventType = "tx_executed"
	EventTxFailed    EventType = "tx_failed"

	EventGameCreated          EventType = "game_created"
	EventPlayerRegistered     EventType = "player_registered"
	EventGameStarted          EventType = "game_started"
	EventActionSubmitted      EventType = "action_submitted"
	EventMatchResolved        EventType = "match_resolved"
	EventStakeReclaimed       EventType = "stake_reclaimed"
	EventRoundAdvanced        EventType = "round_advanced"
	EventGameCompleted        EventType = "game_completed"
	EventParticipantFinalized EventType = "participant_finalized"

	EventGuessSubmitted  EventType = "guess_submitted"
	EventDivergenceRound EventType = "divergence_round_resolved"
)

// Event carries a typed payload emitted after a state change. Program
// events are published only once their transaction has committed.
type Event struct {
	Type        EventType      `json:"type"`
	TxID        string         `json:"tx_id"`
	BlockHeight int64          `json:"block_height"`
	Data        map[string]any `json:"data"`
}

// Handler is a callback invoked for matching events.
type Handler func(Event)

// Emitter is a simple pub/sub broker. Subscribe before Emit.
type Emitter struct {
	mu       sync.RWMutex
	handlers map[EventType][]Handler
}

// NewEmitter creates an Emitter with no subscribers.
func NewEmitter() *Emitter {
	return &Emitter{handlers: make(map[EventType][]Handler)}
}

// Subscribe registers h to be called whenever typ is emitted.
func (e *Emitter) Subscribe(typ EventType, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.handlers[typ] = append(e.handlers[typ], h)
}

// Emit delivers ev to all subscribers for ev.Type synchronously. A
// panicking subscriber is logged and skipped.
func (e *Emitter) Emit(ev Event) {
	e.mu.RLock()
	handlers := e.handlers[ev.Type]
	e.mu.RUnlock()
	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Errorf("handler panicked for %s: %v", ev.Type, r)
				}
			}()
			h(ev)
		}()
	}
}
