package pipeline

import "time"

// Event types broadcast to observers (dashboards, websocket clients).
const (
	EventSpeaking    = "speaking"
	EventChunkReady  = "chunk_ready"
	EventInterrupted = "interrupted"
	EventCompleted   = "completed"
	EventFallback    = "fallback"
	EventSessionEnd  = "session_end"
)

// Event is one pipeline state change.
type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	RunID     string    `json:"run_id,omitempty"`
	Ordinal   int       `json:"ordinal,omitempty"`
	Detail    string    `json:"detail,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher receives pipeline events. Implementations must not block;
// the coordinator publishes from its hot path.
type Publisher interface {
	Publish(event Event)
}

// publish sends an event if a publisher is configured.
func (c *Coordinator) publish(eventType, sessionID, runID string, ordinal int, detail string) {
	if c.cfg.Events == nil {
		return
	}
	c.cfg.Events.Publish(Event{
		Type:      eventType,
		SessionID: sessionID,
		RunID:     runID,
		Ordinal:   ordinal,
		Detail:    detail,
		At:        time.Now(),
	})
}
