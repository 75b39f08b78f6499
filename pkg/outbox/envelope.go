package outbox

import (
	"encoding/json"
	"time"
)

// PayloadEnvelope is the versioned wrapper stored in the outbox payload column
// and published verbatim to the payments topic.
type PayloadEnvelope struct {
	Version    int             `json:"version"`
	EventID    string          `json:"event_id"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}
