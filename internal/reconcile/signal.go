package reconcile

import (
	"encoding/json"
	"fmt"
)

// Desired states a lifecycle signal can request.
const (
	StateEnabled  = "enabled"
	StateDisabled = "disabled"
)

// Envelope is the JSON body delivered to the lifecycle webhook: a batch of
// notifications plus the bearer tokens vouching for the whole delivery.
type Envelope struct {
	Notifications    []Signal `json:"notifications"`
	ValidationTokens []string `json:"validationTokens"`
}

// Signal describes the desired state for one connection. The ticket is an
// opaque value minted by the admin surface; it is forwarded verbatim when a
// connection is created on the signal's behalf.
type Signal struct {
	ResourceID   string `json:"resourceId"`
	DesiredState string `json:"desiredState"`
	Ticket       string `json:"ticket,omitempty"`
}

// parseEnvelope decodes and validates a raw webhook body. Anything that
// fails here is dropped before a single remote call is made.
func parseEnvelope(raw []byte) (*Envelope, error) {
	var envelope Envelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if len(envelope.Notifications) == 0 {
		return nil, fmt.Errorf("payload carries no notifications")
	}
	if len(envelope.ValidationTokens) == 0 {
		return nil, fmt.Errorf("payload carries no validation tokens")
	}
	for i, signal := range envelope.Notifications {
		if signal.ResourceID == "" {
			return nil, fmt.Errorf("notification %d has no resource id", i)
		}
		switch signal.DesiredState {
		case StateEnabled, StateDisabled:
		default:
			return nil, fmt.Errorf("notification %d has unknown desired state %q", i, signal.DesiredState)
		}
	}
	return &envelope, nil
}
