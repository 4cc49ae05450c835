// Package consume reads notification messages from the queue, dispatches
// them to the sync processor, and owns the archive-vs-rethrow decision for
// failed runs.
package consume

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/edgelake/sheetsink/internal/sync"
)

// Notification is one change entry inside an envelope.
type Notification struct {
	SubscriptionID string `json:"subscriptionId"`
	Resource       string `json:"resource"`
	ChangeType     string `json:"changeType"`
	ClientState    string `json:"clientState"`
}

// Envelope is the Source's change-notification payload: an object whose
// "value" field holds the change entries. An empty array is the handshake
// shape and carries no work.
type Envelope struct {
	Value []Notification `json:"value"`
}

// ContinuationPayload is a self-enqueued message carrying the unprocessed
// tail of a batch plus the pending cursor.
type ContinuationPayload sync.Continuation

// Payload is either an *Envelope or a *ContinuationPayload.
type Payload interface {
	payloadKind() string
}

func (*Envelope) payloadKind() string            { return "envelope" }
func (*ContinuationPayload) payloadKind() string { return "continuation" }

// ErrUnknownPayload reports a message matching neither recognized shape.
// Such messages are logged and dropped, never retried.
type ErrUnknownPayload struct {
	Reason string
}

func (e *ErrUnknownPayload) Error() string {
	return fmt.Sprintf("unrecognized payload: %s", e.Reason)
}

// ParsePayload decides which of the two recognized shapes the raw bytes
// carry. An object with a "value" field is an envelope; one with "ItemIds"
// or "DeltaLink" is a continuation.
func ParsePayload(data []byte) (Payload, error) {
	var probe struct {
		Value     json.RawMessage `json:"value"`
		ItemIDs   json.RawMessage `json:"ItemIds"`
		DeltaLink string          `json:"DeltaLink"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, &ErrUnknownPayload{Reason: err.Error()}
	}

	switch {
	case probe.Value != nil:
		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return nil, &ErrUnknownPayload{Reason: err.Error()}
		}
		return &env, nil
	case probe.ItemIDs != nil || probe.DeltaLink != "":
		var cont ContinuationPayload
		if err := json.Unmarshal(data, &cont); err != nil {
			return nil, &ErrUnknownPayload{Reason: err.Error()}
		}
		return &cont, nil
	default:
		return nil, &ErrUnknownPayload{Reason: "neither envelope nor continuation shape"}
	}
}

var resourcePattern = regexp.MustCompile(`^sites/([^/]+)/lists/([^/]+)$`)

// Actionable counts the entries that target the configured (site, list)
// pair with changeType "updated" and, when clientState is configured, the
// matching state token. Entries for other resources are ignored, not
// errors: one topic can fan out to several consumers.
func (e *Envelope) Actionable(siteID, listID, clientState string) int {
	n := 0
	for _, entry := range e.Value {
		m := resourcePattern.FindStringSubmatch(entry.Resource)
		if m == nil {
			continue
		}
		if !strings.EqualFold(m[1], siteID) || !strings.EqualFold(m[2], listID) {
			continue
		}
		if !strings.EqualFold(entry.ChangeType, "updated") {
			continue
		}
		if clientState != "" && entry.ClientState != clientState {
			continue
		}
		n++
	}
	return n
}
