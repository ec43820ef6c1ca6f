// Package message defines the wire document carried by every worker-stream
// record. The JSON shape is an external contract shared with the gateway,
// the workers, and any out-of-band tooling reading the streams.
package message

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type discriminates the kinds of events a stream record can carry.
type Type string

const (
	// TypeMessage is a published chat message. Records without an explicit
	// type decode as TypeMessage for compatibility with older producers.
	TypeMessage Type = "message"

	// TypeJoin is a presence event for a client joining a channel.
	TypeJoin Type = "join"

	// TypeLeave is a presence event for a client leaving a channel.
	TypeLeave Type = "leave"
)

// Payload is the JSON document stored under the "payload" field of every
// stream record.
//
// Timestamp is the ISO-8601 moment of enrichment by the publish callback,
// not the append time. WorkerID records which worker the router selected at
// publish time; consumers use their own id as the source of truth and keep
// this for diagnostics.
type Payload struct {
	ID        string          `json:"id"`
	Channel   string          `json:"channel"`
	WorkerID  string          `json:"workerId"`
	UserID    string          `json:"userId"`
	UserName  string          `json:"userName"`
	Text      string          `json:"text"`
	Timestamp string          `json:"timestamp"`
	Raw       json.RawMessage `json:"raw,omitempty"`
	ClientID  string          `json:"clientId,omitempty"`
	Type      Type            `json:"type,omitempty"`
}

// Encode serializes the payload for AppendRecord.
func (p *Payload) Encode() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("message: encoding payload: %w", err)
	}
	return data, nil
}

// Decode parses a stream record payload. A missing or empty type defaults
// to TypeMessage; unknown types are preserved so callers can decide whether
// to skip them.
func Decode(data []byte) (*Payload, error) {
	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("message: decoding payload: %w", err)
	}
	if p.Type == "" {
		p.Type = TypeMessage
	}
	return &p, nil
}

// FormatTimestamp renders t in the ISO-8601 form used on the wire
// (UTC, millisecond precision).
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// ParseTimestamp parses a wire timestamp, accepting any RFC 3339 variant.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02T15:04:05.000Z", time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("message: unrecognized timestamp %q", strings.TrimSpace(s))
}
