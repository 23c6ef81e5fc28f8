package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ControlRequest is a control message sent by one live session: a heartbeat,
// a position update, or a request to hand the driver role to another session.
type ControlRequest struct {
	ClientID string   `json:"clientID"`
	Position *float64 `json:"position,omitempty"`
	Main     string   `json:"main,omitempty"`

	// Raw is the original body compacted to a single line. Position updates
	// are relayed to the group as-is.
	Raw json.RawMessage `json:"-"`

	fields  int
	hasMain bool
}

// ParseControlRequest decodes a control message body.
func ParseControlRequest(body []byte) (*ControlRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
	}

	var req ControlRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, body); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
	}
	req.Raw = compact.Bytes()
	req.fields = len(fields)
	if _, ok := fields["clientID"]; ok {
		req.fields--
	}
	if main, ok := fields["main"]; ok && string(main) != "null" {
		req.hasMain = true
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// ParseBoundControlRequest decodes a control message that arrived on a
// connection already bound to clientID. Any clientID in the body is replaced.
func ParseBoundControlRequest(body []byte, clientID string) (*ControlRequest, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: expected an object", ErrInvalidControl)
	}

	id, err := json.Marshal(clientID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
	}
	fields["clientID"] = id

	rebuilt, err := json.Marshal(fields)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidControl, err)
	}
	return ParseControlRequest(rebuilt)
}

// Validate validates the control request.
func (r *ControlRequest) Validate() error {
	if r.ClientID == "" {
		return ErrClientIDRequired
	}
	return nil
}

// IsHandoff reports whether the message carries a "main" key. An empty or
// unknown target is still a handoff, one that moves nothing.
func (r *ControlRequest) IsHandoff() bool {
	return r.hasMain
}

// CarriesUpdate reports whether the message carries anything besides the
// sender's client ID. A bare {"clientID": ...} body is a heartbeat.
func (r *ControlRequest) CarriesUpdate() bool {
	return r.fields > 0
}
