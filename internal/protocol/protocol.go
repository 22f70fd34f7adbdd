// Package protocol defines the wire envelope spoken over the room WebSocket
// and the validators that sanitize inbound payloads before they touch state.
package protocol

import "encoding/json"

// Type discriminates the message envelope.
type Type string

const (
	// TypeInit carries the full room snapshot; server to client only.
	TypeInit Type = "init"
	// TypeComputer replaces the room's puzzle network.
	TypeComputer Type = "computer"
	// TypeNodeState updates the posture of one access point.
	TypeNodeState Type = "node-state"
	// TypeFocus moves or clears the focused-node pointer.
	TypeFocus Type = "focus"
	// TypeIntensity adjusts the ambient intensity.
	TypeIntensity Type = "intensity"
	// TypeEffect triggers a short-lived visual cue; never persisted.
	TypeEffect Type = "effect"
	// TypeClearEffects cancels outstanding visual cues; never persisted.
	TypeClearEffects Type = "clear-effects"
	// TypePing requests a pong; neither is broadcast or persisted.
	TypePing Type = "ping"
	// TypePong acknowledges a ping.
	TypePong Type = "pong"
	// TypeError is a sender-only diagnostic frame for rejected messages.
	TypeError Type = "error"
)

// Known reports whether the type is part of the inbound protocol.
func (t Type) Known() bool {
	switch t {
	case TypeInit, TypeComputer, TypeNodeState, TypeFocus, TypeIntensity,
		TypeEffect, TypeClearEffects, TypePing, TypePong:
		return true
	}
	return false
}

// Persistable reports whether an accepted message of this type mutates the
// durable room state.
func (t Type) Persistable() bool {
	switch t {
	case TypeComputer, TypeNodeState, TypeFocus, TypeIntensity:
		return true
	}
	return false
}

// Mutating reports whether the type requires the controller role. Everything
// except the keepalive pair counts.
func (t Type) Mutating() bool {
	return t != TypePing && t != TypePong
}

// Envelope is the bidirectional wire format: a type tag and a raw payload.
type Envelope struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode frames a payload value into envelope bytes.
func Encode(t Type, payload any) ([]byte, error) {
	var raw json.RawMessage
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, err
		}
		raw = data
	}
	return json.Marshal(Envelope{Type: t, Payload: raw})
}

// Decode parses envelope bytes. The payload is left raw for the per-type
// validators.
func Decode(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, err
	}
	return &env, nil
}
