package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"gridlink/relay/internal/state"
)

// Validation limits. Payloads beyond these bounds are rejected outright; no
// truncation or partial acceptance.
const (
	MaxIDLength          = 64
	MaxNameLength        = 64
	MaxCategoryTagLength = 32
	MinLevel             = 1
	MaxLevel             = 12
	MaxAccessPoints      = 32
	MaxConnections       = 8
	MaxEffectBytes       = 1024
)

var (
	ErrEmptyPayload   = errors.New("empty payload")
	ErrUnknownType    = errors.New("unknown message type")
	ErrServerOnlyType = errors.New("server-only message type")
	errNotValidatable = errors.New("type carries no payload to validate")
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
)

// NodeStatePayload is the sanitized form of a node-state message.
type NodeStatePayload struct {
	NodeID string          `json:"nodeId"`
	State  state.NodeState `json:"state"`
}

// FocusPayload is the sanitized form of a focus message. A nil NodeID clears
// the focused-node pointer.
type FocusPayload struct {
	NodeID *string `json:"nodeId"`
}

// IntensityPayload is the sanitized form of an intensity message.
type IntensityPayload struct {
	Value float64 `json:"value"`
}

// Sanitize validates the raw payload for the given message type and returns
// the typed value alongside its canonical encoding. The canonical bytes are
// what gets broadcast, so a malformed-but-parseable payload never leaks extra
// fields to observers.
func Sanitize(t Type, raw json.RawMessage) (any, json.RawMessage, error) {
	switch t {
	case TypeComputer:
		computer, err := ValidateComputer(raw)
		if err != nil {
			return nil, nil, err
		}
		canonical, err := json.Marshal(computer)
		return computer, canonical, err
	case TypeNodeState:
		payload, err := ValidateNodeState(raw)
		if err != nil {
			return nil, nil, err
		}
		canonical, err := json.Marshal(payload)
		return payload, canonical, err
	case TypeFocus:
		payload, err := ValidateFocus(raw)
		if err != nil {
			return nil, nil, err
		}
		canonical, err := json.Marshal(payload)
		return payload, canonical, err
	case TypeIntensity:
		payload, err := ValidateIntensity(raw)
		if err != nil {
			return nil, nil, err
		}
		canonical, err := json.Marshal(payload)
		return payload, canonical, err
	case TypeEffect:
		canonical, err := ValidateEffect(raw)
		return canonical, canonical, err
	case TypeClearEffects:
		// Cancellation needs no payload; anything supplied is dropped.
		return nil, nil, nil
	case TypeInit:
		return nil, nil, ErrServerOnlyType
	case TypePing, TypePong:
		return nil, nil, errNotValidatable
	default:
		return nil, nil, ErrUnknownType
	}
}

// ValidateComputer checks a full puzzle-network replacement.
func ValidateComputer(raw json.RawMessage) (*state.Computer, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	var computer state.Computer
	if err := json.Unmarshal(raw, &computer); err != nil {
		return nil, fmt.Errorf("malformed computer payload: %w", err)
	}
	if err := validateID("computer id", computer.ID); err != nil {
		return nil, err
	}
	name, err := validateName("computer name", computer.Name)
	if err != nil {
		return nil, err
	}
	computer.Name = name
	if computer.Level < MinLevel || computer.Level > MaxLevel {
		return nil, fmt.Errorf("computer level must be between %d and %d, got %d", MinLevel, MaxLevel, computer.Level)
	}
	if err := validateCategoryTag(computer.Category); err != nil {
		return nil, err
	}
	if len(computer.AccessPoints) > MaxAccessPoints {
		return nil, fmt.Errorf("computer has %d access points, maximum is %d", len(computer.AccessPoints), MaxAccessPoints)
	}
	seen := make(map[string]struct{}, len(computer.AccessPoints))
	for i := range computer.AccessPoints {
		ap := &computer.AccessPoints[i]
		if err := validateAccessPoint(ap); err != nil {
			return nil, err
		}
		if _, dup := seen[ap.ID]; dup {
			return nil, fmt.Errorf("duplicate access point id %q", ap.ID)
		}
		seen[ap.ID] = struct{}{}
	}
	return &computer, nil
}

func validateAccessPoint(ap *state.AccessPoint) error {
	if err := validateID("access point id", ap.ID); err != nil {
		return err
	}
	name, err := validateName(fmt.Sprintf("access point %q name", ap.ID), ap.Name)
	if err != nil {
		return err
	}
	ap.Name = name
	if !ap.Category.Valid() {
		return fmt.Errorf("access point %q has unknown category %q", ap.ID, ap.Category)
	}
	if !ap.State.Valid() {
		return fmt.Errorf("access point %q has unknown state %q", ap.ID, ap.State)
	}
	if ap.Position.X < 0 || ap.Position.X > 1 || ap.Position.Y < 0 || ap.Position.Y > 1 {
		return fmt.Errorf("access point %q position out of range: (%v, %v)", ap.ID, ap.Position.X, ap.Position.Y)
	}
	if len(ap.Connections) > MaxConnections {
		return fmt.Errorf("access point %q has %d connections, maximum is %d", ap.ID, len(ap.Connections), MaxConnections)
	}
	for _, target := range ap.Connections {
		if err := validateID(fmt.Sprintf("access point %q connection", ap.ID), target); err != nil {
			return err
		}
	}
	return nil
}

// ValidateNodeState checks a single node posture change.
func ValidateNodeState(raw json.RawMessage) (*NodeStatePayload, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	var payload NodeStatePayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed node-state payload: %w", err)
	}
	if err := validateID("node id", payload.NodeID); err != nil {
		return nil, err
	}
	if !payload.State.Valid() {
		return nil, fmt.Errorf("unknown node state %q", payload.State)
	}
	return &payload, nil
}

// ValidateFocus checks a focused-node pointer move.
func ValidateFocus(raw json.RawMessage) (*FocusPayload, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	var payload FocusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed focus payload: %w", err)
	}
	if payload.NodeID != nil {
		if err := validateID("node id", *payload.NodeID); err != nil {
			return nil, err
		}
	}
	return &payload, nil
}

// ValidateIntensity checks an ambient intensity change.
func ValidateIntensity(raw json.RawMessage) (*IntensityPayload, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	var payload IntensityPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("malformed intensity payload: %w", err)
	}
	if payload.Value < 0 || payload.Value > 1 {
		return nil, fmt.Errorf("intensity must be within [0,1], got %v", payload.Value)
	}
	return &payload, nil
}

// ValidateEffect checks a transient visual cue: any small JSON object.
func ValidateEffect(raw json.RawMessage) (json.RawMessage, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	if len(raw) > MaxEffectBytes {
		return nil, fmt.Errorf("effect payload is %d bytes, maximum is %d", len(raw), MaxEffectBytes)
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("effect payload must be a JSON object: %w", err)
	}
	return raw, nil
}

// ValidateRoomID checks an admission-time room identifier.
func ValidateRoomID(id string) error {
	return validateID("room id", id)
}

func validateID(label, id string) error {
	if id == "" {
		return fmt.Errorf("%s must not be empty", label)
	}
	if len(id) > MaxIDLength {
		return fmt.Errorf("%s exceeds %d characters", label, MaxIDLength)
	}
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("%s contains characters outside [A-Za-z0-9_-]", label)
	}
	return nil
}

func validateName(label, name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%s must not be empty", label)
	}
	if len(trimmed) > MaxNameLength {
		return "", fmt.Errorf("%s exceeds %d characters", label, MaxNameLength)
	}
	for _, r := range trimmed {
		if !unicode.IsPrint(r) {
			return "", fmt.Errorf("%s contains non-printable characters", label)
		}
	}
	return trimmed, nil
}

func validateCategoryTag(tag string) error {
	if tag == "" {
		return nil
	}
	if len(tag) > MaxCategoryTagLength {
		return fmt.Errorf("category tag exceeds %d characters", MaxCategoryTagLength)
	}
	for _, r := range tag {
		if !unicode.IsPrint(r) {
			return errors.New("category tag contains non-printable characters")
		}
	}
	return nil
}
