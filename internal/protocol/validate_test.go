package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"gridlink/relay/internal/state"
)

func computerJSON(t *testing.T, nodes int) json.RawMessage {
	t.Helper()
	points := make([]state.AccessPoint, 0, nodes)
	for i := 0; i < nodes; i++ {
		points = append(points, state.AccessPoint{
			ID:       fmt.Sprintf("node-%d", i),
			Name:     fmt.Sprintf("Node %d", i),
			Category: state.CategoryRemote,
			State:    state.NodeLocked,
			Position: state.Position{X: 0.5, Y: 0.5},
		})
	}
	raw, err := json.Marshal(state.Computer{
		ID:           "host-1",
		Name:         "Mainframe",
		Level:        4,
		Category:     "corporate",
		AccessPoints: points,
	})
	if err != nil {
		t.Fatalf("marshal computer: %v", err)
	}
	return raw
}

func TestValidateComputerAccepts(t *testing.T) {
	computer, err := ValidateComputer(computerJSON(t, 3))
	if err != nil {
		t.Fatalf("ValidateComputer returned error: %v", err)
	}
	if computer.ID != "host-1" || len(computer.AccessPoints) != 3 {
		t.Fatalf("unexpected computer: %+v", computer)
	}
}

func TestValidateComputerAccessPointBoundary(t *testing.T) {
	if _, err := ValidateComputer(computerJSON(t, MaxAccessPoints)); err != nil {
		t.Fatalf("exactly %d access points should be accepted, got %v", MaxAccessPoints, err)
	}
	_, err := ValidateComputer(computerJSON(t, MaxAccessPoints+1))
	if err == nil {
		t.Fatalf("%d access points should be rejected", MaxAccessPoints+1)
	}
	if !strings.Contains(err.Error(), "access points") {
		t.Fatalf("expected descriptive error, got %v", err)
	}
}

func TestValidateComputerRejections(t *testing.T) {
	cases := []struct {
		name  string
		patch func(*state.Computer)
	}{
		{"empty id", func(c *state.Computer) { c.ID = "" }},
		{"bad id charset", func(c *state.Computer) { c.ID = "host 1!" }},
		{"blank name", func(c *state.Computer) { c.Name = "   " }},
		{"level too low", func(c *state.Computer) { c.Level = 0 }},
		{"level too high", func(c *state.Computer) { c.Level = MaxLevel + 1 }},
		{"unknown node category", func(c *state.Computer) { c.AccessPoints[0].Category = "astral" }},
		{"unknown node state", func(c *state.Computer) { c.AccessPoints[0].State = "melted" }},
		{"position out of range", func(c *state.Computer) { c.AccessPoints[0].Position.X = 1.5 }},
		{"duplicate node ids", func(c *state.Computer) { c.AccessPoints[1].ID = c.AccessPoints[0].ID }},
		{"too many connections", func(c *state.Computer) {
			for i := 0; i <= MaxConnections; i++ {
				c.AccessPoints[0].Connections = append(c.AccessPoints[0].Connections, fmt.Sprintf("x%d", i))
			}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var computer state.Computer
			if err := json.Unmarshal(computerJSON(t, 2), &computer); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tc.patch(&computer)
			raw, err := json.Marshal(computer)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if _, err := ValidateComputer(raw); err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}

func TestValidateNodeState(t *testing.T) {
	payload, err := ValidateNodeState(json.RawMessage(`{"nodeId":"node-1","state":"breached"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.NodeID != "node-1" || payload.State != state.NodeBreached {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if _, err := ValidateNodeState(json.RawMessage(`{"nodeId":"node-1","state":"open"}`)); err == nil {
		t.Fatal("unknown state should be rejected")
	}
	if _, err := ValidateNodeState(json.RawMessage(`{"state":"locked"}`)); err == nil {
		t.Fatal("missing node id should be rejected")
	}
}

func TestValidateFocus(t *testing.T) {
	payload, err := ValidateFocus(json.RawMessage(`{"nodeId":null}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if payload.NodeID != nil {
		t.Fatalf("expected nil node id, got %v", *payload.NodeID)
	}
	payload, err = ValidateFocus(json.RawMessage(`{"nodeId":"node-2"}`))
	if err != nil || payload.NodeID == nil || *payload.NodeID != "node-2" {
		t.Fatalf("unexpected result: %+v, %v", payload, err)
	}
	if _, err := ValidateFocus(json.RawMessage(`{"nodeId":"has spaces"}`)); err == nil {
		t.Fatal("bad charset should be rejected")
	}
}

func TestValidateIntensity(t *testing.T) {
	for _, value := range []string{"0", "0.5", "1"} {
		if _, err := ValidateIntensity(json.RawMessage(`{"value":` + value + `}`)); err != nil {
			t.Fatalf("intensity %s should be accepted, got %v", value, err)
		}
	}
	for _, value := range []string{"-0.1", "1.2"} {
		if _, err := ValidateIntensity(json.RawMessage(`{"value":` + value + `}`)); err == nil {
			t.Fatalf("intensity %s should be rejected", value)
		}
	}
}

func TestValidateEffect(t *testing.T) {
	if _, err := ValidateEffect(json.RawMessage(`{"kind":"spark","nodeId":"node-1"}`)); err != nil {
		t.Fatalf("small effect should be accepted, got %v", err)
	}
	if _, err := ValidateEffect(json.RawMessage(`[1,2,3]`)); err == nil {
		t.Fatal("non-object effect should be rejected")
	}
	big := `{"blob":"` + strings.Repeat("x", MaxEffectBytes) + `"}`
	if _, err := ValidateEffect(json.RawMessage(big)); err == nil {
		t.Fatal("oversized effect should be rejected")
	}
}

func TestSanitizeRouting(t *testing.T) {
	if _, _, err := Sanitize(TypeInit, nil); err != ErrServerOnlyType {
		t.Fatalf("init should be server-only, got %v", err)
	}
	if _, _, err := Sanitize(Type("mystery"), nil); err != ErrUnknownType {
		t.Fatalf("unknown type should be rejected, got %v", err)
	}
	if _, canonical, err := Sanitize(TypeClearEffects, json.RawMessage(`{"junk":true}`)); err != nil || canonical != nil {
		t.Fatalf("clear-effects should drop its payload, got %s, %v", canonical, err)
	}
	value, canonical, err := Sanitize(TypeIntensity, json.RawMessage(`{"value":0.25,"extra":"field"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ok := value.(*IntensityPayload); !ok {
		t.Fatalf("unexpected value type %T", value)
	}
	if strings.Contains(string(canonical), "extra") {
		t.Fatalf("canonical payload should not carry unknown fields: %s", canonical)
	}
}

func TestTypeClassification(t *testing.T) {
	persistable := []Type{TypeComputer, TypeNodeState, TypeFocus, TypeIntensity}
	for _, typ := range persistable {
		if !typ.Persistable() {
			t.Fatalf("%s should be persistable", typ)
		}
	}
	for _, typ := range []Type{TypeEffect, TypeClearEffects, TypePing, TypePong, TypeInit} {
		if typ.Persistable() {
			t.Fatalf("%s should not be persistable", typ)
		}
	}
	if TypePing.Mutating() || TypePong.Mutating() {
		t.Fatal("keepalives must not require the controller role")
	}
	if !TypeEffect.Mutating() {
		t.Fatal("effect requires the controller role")
	}
}
