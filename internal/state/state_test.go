package state

import "testing"

func sampleComputer() *Computer {
	return &Computer{
		ID:       "host-1",
		Name:     "Mainframe",
		Level:    3,
		Category: "corporate",
		AccessPoints: []AccessPoint{
			{ID: "fw", Name: "Firewall", Category: CategoryRemote, State: NodeLocked, Position: Position{X: 0.1, Y: 0.2}, Connections: []string{"db"}},
			{ID: "db", Name: "Datastore", Category: CategoryPhysical, State: NodeActive, Position: Position{X: 0.8, Y: 0.4}},
		},
	}
}

func TestCloneIsIndependent(t *testing.T) {
	focus := "fw"
	original := &RoomState{
		Computer:         sampleComputer(),
		FocusedNodeID:    &focus,
		AmbientIntensity: 0.4,
	}
	clone := original.Clone()

	clone.Computer.AccessPoints[0].State = NodeBreached
	clone.Computer.AccessPoints[0].Connections[0] = "elsewhere"
	*clone.FocusedNodeID = "db"
	clone.AmbientIntensity = 0.9

	if original.Computer.AccessPoints[0].State != NodeLocked {
		t.Fatal("clone mutation leaked into original node state")
	}
	if original.Computer.AccessPoints[0].Connections[0] != "db" {
		t.Fatal("clone mutation leaked into original connections")
	}
	if *original.FocusedNodeID != "fw" {
		t.Fatal("clone mutation leaked into original focus")
	}
	if original.AmbientIntensity != 0.4 {
		t.Fatal("clone mutation leaked into original intensity")
	}
}

func TestCloneNil(t *testing.T) {
	var st *RoomState
	if st.Clone() != nil {
		t.Fatal("nil state should clone to nil")
	}
	empty := NewRoomState().Clone()
	if empty.Computer != nil || empty.FocusedNodeID != nil || empty.AmbientIntensity != 0 {
		t.Fatalf("unexpected empty clone: %+v", empty)
	}
}

func TestSetNodeState(t *testing.T) {
	st := NewRoomState()
	if st.SetNodeState("fw", NodeBreached) {
		t.Fatal("no computer loaded, update should miss")
	}
	st.SetComputer(sampleComputer())
	if !st.SetNodeState("fw", NodeBreached) {
		t.Fatal("known node should be updated")
	}
	if got := st.Computer.AccessPoint("fw").State; got != NodeBreached {
		t.Fatalf("node state not applied: %s", got)
	}
	if st.SetNodeState("ghost", NodeAlarmed) {
		t.Fatal("unknown node should miss")
	}
}

func TestEnumValidity(t *testing.T) {
	for _, c := range []NodeCategory{CategoryPhysical, CategoryRemote, CategoryMagical} {
		if !c.Valid() {
			t.Fatalf("category %s should be valid", c)
		}
	}
	if NodeCategory("astral").Valid() {
		t.Fatal("unknown category should be invalid")
	}
	for _, s := range []NodeState{NodeLocked, NodeActive, NodeBreached, NodeAlarmed} {
		if !s.Valid() {
			t.Fatalf("state %s should be valid", s)
		}
	}
	if NodeState("open").Valid() {
		t.Fatal("unknown state should be invalid")
	}
}
