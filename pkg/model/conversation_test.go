package model

import "testing"

func TestPairKey_OrderIndependent(t *testing.T) {
	if PairKey("owner-1", "driver-1") != PairKey("driver-1", "owner-1") {
		t.Error("expected the same key regardless of argument order")
	}
	if PairKey("a", "b") != "a:b" {
		t.Errorf("expected canonical key a:b, got %s", PairKey("a", "b"))
	}
}

func TestParticipantsFromKey(t *testing.T) {
	participants := ParticipantsFromKey(PairKey("owner-1", "driver-1"))
	if len(participants) != 2 {
		t.Fatalf("expected 2 participants, got %d", len(participants))
	}
	if participants[0] != "driver-1" || participants[1] != "owner-1" {
		t.Errorf("unexpected participants: %v", participants)
	}
}

func TestConversationParticipants(t *testing.T) {
	c := &Conversation{Participants: []string{"owner-1", "driver-1"}}

	if !c.HasParticipant("owner-1") || !c.HasParticipant("driver-1") {
		t.Error("expected both parties to be participants")
	}
	if c.HasParticipant("admin-1") {
		t.Error("expected admin-1 to not be a participant")
	}
	if got := c.OtherParticipant("owner-1"); got != "driver-1" {
		t.Errorf("expected counterpart driver-1, got %s", got)
	}
	if got := c.OtherParticipant("stranger"); got != "owner-1" {
		t.Errorf("expected first participant for a non-member, got %s", got)
	}
}
