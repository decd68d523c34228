package chat

import (
	"context"
	"errors"
	"sync"
	"testing"

	"QChat/module/chat/model"
	"QChat/tools/errs"
)

func newTestPresence(t *testing.T) (*PresenceTracker, *SessionRegistry, *fakeMembershipStore, *fakeBroadcaster) {
	t.Helper()
	fs := newFakeMembershipStore()
	bc := &fakeBroadcaster{}
	reg := NewSessionRegistry()
	idx := NewMembershipIndex(fs)
	p := NewPresenceTracker(reg, idx, bc)
	reg.SetNotifier(p)
	return p, reg, fs, bc
}

func TestPresenceOnlineOfflineEdges(t *testing.T) {
	p, reg, fs, bc := newTestPresence(t)
	fs.setMembers(100, 1, 2)
	if err := p.idx.Refresh(context.Background(), 100); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	reg.Register(newConn("s1", 1, nil, 8))
	reg.Register(newConn("s2", 1, nil, 8))

	ups := bc.eventsOf(EvtPresenceUpdated)
	if len(ups) != 1 {
		t.Fatalf("presence broadcasts = %d, want 1 for the 0->1 edge", len(ups))
	}
	if !ups[0].droppable {
		t.Fatal("presence frames must be droppable")
	}
	if ups[0].roomID != 100 {
		t.Fatalf("presence broadcast room = %d, want 100", ups[0].roomID)
	}
	if st := p.StateOf(1); st.Status != model.PresenceOnline {
		t.Fatalf("StateOf = %s, want online", st.Status)
	}

	reg.Unregister("s1")
	if got := len(bc.eventsOf(EvtPresenceUpdated)); got != 1 {
		t.Fatalf("presence broadcasts after partial disconnect = %d, want still 1", got)
	}

	reg.Unregister("s2")
	if got := len(bc.eventsOf(EvtPresenceUpdated)); got != 2 {
		t.Fatalf("presence broadcasts after last disconnect = %d, want 2", got)
	}
	if st := p.StateOf(1); st.Status != model.PresenceOffline {
		t.Fatalf("StateOf after offline = %s, want offline", st.Status)
	}
}

func TestPresenceAdvisoryStatuses(t *testing.T) {
	p, reg, _, _ := newTestPresence(t)

	// No live sessions: advisory rejected.
	if err := p.SetAdvisory(1, model.PresenceAway); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("advisory without sessions = %v, want InvalidArgument", err)
	}

	reg.Register(newConn("s1", 1, nil, 8))

	if err := p.SetAdvisory(1, model.PresenceBusy); err != nil {
		t.Fatalf("set busy: %v", err)
	}
	if st := p.StateOf(1); st.Status != model.PresenceBusy {
		t.Fatalf("StateOf = %s, want busy", st.Status)
	}

	// Asking for offline while connected downgrades to away.
	if err := p.SetAdvisory(1, model.PresenceOffline); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	if st := p.StateOf(1); st.Status != model.PresenceAway {
		t.Fatalf("StateOf = %s, want away", st.Status)
	}

	// "online" clears the advisory layer.
	if err := p.SetAdvisory(1, model.PresenceOnline); err != nil {
		t.Fatalf("set online: %v", err)
	}
	if st := p.StateOf(1); st.Status != model.PresenceOnline {
		t.Fatalf("StateOf = %s, want online", st.Status)
	}

	if err := p.SetAdvisory(1, model.PresenceStatus("invisible")); !errors.Is(err, errs.ErrInvalidArgument) {
		t.Fatalf("bad status = %v, want InvalidArgument", err)
	}
}

func TestPresenceAdvisoryClearedOnOffline(t *testing.T) {
	p, reg, _, _ := newTestPresence(t)

	reg.Register(newConn("s1", 1, nil, 8))
	if err := p.SetAdvisory(1, model.PresenceBusy); err != nil {
		t.Fatalf("set busy: %v", err)
	}
	reg.Unregister("s1")

	// Reconnect starts clean, the stale "busy" must not stick.
	reg.Register(newConn("s2", 1, nil, 8))
	if st := p.StateOf(1); st.Status != model.PresenceOnline {
		t.Fatalf("StateOf after reconnect = %s, want online", st.Status)
	}
}

func TestPresenceMirror(t *testing.T) {
	p, reg, _, _ := newTestPresence(t)

	var mu sync.Mutex
	var mirrored []model.PresenceState
	p.SetMirror(func(st model.PresenceState) {
		mu.Lock()
		mirrored = append(mirrored, st)
		mu.Unlock()
	})

	reg.Register(newConn("s1", 1, nil, 8))
	reg.Unregister("s1")

	mu.Lock()
	defer mu.Unlock()
	if len(mirrored) != 2 {
		t.Fatalf("mirrored transitions = %d, want 2", len(mirrored))
	}
	if mirrored[0].Status != model.PresenceOnline || mirrored[1].Status != model.PresenceOffline {
		t.Fatalf("mirrored = %v, want online then offline", mirrored)
	}
	if mirrored[1].LastSeenAt.IsZero() {
		t.Fatal("offline transition should carry a last seen timestamp")
	}
}

func TestPresenceSnapshot(t *testing.T) {
	p, reg, fs, _ := newTestPresence(t)
	fs.setMembers(100, 1, 2)
	if err := p.idx.Refresh(context.Background(), 100); err != nil {
		t.Fatalf("refresh: %v", err)
	}

	reg.Register(newConn("s1", 1, nil, 8))

	snap := p.Snapshot(100)
	if len(snap) != 2 {
		t.Fatalf("snapshot size = %d, want 2", len(snap))
	}
	if snap[1].Status != model.PresenceOnline {
		t.Fatalf("user 1 = %s, want online", snap[1].Status)
	}
	if snap[2].Status != model.PresenceOffline {
		t.Fatalf("user 2 = %s, want offline", snap[2].Status)
	}
}
