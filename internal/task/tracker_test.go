package task

import (
	"testing"
)

func TestTracker_ApplyAndLatest(t *testing.T) {
	tr := NewTracker(0, nil)

	tr.Apply(Update{TaskID: "t1", Status: StatusPending, Source: "ws"})
	tr.Apply(Update{TaskID: "t1", Status: StatusProcessing, Source: "ws"})

	u, ok := tr.Latest("t1")
	if !ok {
		t.Fatal("expected t1 to be tracked")
	}
	if u.Status != StatusProcessing {
		t.Errorf("Status = %s, want %s", u.Status, StatusProcessing)
	}

	if _, ok := tr.Latest("missing"); ok {
		t.Error("expected missing task to not be tracked")
	}
}

func TestTracker_ArrivalOrder(t *testing.T) {
	tr := NewTracker(0, nil)

	ids := []string{"a", "b", "c", "d", "e"}
	for _, id := range ids {
		tr.Apply(Update{TaskID: id, Status: StatusProcessing, Source: "ws"})
	}

	updates := tr.Updates()
	if len(updates) != 5 {
		t.Fatalf("len(updates) = %d, want 5", len(updates))
	}
	for i, id := range ids {
		if updates[i].TaskID != id {
			t.Errorf("updates[%d].TaskID = %s, want %s", i, updates[i].TaskID, id)
		}
	}

	snap := tr.Snapshot()
	if len(snap) != 5 {
		t.Fatalf("len(snap) = %d, want 5", len(snap))
	}
	for i, id := range ids {
		if snap[i].TaskID != id {
			t.Errorf("snap[%d].TaskID = %s, want %s", i, snap[i].TaskID, id)
		}
	}
}

func TestTracker_HistoryBound(t *testing.T) {
	tr := NewTracker(3, nil)

	for i := 0; i < 10; i++ {
		tr.Apply(Update{TaskID: "t1", Status: StatusProcessing})
	}

	if got := len(tr.Updates()); got != 3 {
		t.Errorf("len(Updates) = %d, want 3", got)
	}
}

func TestTracker_Active(t *testing.T) {
	tr := NewTracker(0, nil)

	tr.Apply(Update{TaskID: "t1", Status: StatusProcessing})
	tr.Apply(Update{TaskID: "t2", Status: StatusCompleted})
	tr.Apply(Update{TaskID: "t3", Status: StatusPending})
	tr.Apply(Update{TaskID: "t4", Status: StatusFailed})

	active := tr.Active()
	if len(active) != 2 {
		t.Fatalf("len(active) = %d, want 2", len(active))
	}
	if active[0] != "t1" || active[1] != "t3" {
		t.Errorf("active = %v, want [t1 t3]", active)
	}
}

func TestTracker_ApplyTask(t *testing.T) {
	tr := NewTracker(0, nil)

	progress := 0.5
	tr.ApplyTask(Task{
		ID:        "t1",
		Status:    StatusProcessing,
		Progress:  &progress,
		UpdatedAt: 1705328200,
	})

	u, ok := tr.Latest("t1")
	if !ok {
		t.Fatal("expected t1 to be tracked")
	}
	if u.Source != "rest" {
		t.Errorf("Source = %s, want rest", u.Source)
	}
	if u.Progress == nil || *u.Progress != 0.5 {
		t.Errorf("Progress = %v, want 0.5", u.Progress)
	}
	if u.Timestamp != 1705328200 {
		t.Errorf("Timestamp = %d, want 1705328200", u.Timestamp)
	}
}
