package session

import (
	"testing"
)

func TestStore_BeginFirstStepPerFlow(t *testing.T) {
	tests := []struct {
		name string
		flow Flow
		want Step
	}{
		{"manual flow starts at description", FlowManual, StepDescription},
		{"invoice flow starts at attachment", FlowInvoice, StepAttachment},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewStore()
			sess := store.Begin(42, tt.flow)
			if sess.Step != tt.want {
				t.Errorf("Begin() step = %v, want %v", sess.Step, tt.want)
			}
			if sess.ChatID != 42 {
				t.Errorf("Begin() chatID = %d, want 42", sess.ChatID)
			}
		})
	}
}

func TestStore_BeginReplacesActiveSession(t *testing.T) {
	store := NewStore()

	first := store.Begin(42, FlowManual)
	first.Record.Description = "half-finished"
	first.Step = StepAmount

	second := store.Begin(42, FlowInvoice)

	got, ok := store.Get(42)
	if !ok {
		t.Fatal("Get() after Begin = not found")
	}
	if got != second {
		t.Error("Get() returned the old session after restart")
	}
	if got.Record.Description != "" {
		t.Errorf("restarted session kept record %q", got.Record.Description)
	}
	if store.Active() != 1 {
		t.Errorf("Active() = %d, want 1", store.Active())
	}
}

func TestStore_EndDestroysSession(t *testing.T) {
	store := NewStore()
	store.Begin(42, FlowManual)

	store.End(42)
	if _, ok := store.Get(42); ok {
		t.Error("Get() found a session after End()")
	}

	// Ending an absent session is a no-op.
	store.End(42)
	if store.Active() != 0 {
		t.Errorf("Active() = %d, want 0", store.Active())
	}
}

func TestStore_SessionsAreIndependentPerChat(t *testing.T) {
	store := NewStore()
	store.Begin(1, FlowManual)
	store.Begin(2, FlowInvoice)

	store.End(1)

	if _, ok := store.Get(1); ok {
		t.Error("chat 1 session survived End()")
	}
	if _, ok := store.Get(2); !ok {
		t.Error("chat 2 session destroyed by another chat's End()")
	}
}
