package flags

import (
	"testing"

	"github.com/duetlabs/pairsync/pkg/snapshot"
)

type seenAll struct{}

func (seenAll) HasSeenResults(string, string) bool { return true }

type seenNone struct{}

func (seenNone) HasSeenResults(string, string) bool { return false }

func matchEvent(key, payload string) snapshot.ChangeEvent {
	return snapshot.ChangeEvent{Key: key, Type: snapshot.Updated, Current: snapshot.Resource(payload)}
}

func TestDetectorMarksPendingWhenBothPartnersCompleted(t *testing.T) {
	c := NewCoordinator()
	d := NewDetector(c, seenNone{})

	d.Inspect(matchEvent("activeMatch:q1",
		`{"activityType":"classicQuiz","youCompleted":true,"partnerCompleted":true}`))

	if !c.IsPending("classicQuiz", "q1") {
		t.Fatalf("expected pending flag for classicQuiz/q1")
	}
}

func TestDetectorIgnoresIncompleteSessions(t *testing.T) {
	c := NewCoordinator()
	d := NewDetector(c, seenNone{})

	d.Inspect(matchEvent("activeMatch:q1",
		`{"activityType":"classicQuiz","youCompleted":true,"partnerCompleted":false}`))
	d.Inspect(matchEvent("activeMatch:q2",
		`{"activityType":"classicQuiz","youCompleted":false,"partnerCompleted":true}`))

	if len(c.Pending()) != 0 {
		t.Fatalf("incomplete sessions must not be marked pending")
	}
}

func TestDetectorSkipsAlreadySeenResults(t *testing.T) {
	c := NewCoordinator()
	d := NewDetector(c, seenAll{})

	d.Inspect(matchEvent("activeMatch:q1",
		`{"activityType":"classicQuiz","youCompleted":true,"partnerCompleted":true}`))

	if len(c.Pending()) != 0 {
		t.Fatalf("sessions with seen results must not be re-marked; this is the fresh-login defect")
	}
}

func TestDetectorIgnoresNonSessionAndRemovalEvents(t *testing.T) {
	c := NewCoordinator()
	d := NewDetector(c, seenNone{})

	d.Inspect(matchEvent("dailyQuests", `{"activityType":"classicQuiz","youCompleted":true,"partnerCompleted":true}`))
	d.Inspect(snapshot.ChangeEvent{
		Key:      "activeMatch:q1",
		Type:     snapshot.Removed,
		Previous: `{"activityType":"classicQuiz","youCompleted":true,"partnerCompleted":true}`,
	})
	d.Inspect(matchEvent("activeMatch:q2", `{"youCompleted":true,"partnerCompleted":true}`)) // no activityType

	if len(c.Pending()) != 0 {
		t.Fatalf("expected no flags, got %v", c.Pending())
	}
}
