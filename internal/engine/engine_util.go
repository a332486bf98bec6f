package engine

import (
	"errors"
	"fmt"
	"time"
)

// SlotCount is the number of poses a visitor performs per round.
const SlotCount = 3

// NoSlot marks the absence of an active slot (revealing, or before the first round).
const NoSlot = -1

// NoPose is the label of a frame in which nothing was recognised.
const NoPose = -1

type Rules struct {
	Threshold      float64
	FlashDuration  time.Duration
	RevealDuration time.Duration
}

func DefaultRules() Rules {
	return Rules{
		Threshold:      0.98,
		FlashDuration:  300 * time.Millisecond,
		RevealDuration: 10 * time.Second,
	}
}

func NewEmptyState(rules Rules) State {
	return State{
		Phase:  PhaseInProgress,
		Active: NoSlot,
		Rules:  rules,
	}
}

// Sample is one classification of one body in one estimator frame.
type Sample struct {
	PoseID     int
	Confidence float64
}

// Observe reports whether a single sample is a match for the active pose.
// A confidence equal to the threshold is not a match.
func Observe(sample Sample, activePoseID int, threshold float64) bool {
	if sample.PoseID == NoPose || sample.Confidence < 0 || sample.Confidence > 1 {
		return false
	}
	return sample.PoseID == activePoseID && sample.Confidence > threshold
}

// MatchAny evaluates every body of a tick independently.
func MatchAny(samples []Sample, activePoseID int, threshold float64) bool {
	for _, sample := range samples {
		if Observe(sample, activePoseID, threshold) {
			return true
		}
	}
	return false
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}

// ActivePose returns the pose the visitor is currently asked to perform.
func (s State) ActivePose() (int, bool) {
	if s.Active < 0 || s.Active >= len(s.Slots) {
		return NoPose, false
	}
	return s.Slots[s.Active].PoseID, true
}

// Poses lists the round's pose IDs in slot order.
func (s State) Poses() []int {
	out := make([]int, len(s.Slots))
	for i, slot := range s.Slots {
		out[i] = slot.PoseID
	}
	return out
}

func (s State) Revealing() bool { return s.Phase == PhaseRevealing }

var errInvariant = errors.New("invariant violated")

// CheckInvariants verifies that exactly one slot is active unless the round is
// revealing, and that slots complete strictly in order.
func CheckInvariants(s State) error {
	if len(s.Slots) == 0 {
		if s.Active != NoSlot {
			return fmt.Errorf("active %d with no slots: %w", s.Active, errInvariant)
		}
		return nil
	}

	actives := 0
	for i, slot := range s.Slots {
		switch slot.Status {
		case StatusActive:
			actives++
			if i != s.Active {
				return fmt.Errorf("slot %d active but Active=%d: %w", i, s.Active, errInvariant)
			}
		case StatusCompleted:
			if i > 0 && s.Slots[i-1].Status != StatusCompleted {
				return fmt.Errorf("slot %d completed before slot %d: %w", i, i-1, errInvariant)
			}
		case StatusPending:
			if i == 0 || s.Slots[i-1].Status == StatusPending {
				continue
			}
			if s.Slots[i-1].Status == StatusCompleted {
				return fmt.Errorf("slot %d pending after completed slot: %w", i, errInvariant)
			}
		}
	}

	if s.Phase == PhaseRevealing {
		if actives != 0 || s.Active != NoSlot {
			return fmt.Errorf("active slot while revealing: %w", errInvariant)
		}
		return nil
	}
	if actives != 1 {
		return fmt.Errorf("%d active slots: %w", actives, errInvariant)
	}
	return nil
}
