package engine

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var ErrInvalidSequence = errors.New("invalid pose sequence")
var ErrStaleTimer = errors.New("stale timer")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

type Phase string

const (
	PhaseInProgress Phase = "in_progress"
	PhaseRevealing  Phase = "revealing"
)

type Slot struct {
	PoseID int
	Status Status
}

type State struct {
	Round  uint64
	Phase  Phase
	Slots  []Slot
	Active int // index into Slots, NoSlot while revealing

	Flashing bool
	FlashSeq uint64

	StartedAt    time.Time
	RevealEndsAt time.Time
	Rules        Rules
}

type CommandType string

const (
	CmdStartRound    CommandType = "StartRound"
	CmdDetect        CommandType = "Detect"
	CmdFlashExpired  CommandType = "FlashExpired"
	CmdRevealExpired CommandType = "RevealExpired"
)

/*
	CmdStartRound    -> EvtRoundStarted
	CmdDetect        -> EvtSlotCompleted -> EvtFlashRaised -> EvtSlotActivated or EvtRevealStarted
	CmdFlashExpired  -> EvtFlashCleared
	CmdRevealExpired -> EvtRoundStarted

	Timer commands carry the Round (and Flash) they were armed for. A token that
	does not match the current state is rejected with ErrStaleTimer.
*/

type Command struct {
	Type    CommandType
	Samples []Sample
	Poses   []int
	Round   uint64
	Flash   uint64
	At      time.Time
}

type EventType string

const (
	EvtRoundStarted  EventType = "RoundStarted"
	EvtSlotCompleted EventType = "SlotCompleted"
	EvtSlotActivated EventType = "SlotActivated"
	EvtFlashRaised   EventType = "FlashRaised"
	EvtFlashCleared  EventType = "FlashCleared"
	EvtRevealStarted EventType = "RevealStarted"
)

type Event struct {
	Type   EventType
	Round  uint64
	Slot   int
	PoseID int
	Flash  uint64
	At     time.Time
}

func Apply(s State, cmd Command) ([]Event, State, error) {
	switch cmd.Type {
	case CmdStartRound:
		return startRound(s, cmd.Poses, cmd.At)

	case CmdDetect:
		// the reveal window ignores every detection, matching or not
		if s.Phase == PhaseRevealing || s.Active < 0 || s.Active >= len(s.Slots) {
			return nil, s, nil
		}
		active := s.Slots[s.Active]
		if !MatchAny(cmd.Samples, active.PoseID, s.Rules.Threshold) {
			return nil, s, nil
		}

		newState := s
		newState.Slots = slices.Clone(s.Slots)
		newState.Slots[s.Active].Status = StatusCompleted
		newState.Flashing = true
		newState.FlashSeq = s.FlashSeq + 1

		events := []Event{
			{Type: EvtSlotCompleted, Round: s.Round, Slot: s.Active, PoseID: active.PoseID, At: cmd.At},
			{Type: EvtFlashRaised, Round: s.Round, Flash: newState.FlashSeq, At: cmd.At},
		}

		next := s.Active + 1
		if next < len(s.Slots) {
			newState.Slots[next].Status = StatusActive
			newState.Active = next
			events = append(events, Event{Type: EvtSlotActivated, Round: s.Round, Slot: next, PoseID: s.Slots[next].PoseID, At: cmd.At})
			return events, newState, nil
		}

		// last slot: open the reveal window
		newState.Active = NoSlot
		newState.Phase = PhaseRevealing
		newState.RevealEndsAt = cmd.At.Add(s.Rules.RevealDuration)
		events = append(events, Event{Type: EvtRevealStarted, Round: s.Round, At: cmd.At})
		return events, newState, nil

	case CmdFlashExpired:
		if cmd.Round != s.Round || cmd.Flash != s.FlashSeq || !s.Flashing {
			return nil, s, fmt.Errorf("flash %d/%d: %w", cmd.Round, cmd.Flash, ErrStaleTimer)
		}
		newState := s
		newState.Flashing = false
		return []Event{{Type: EvtFlashCleared, Round: s.Round, Flash: cmd.Flash, At: cmd.At}}, newState, nil

	case CmdRevealExpired:
		if cmd.Round != s.Round || s.Phase != PhaseRevealing {
			return nil, s, fmt.Errorf("reveal %d: %w", cmd.Round, ErrStaleTimer)
		}
		return startRound(s, cmd.Poses, cmd.At)

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

// startRound replaces the sequence wholesale. Any pending flash belongs to the
// discarded round and is dropped with it.
func startRound(s State, poses []int, at time.Time) ([]Event, State, error) {
	if err := validatePoses(poses); err != nil {
		return nil, s, err
	}

	newState := s
	newState.Round = s.Round + 1
	newState.Phase = PhaseInProgress
	newState.Slots = make([]Slot, len(poses))
	for i, id := range poses {
		newState.Slots[i] = Slot{PoseID: id, Status: StatusPending}
	}
	newState.Slots[0].Status = StatusActive
	newState.Active = 0
	newState.Flashing = false
	newState.StartedAt = at
	newState.RevealEndsAt = time.Time{}

	return []Event{{Type: EvtRoundStarted, Round: newState.Round, PoseID: poses[0], At: at}}, newState, nil
}

func validatePoses(poses []int) error {
	if len(poses) != SlotCount {
		return fmt.Errorf("want %d poses, got %d: %w", SlotCount, len(poses), ErrInvalidSequence)
	}
	seen := make(map[int]bool, len(poses))
	for _, id := range poses {
		if id < 0 {
			return fmt.Errorf("pose %d: %w", id, ErrInvalidSequence)
		}
		if seen[id] {
			return fmt.Errorf("pose %d repeated: %w", id, ErrInvalidSequence)
		}
		seen[id] = true
	}
	return nil
}
