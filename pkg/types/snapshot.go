package types

import "time"

// SnapshotView is what a renderer draws from. It is read-only: the service
// never expects anything back from the renderer.
type SnapshotView struct {
	Kiosk        string     `json:"kiosk"`
	Version      int        `json:"version"`
	Round        uint64     `json:"round"`
	Slots        []SlotView `json:"slots"`
	ActiveSlot   int        `json:"active_slot"` // -1 while revealing
	Revealing    bool       `json:"revealing"`
	Flashing     bool       `json:"flashing"`
	RevealEndsAt *time.Time `json:"reveal_ends_at,omitempty"`
	Hint         string     `json:"hint,omitempty"` // asset of the pose to perform, empty while revealing
}

type SlotView struct {
	PoseID   int    `json:"pose_id"`
	PoseName string `json:"pose_name"`
	Asset    string `json:"asset"`
	Status   string `json:"status"` // "pending" | "active" | "completed"
}
