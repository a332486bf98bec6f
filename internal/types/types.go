package types

import (
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/catalog"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/kiosk"
	pub "github.com/DoyleJ11/pose-reveal-kiosk/pkg/types"
)

type ClientMessage struct {
	Type       string          `json:"type"` // "Detection"
	Detections []pub.Detection `json:"detections,omitempty"`
}

type ServerMessage struct {
	Type     string            `json:"type"` // "StateSnapshot" | "Error"
	Version  int               `json:"version,omitempty"`
	Snapshot *pub.SnapshotView `json:"snapshot,omitempty"`
	Error    string            `json:"error,omitempty"`
}

// NewSnapshotView resolves pose IDs against the catalog for the renderer.
func NewSnapshotView(snap kiosk.Snapshot, cat *catalog.Catalog) pub.SnapshotView {
	s := snap.State
	v := pub.SnapshotView{
		Kiosk:      snap.Code,
		Version:    snap.Version,
		Round:      s.Round,
		Slots:      make([]pub.SlotView, len(s.Slots)),
		ActiveSlot: s.Active,
		Revealing:  s.Revealing(),
		Flashing:   s.Flashing,
	}
	for i, slot := range s.Slots {
		p, _ := cat.Pose(slot.PoseID)
		v.Slots[i] = pub.SlotView{
			PoseID:   slot.PoseID,
			PoseName: p.Name,
			Asset:    p.Asset,
			Status:   string(slot.Status),
		}
	}
	if s.Revealing() {
		ends := s.RevealEndsAt
		v.RevealEndsAt = &ends
	} else if id, ok := s.ActivePose(); ok {
		p, _ := cat.Pose(id)
		v.Hint = p.Asset
	}
	return v
}
