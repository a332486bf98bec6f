package feed

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/DoyleJ11/pose-reveal-kiosk/internal/catalog"
	"github.com/DoyleJ11/pose-reveal-kiosk/internal/engine"
	"github.com/DoyleJ11/pose-reveal-kiosk/pkg/types"
)

var ErrUnknownCodec = errors.New("unknown payload codec")

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

func ValidCodec(codec string) bool {
	return codec == CodecJSON || codec == CodecMsgpack
}

func Decode(codec string, payload []byte) (types.DetectionMessage, error) {
	var msg types.DetectionMessage
	switch codec {
	case CodecJSON:
		if err := json.Unmarshal(payload, &msg); err != nil {
			return msg, fmt.Errorf("json: %w", err)
		}
	case CodecMsgpack:
		if err := msgpack.Unmarshal(payload, &msg); err != nil {
			return msg, fmt.Errorf("msgpack: %w", err)
		}
	default:
		return msg, fmt.Errorf("%q: %w", codec, ErrUnknownCodec)
	}
	return msg, nil
}

// ToSamples maps one frame's detections onto pose IDs. Entries with a label
// outside the catalog or a confidence outside [0,1] are noise: they are
// dropped and counted. An empty label means nothing was recognised and is
// dropped without counting.
func ToSamples(cat *catalog.Catalog, msg types.DetectionMessage) (samples []engine.Sample, malformed int) {
	for _, d := range msg.Detections {
		label, confidence := top(d)
		if label == "" {
			continue
		}
		if math.IsNaN(confidence) || confidence < 0 || confidence > 1 {
			malformed++
			continue
		}
		id, ok := cat.Lookup(label)
		if !ok {
			malformed++
			continue
		}
		samples = append(samples, engine.Sample{PoseID: id, Confidence: confidence})
	}
	return samples, malformed
}

func top(d types.Detection) (string, float64) {
	if len(d.Results) == 0 {
		return d.Label, d.Confidence
	}
	best := d.Results[0]
	for _, r := range d.Results[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}
	return best.Label, best.Confidence
}
