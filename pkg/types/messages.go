package types

// DetectionMessage is what a classifier publishes for one estimator frame,
// one entry per body in the frame.
//
//	{"detections": [{"label": "Candle Pose", "confidence": 0.993}]}
//
// A classifier that reports its full ranking may send results instead; the
// highest-confidence result is used.
//
//	{"detections": [{"results": [{"label": "Candle Pose", "confidence": 0.993}, ...]}]}
type DetectionMessage struct {
	Detections []Detection `json:"detections" msgpack:"detections"`
}

type Detection struct {
	Label      string           `json:"label,omitempty" msgpack:"label,omitempty"`
	Confidence float64          `json:"confidence,omitempty" msgpack:"confidence,omitempty"`
	Results    []Classification `json:"results,omitempty" msgpack:"results,omitempty"`
}

type Classification struct {
	Label      string  `json:"label" msgpack:"label"`
	Confidence float64 `json:"confidence" msgpack:"confidence"`
}
