package prox

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/sirikata/space/cmn"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// wireParams is the over-the-wire query-parameter JSON object:
// `{ "angle": float, "max_results": uint }`.
type wireParams struct {
	Angle      *float64 `json:"angle,omitempty"`
	MaxResults *int     `json:"max_results,omitempty"`
}

// ParamUpdate is the decoded, semantically-resolved form of wireParams.
type ParamUpdate struct {
	Angle        cmn.SolidAngle
	MaxResults   int
	KeepAngle    bool // NoUpdateSolidAngle sentinel: caller must not register if nothing is registered yet
	KeepResults  bool
}

// NoUpdateMaxResultsWire is the wire sentinel for "keep previous" on
// max_results: INT_MAX+1.
const NoUpdateMaxResultsWire = int64(1) << 31

// DecodeParams parses the wire JSON object. A missing angle resolves to
// SolidAngleMin rather than literally SolidAngleMax: both denote "no
// filtering, accept everything" under this implementation's visibility
// test (apparent solid angle >= threshold), so the zero value already
// means "everything" and doubles as NoUpdateSolidAngle's numeric value --
// the two concepts only diverge at the registration call site, which must
// refuse to (re)register when nothing has been registered yet and the
// caller only sent the keep-previous sentinel.
func DecodeParams(data []byte) (ParamUpdate, error) {
	var w wireParams
	if err := json.Unmarshal(data, &w); err != nil {
		return ParamUpdate{}, err
	}
	out := ParamUpdate{Angle: cmn.SolidAngleMin, MaxResults: NoUpdateMaxResults}
	if w.Angle == nil {
		out.KeepAngle = false // missing angle means "everything", a real (non-keep) value
	} else if *w.Angle <= float64(NoUpdateSolidAngle) {
		out.KeepAngle = true
	} else {
		out.Angle = cmn.SolidAngle(*w.Angle)
	}
	if w.MaxResults == nil {
		out.MaxResults = NoUpdateMaxResults
	} else if int64(*w.MaxResults) >= NoUpdateMaxResultsWire {
		out.KeepResults = true
	} else {
		out.MaxResults = *w.MaxResults
	}
	return out, nil
}
