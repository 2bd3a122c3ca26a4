// Package motionpath replays recorded object trajectories as a sequence of
// TimedMotionVector updates, for feeding load-test and benchmark tooling
// into the proximity engine. The trace format follows QuakeMotionPath,
// sourced from Quake III OpenArena traces.
package motionpath

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/sirikata/space/cmn"
)

// Path is an ordered, immutable sequence of motion updates, queryable by
// time like the original's at(Time) and nextUpdate(Time).
type Path struct {
	updates []cmn.TimedMotionVector
}

// Initial returns the first recorded update, or the zero value if the path
// is empty.
func (p *Path) Initial() cmn.TimedMotionVector {
	if len(p.updates) == 0 {
		return cmn.TimedMotionVector{}
	}
	return p.updates[0]
}

// At returns the update in effect at t: the last recorded update whose T0 is
// <= t, extrapolated forward to t.
func (p *Path) At(t cmn.Time) cmn.TimedMotionVector {
	var cur cmn.TimedMotionVector
	for _, u := range p.updates {
		if u.T0 > t {
			break
		}
		cur = u
	}
	return cmn.NewTimedMotionVector(t, cur.Extrapolate(t), cur.Velocity)
}

// NextUpdate returns the first recorded update strictly after t, if any.
func (p *Path) NextUpdate(t cmn.Time) (cmn.TimedMotionVector, bool) {
	for _, u := range p.updates {
		if u.T0 > t {
			return u, true
		}
	}
	return cmn.TimedMotionVector{}, false
}

// ParseQuakeTrace reads a Quake III OpenArena position trace for the given
// object id, scaling positions by scaleDown and clamping them into region.
// Trace lines come in pairs: "<id> <time>" followed by "<x> <y> <z>".
func ParseQuakeTrace(r io.Reader, id uint32, scaleDown float32, region cmn.BoundingBox) (*Path, error) {
	sc := bufio.NewScanner(r)
	var updates []cmn.TimedMotionVector
	var prevTime float64
	var havePrev bool
	var prevPos cmn.Vector3

	for sc.Scan() {
		header := strings.Fields(sc.Text())
		if len(header) < 2 {
			continue
		}
		lineID, err := strconv.ParseUint(header[0], 10, 32)
		if err != nil || uint32(lineID) != id {
			if sc.Scan() {
				// skip the paired coordinate line for a non-matching id
			}
			continue
		}
		t, err := strconv.ParseFloat(header[1], 64)
		if err != nil {
			return nil, fmt.Errorf("motionpath: bad time field %q", header[1])
		}
		if !sc.Scan() {
			break
		}
		coords := strings.Fields(sc.Text())
		if len(coords) < 3 {
			return nil, fmt.Errorf("motionpath: malformed coordinate line %q", sc.Text())
		}
		x, _ := strconv.ParseFloat(coords[0], 32)
		y, _ := strconv.ParseFloat(coords[1], 32)
		z, _ := strconv.ParseFloat(coords[2], 32)
		pos := region.Clamp(cmn.Vector3{
			X: float32(x) * scaleDown,
			Y: float32(y) * scaleDown,
			Z: float32(z) * scaleDown,
		})

		var vel cmn.Vector3
		if havePrev && t > prevTime {
			dt := float32(t - prevTime)
			vel = pos.Sub(prevPos).Scale(1 / dt)
		}
		updates = append(updates, cmn.NewTimedMotionVector(cmn.Time(t), pos, vel))
		prevTime, prevPos, havePrev = t, pos, true
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &Path{updates: updates}, nil
}
