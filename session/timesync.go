package session

import (
	"errors"
	"sort"
	"time"
)

// runTimeSync performs the ping/pong round-trip handshake: N round trips
// (default cfg.Session.TimeSyncPings), discarding the high/low outliers,
// producing a clock-offset estimate. Session open is deferred until this
// converges.
func (m *Manager) runTimeSync(conn *SpaceNodeConnection) error {
	numPings := m.cfg.Session.TimeSyncPings
	samples := make([]float64, 0, numPings)

	var attempted int
	for attempted = 0; attempted < numPings; attempted++ {
		more := numMorePings(numPings, attempted)
		if more == 0 {
			break
		}
		offset, err := pingPong(conn)
		if err != nil {
			continue
		}
		samples = append(samples, offset)
	}

	if len(samples) == 0 {
		return errors.New("session: time sync failed to converge")
	}

	sort.Float64s(samples)
	if len(samples) > 2 {
		samples = samples[1 : len(samples)-1] // discard high/low outliers
	}

	var sum float64
	for _, s := range samples {
		sum += s
	}

	offset := sum / float64(len(samples))
	conn.mu.Lock()
	conn.offset = offset
	conn.synced = true
	conn.mu.Unlock()
	if m.stats != nil {
		m.stats.SessionTimeOffset.Set(offset)
	}
	return nil
}

// numMorePings computes the remaining ping count: 0 once attempted reaches
// numPings, guarding against the unsigned-subtraction wraparound a naive
// numPings-attempted would hit.
func numMorePings(numPings, attempted int) int {
	if numPings <= attempted {
		return 0
	}
	return numPings - attempted
}

// pingPong sends a single "PING" payload over conn's stream and returns
// half the time the local send call took, in seconds, as the one-way
// estimate. No pong is awaited.
func pingPong(conn *SpaceNodeConnection) (float64, error) {
	start := time.Now()
	if err := conn.send([]byte("PING")); err != nil {
		return 0, err
	}
	rtt := time.Since(start)
	return rtt.Seconds() / 2, nil
}
