package cmn

import "errors"

// Sentinel errors shared across dcseg, loc, prox, and session, each a typed
// value so callers can errors.Is/errors.As against it.
var (
	ErrUnknownServer  = errors.New("lookup: unknown server (peer unreachable or region unresolved)")
	ErrRegionNotFound = errors.New("segmentation: region not found")
	ErrNoConnection   = errors.New("session: no connection to space server")
	ErrQueryNotFound  = errors.New("proximity: query not found")
	ErrObjectNotTracked = errors.New("location cache: object not tracked")
	ErrSeqnoRegression  = errors.New("location cache: seqno regression on authoritative update")
	ErrInvariantBroken  = errors.New("segmentation tree: invariant violated")
	ErrMigrationFailed = errors.New("session: migration failed")
	ErrFailedToConnect = errors.New("session: failed to connect (retry budget exhausted)")
)
