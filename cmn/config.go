// Package cmn provides the identifiers, geometry primitives, and process
// configuration shared by every component of the space core: DCSEG, the
// proximity engine, the location cache, and the session manager.
package cmn

import (
	"sync/atomic"
	"time"
)

// HandlerType selects the spatial index backing a query handler instance.
type HandlerType string

const (
	HandlerBruteForce HandlerType = "brutef"
	HandlerRTree      HandlerType = "rtree"
	HandlerDist       HandlerType = "dist"
	HandlerRTreeDist  HandlerType = "rtreedist"
)

// Config is the single process-wide configuration object: one struct with
// JSON tags. This module has no config-file loader; cmd/spaced starts from
// DefaultConfig and applies its CLI flags on top.
type Config struct {
	DCSEG struct {
		MaintenanceInterval time.Duration `json:"maintenance_interval"` // default 15s
		SplitProbability    float64       `json:"split_probability"`   // eligibility roll for a split vs merge
		MergeEnabled        bool          `json:"merge_enabled"`       // both split and merge paths implemented; this toggles merge
		BootstrapCutoff     int           `json:"bootstrap_cutoff"`    // depth-limited upper-tree traversal cutoff, default 3
		MaxServerRegionsChanged int       `json:"max_server_regions_changed"`
		MaxBBoxListSize     int           `json:"max_bbox_list_size"`
	} `json:"dcseg"`

	Proximity struct {
		TickInterval          time.Duration `json:"tick_interval"`           // default 100ms
		StaticRebuildInterval time.Duration `json:"static_rebuild_interval"`  // default 3600s
		DynamicRebuildInterval time.Duration `json:"dynamic_rebuild_interval"` // default 3600s
		HandlerType           HandlerType   `json:"handler_type"`
		StaticDynamicSplit    bool          `json:"static_dynamic_split"`
		StaticSpeedEpsilon    float32       `json:"static_speed_epsilon"`
	} `json:"proximity"`

	Session struct {
		ConnectRetryBudget int           `json:"connect_retry_budget"`
		TimeSyncPings      int           `json:"time_sync_pings"` // default 4 round trips
		IdleTeardown       time.Duration `json:"idle_teardown"`
	} `json:"session"`

	Log struct {
		Dir   string `json:"dir"`
		Level int    `json:"level"`
	} `json:"log"`
}

// DefaultConfig returns the built-in defaults that cmd/spaced starts from
// before applying CLI flags.
func DefaultConfig() *Config {
	c := &Config{}
	c.DCSEG.MaintenanceInterval = 15 * time.Second
	c.DCSEG.SplitProbability = 0.5
	c.DCSEG.MergeEnabled = true
	c.DCSEG.BootstrapCutoff = 3
	c.DCSEG.MaxServerRegionsChanged = 64
	c.DCSEG.MaxBBoxListSize = 256

	c.Proximity.TickInterval = 100 * time.Millisecond
	c.Proximity.StaticRebuildInterval = 3600 * time.Second
	c.Proximity.DynamicRebuildInterval = 3600 * time.Second
	c.Proximity.HandlerType = HandlerBruteForce
	c.Proximity.StaticDynamicSplit = true
	c.Proximity.StaticSpeedEpsilon = 1e-3

	c.Session.ConnectRetryBudget = 3
	c.Session.TimeSyncPings = 4
	c.Session.IdleTeardown = 30 * time.Second
	return c
}

// GCO is the global config owner: a single atomically swappable pointer so
// readers never observe a half-updated Config.
var GCO = newGco()

type gco struct {
	cur atomic.Pointer[Config]
}

func newGco() *gco {
	g := &gco{}
	g.cur.Store(DefaultConfig())
	return g
}

func (g *gco) Get() *Config   { return g.cur.Load() }
func (g *gco) Put(c *Config) { g.cur.Store(c) }
