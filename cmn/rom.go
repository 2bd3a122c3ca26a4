/*
 * Copyright (c) 2024-2026, Sirikata Space Authors. All rights reserved.
 */
package cmn

import "time"

// readMostly holds a copy of a handful of config values (tick interval,
// handler type, split probability, static/dynamic split). Rom is filled
// from GCO's config at package init; GCO.Put does not refresh it, and no
// package in this module reads it.
type readMostly struct {
	tick         time.Duration
	handler      HandlerType
	splitProb    float64
	staticDyn    bool
}

var Rom readMostly

func (rom *readMostly) Set(cfg *Config) {
	rom.tick = cfg.Proximity.TickInterval
	rom.handler = cfg.Proximity.HandlerType
	rom.splitProb = cfg.DCSEG.SplitProbability
	rom.staticDyn = cfg.Proximity.StaticDynamicSplit
}

func (rom *readMostly) TickInterval() time.Duration { return rom.tick }
func (rom *readMostly) HandlerType() HandlerType    { return rom.handler }
func (rom *readMostly) SplitProbability() float64   { return rom.splitProb }
func (rom *readMostly) StaticDynamicSplit() bool     { return rom.staticDyn }

func init() { Rom.Set(GCO.Get()) }
