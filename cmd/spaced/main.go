// Command spaced is the space-server daemon: it bootstraps a DCSEG node,
// a Proximity Engine, a Location Service Cache, and a Session Manager
// against flag-configured listen ports and CSEG peers.
/*
 * Copyright (c) 2024-2026, Sirikata Space Authors. All rights reserved.
 */
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/sirikata/space/aggregate"
	"github.com/sirikata/space/cmn"
	"github.com/sirikata/space/cmn/nlog"
	"github.com/sirikata/space/dcseg"
	"github.com/sirikata/space/hk"
	"github.com/sirikata/space/loc"
	"github.com/sirikata/space/prox"
	"github.com/sirikata/space/session"
	"github.com/sirikata/space/stats"
	"github.com/sirikata/space/transport"
)

const version = "0.1.0"

var (
	build     string
	buildtime string

	serverID    uint
	csegID      uint
	csegAddr    string
	csegPeers   string
	sessionAddr string
	serverMapURL string

	handlerType        string
	staticDynamicSplit bool
	mergeEnabled       bool
	splitProbability   float64

	logDir string
)

func init() {
	flag.UintVar(&serverID, "server-id", 1, "this process's ServerID")
	flag.UintVar(&csegID, "cseg-id", 1, "this process's CSEGNodeID")
	flag.StringVar(&csegAddr, "cseg-addr", ":7100", "CSEG TCP listen address")
	flag.StringVar(&csegPeers, "cseg-peers", "", "comma-separated id=host:port CSEG peer list")
	flag.StringVar(&sessionAddr, "session-addr", ":7200", "SST session listen address")
	flag.StringVar(&serverMapURL, "serveridmap-url", "", "HTTP ServerIDMap base URL")

	flag.StringVar(&handlerType, "handler", string(cmn.HandlerBruteForce), "proximity handler: brutef|rtree")
	flag.BoolVar(&staticDynamicSplit, "static-dynamic-split", true, "maintain separate static/dynamic query handlers")
	flag.BoolVar(&mergeEnabled, "cseg-merge-enabled", true, "allow the maintenance sweep to merge siblings, not only split")
	flag.Float64Var(&splitProbability, "cseg-split-probability", 0.5, "per-leaf eligibility roll for split vs merge during maintenance")

	flag.StringVar(&logDir, "log-dir", "", "log directory (empty: no log files are written)")
}

func main() {
	if len(os.Args) == 2 && os.Args[1] == "version" {
		printVer()
		os.Exit(0)
	}
	flag.Parse()

	if err := run(); err != nil {
		nlog.Errorf("spaced: fatal: %v", err)
		os.Exit(1)
	}
}

func run() error {
	nlog.SetLogDirRole(logDir, "spaced")
	nlog.SetTitle(fmt.Sprintf("spaced[%d]", serverID))
	nlog.Infof("spaced starting, version %s (build %s)", version, buildtime)

	cfg := cmn.DefaultConfig()
	cfg.Proximity.HandlerType = cmn.HandlerType(handlerType)
	cfg.Proximity.StaticDynamicSplit = staticDynamicSplit
	cfg.DCSEG.MergeEnabled = mergeEnabled
	cfg.DCSEG.SplitProbability = splitProbability
	cmn.GCO.Put(cfg)

	peers, err := parsePeers(csegPeers)
	if err != nil {
		return fmt.Errorf("parsing -cseg-peers: %w", err)
	}

	metrics := stats.NewRegistry()

	world := cmn.NewBoundingBox(cmn.Vector3{X: -1e6, Y: -1e6, Z: -1e6}, cmn.Vector3{X: 1e6, Y: 1e6, Z: 1e6})
	node := dcseg.NewNode(cmn.CSEGNodeID(csegID), world, cmn.ServerID(serverID), peers, cfg)
	node.SetStats(metrics)

	csegServer, err := dcseg.NewServer(node, csegAddr)
	if err != nil {
		return fmt.Errorf("starting CSEG listener on %s: %w", csegAddr, err)
	}
	node.Subscribe(csegServer)
	node.StartMaintenance()
	go func() {
		if err := csegServer.Serve(); err != nil {
			nlog.Warningf("spaced: CSEG server stopped: %v", err)
		}
	}()

	locCache := loc.New()

	handlerFactory := handlerFactoryFor(cmn.HandlerType(handlerType))
	var delivery prox.Delivery = noopDelivery{} // production wiring hands this to the owning space-server's client registry
	engine := prox.NewEngine(locCache, delivery, cfg.Proximity.StaticSpeedEpsilon, handlerFactory)
	engine.SetStats(metrics)
	engine.StartTicking(cfg)

	aggMgr := aggregate.NewManager(noopTransferPool{}, noopUploader{}, noopMeshSource{}, locCache, 2000, 16)
	go aggMgr.Run()

	var directory session.ServerIDMap
	if serverMapURL != "" {
		directory = session.NewHTTPServerIDMap(serverMapURL)
	} else {
		directory = staticServerIDMap{addr: sessionAddr, id: cmn.ServerID(serverID)}
	}
	dialer := session.TransportDialer{Extra: transport.Extra{IdleTeardown: cfg.Session.IdleTeardown}}
	sessionMgr := session.NewManager(dialer, directory, cfg)
	sessionMgr.SetStats(metrics)

	sstListener, err := transport.Listen("tcp", sessionAddr, transport.Extra{IdleTeardown: cfg.Session.IdleTeardown})
	if err != nil {
		return fmt.Errorf("starting session listener on %s: %w", sessionAddr, err)
	}
	go acceptSessionConns(sstListener)

	go hk.DefaultHK.Run()
	defer hk.DefaultHK.Stop()

	shutdown := make(chan struct{})
	go metrics.LogPeriodically(30*time.Second, shutdown)

	nlog.Infof("spaced ready: server=%d cseg=%d cseg-addr=%s session-addr=%s handler=%s", serverID, csegID, csegAddr, sessionAddr, handlerType)

	waitForShutdown()
	close(shutdown)

	aggMgr.Stop()
	_ = csegServer.Close()
	_ = sstListener.Close()
	nlog.Infof("spaced shut down cleanly")
	nlog.Flush(true)
	return nil
}

func handlerFactoryFor(t cmn.HandlerType) func() prox.Handler {
	switch t {
	case cmn.HandlerRTree, cmn.HandlerRTreeDist:
		return prox.NewRTreeHandler
	default:
		return prox.NewBruteForceHandler
	}
}

func parsePeers(spec string) (map[cmn.CSEGNodeID]cmn.Address4, error) {
	peers := make(map[cmn.CSEGNodeID]cmn.Address4)
	if spec == "" {
		return peers, nil
	}
	for _, entry := range strings.Split(spec, ",") {
		parts := strings.SplitN(entry, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("malformed peer entry %q (want id=host:port)", entry)
		}
		idNum, err := strconv.ParseUint(parts[0], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed peer id %q: %w", parts[0], err)
		}
		hostPort := strings.SplitN(parts[1], ":", 2)
		if len(hostPort) != 2 {
			return nil, fmt.Errorf("malformed peer address %q (want host:port)", parts[1])
		}
		peers[cmn.CSEGNodeID(idNum)] = cmn.Address4{Host: hostPort[0], Service: hostPort[1]}
	}
	return peers, nil
}

func acceptSessionConns(ln *transport.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			nlog.Warningf("spaced: session listener closed: %v", err)
			return
		}
		_ = conn // production wiring hands this to session.Manager's inbound accept path
	}
}

func waitForShutdown() {
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-c
}

func printVer() {
	fmt.Printf("spaced version %s (build %s)\n", version, buildtime)
}

// staticServerIDMap is the no-directory-service fallback: a single
// hardcoded self-address, adequate for a single-server bring-up without a
// running session/serveridmap instance.
type staticServerIDMap struct {
	addr string
	id   cmn.ServerID
}

func (s staticServerIDMap) Lookup(id cmn.ServerID) (cmn.Address4, error) {
	if id != s.id {
		return cmn.Address4{}, cmn.ErrUnknownServer
	}
	host, port, ok := strings.Cut(s.addr, ":")
	if !ok {
		return cmn.Address4{}, fmt.Errorf("malformed session address %q", s.addr)
	}
	if host == "" {
		host = "127.0.0.1"
	}
	return cmn.Address4{Host: host, Service: port}, nil
}

func (s staticServerIDMap) Random() (cmn.ServerID, cmn.Address4, error) {
	addr, err := s.Lookup(s.id)
	return s.id, addr, err
}

type noopDelivery struct{}

func (noopDelivery) DeliverProximityUpdate(prox.ProximityUpdate) {}

type noopTransferPool struct{}

func (noopTransferPool) FetchMesh(uri string) (string, error) { return "", fmt.Errorf("no transfer pool configured") }

type noopUploader struct{}

func (noopUploader) Upload(localPath string) (string, error) { return "", fmt.Errorf("no uploader configured") }

type noopMeshSource struct{}

func (noopMeshSource) MeshURI(cmn.ObjectReference) (string, cmn.UpAxis, bool) { return "", cmn.UpAxisY, false }
func (noopMeshSource) Bounds(cmn.ObjectReference) (cmn.BoundingSphere, bool)  { return cmn.BoundingSphere{}, false }
