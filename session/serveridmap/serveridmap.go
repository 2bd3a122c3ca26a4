// Package serveridmap is a minimal reference HTTP server-ID directory:
// GET /<path>?server=<id> returns "<serverid>\n<host>:<port>"; omitting
// server picks at random.
package serveridmap

import (
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/sirikata/space/cmn"
)

// Directory is the in-memory ServerID -> Address4 table the HTTP handler
// serves from.
type Directory struct {
	mu    sync.RWMutex
	addrs map[cmn.ServerID]cmn.Address4
	order []cmn.ServerID
}

func New() *Directory {
	return &Directory{addrs: make(map[cmn.ServerID]cmn.Address4)}
}

func (d *Directory) Set(id cmn.ServerID, addr cmn.Address4) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.addrs[id]; !ok {
		d.order = append(d.order, id)
	}
	d.addrs[id] = addr
}

func (d *Directory) Remove(id cmn.ServerID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.addrs, id)
	for i, s := range d.order {
		if s == id {
			d.order = append(d.order[:i], d.order[i+1:]...)
			break
		}
	}
}

// Lookup returns the address registered for id.
func (d *Directory) Lookup(id cmn.ServerID) (cmn.Address4, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	a, ok := d.addrs[id]
	return a, ok
}

// Random returns an arbitrary currently-registered (ServerID, Address4).
func (d *Directory) Random() (cmn.ServerID, cmn.Address4, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if len(d.order) == 0 {
		return cmn.NoServerID, cmn.Address4{}, false
	}
	id := d.order[rand.Intn(len(d.order))]
	return id, d.addrs[id], true
}

// Handler serves GET /<path>?server=<id> against dir using fasthttp.
func Handler(dir *Directory) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if !ctx.IsGet() {
			ctx.Error("method not allowed", http.StatusMethodNotAllowed)
			return
		}
		q := ctx.QueryArgs()
		if !q.Has("server") {
			id, addr, ok := dir.Random()
			if !ok {
				ctx.Error("no servers registered", http.StatusServiceUnavailable)
				return
			}
			fmt.Fprintf(ctx, "%d\n%s", uint32(id), addr.String())
			return
		}
		raw := string(q.Peek("server"))
		n, err := strconv.ParseUint(raw, 10, 32)
		if err != nil {
			ctx.Error("bad server id", http.StatusBadRequest)
			return
		}
		id := cmn.ServerID(n)
		addr, ok := dir.Lookup(id)
		if !ok {
			ctx.Error("unknown server", http.StatusNotFound)
			return
		}
		fmt.Fprintf(ctx, "%d\n%s", uint32(id), addr.String())
	}
}

// Serve starts a blocking fasthttp server on addr.
func Serve(addr string, dir *Directory) error {
	return fasthttp.ListenAndServe(addr, Handler(dir))
}
