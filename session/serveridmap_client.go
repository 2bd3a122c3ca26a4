package session

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sirikata/space/cmn"
)

// ServerIDMap is the collaborator getAnySpaceConnection consults to turn a
// ServerID into a dialable address, or to pick a server at random when none
// is specified. It is an HTTP Server-ID directory.
type ServerIDMap interface {
	Lookup(id cmn.ServerID) (cmn.Address4, error)
	Random() (cmn.ServerID, cmn.Address4, error)
}

// httpServerIDMap is an HTTP client for the session/serveridmap reference
// server: GET /<path>?server=<id> -> "<serverid>\n<host>:<port>".
type httpServerIDMap struct {
	baseURL string
	client  *http.Client
}

func NewHTTPServerIDMap(baseURL string) ServerIDMap {
	return &httpServerIDMap{baseURL: baseURL, client: &http.Client{Timeout: 2 * time.Second}}
}

func (m *httpServerIDMap) Lookup(id cmn.ServerID) (cmn.Address4, error) {
	_, addr, err := m.fetch(fmt.Sprintf("%s?server=%d", m.baseURL, uint32(id)))
	return addr, err
}

func (m *httpServerIDMap) Random() (cmn.ServerID, cmn.Address4, error) {
	return m.fetch(m.baseURL)
}

func (m *httpServerIDMap) fetch(url string) (cmn.ServerID, cmn.Address4, error) {
	resp, err := m.client.Get(url)
	if err != nil {
		return cmn.NoServerID, cmn.Address4{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return cmn.NoServerID, cmn.Address4{}, fmt.Errorf("serveridmap: http %d", resp.StatusCode)
	}
	buf := make([]byte, 256)
	n, _ := resp.Body.Read(buf)
	lines := strings.SplitN(string(buf[:n]), "\n", 2)
	if len(lines) != 2 {
		return cmn.NoServerID, cmn.Address4{}, fmt.Errorf("serveridmap: malformed reply %q", string(buf[:n]))
	}
	hostPort := strings.SplitN(strings.TrimSpace(lines[1]), ":", 2)
	if len(hostPort) != 2 {
		return cmn.NoServerID, cmn.Address4{}, fmt.Errorf("serveridmap: malformed address %q", lines[1])
	}
	idVal, err := strconv.ParseUint(strings.TrimSpace(lines[0]), 10, 32)
	if err != nil {
		return cmn.NoServerID, cmn.Address4{}, fmt.Errorf("serveridmap: malformed server id %q", lines[0])
	}
	return cmn.ServerID(idVal), cmn.Address4{Host: hostPort[0], Service: hostPort[1]}, nil
}
