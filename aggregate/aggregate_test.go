package aggregate

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirikata/space/cmn"
)

type fakePool struct{}

func (fakePool) FetchMesh(uri string) (string, error) { return "/tmp/" + uri, nil }

type fakeUploader struct {
	mu   sync.Mutex
	uris []string
}

func (u *fakeUploader) Upload(localPath string) (string, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	uri := "uploaded:" + localPath
	u.uris = append(u.uris, uri)
	return uri, nil
}

type fakeSource struct {
	mu     sync.Mutex
	mesh   map[cmn.ObjectReference]string
	bounds map[cmn.ObjectReference]cmn.BoundingSphere
}

func (s *fakeSource) MeshURI(o cmn.ObjectReference) (string, cmn.UpAxis, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	uri, ok := s.mesh[o]
	return uri, cmn.UpAxisY, ok
}

func (s *fakeSource) Bounds(o cmn.ObjectReference) (cmn.BoundingSphere, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bounds[o]
	return b, ok
}

type fakeLSC struct {
	mu   sync.Mutex
	uris map[cmn.ObjectReference]string
}

func (l *fakeLSC) UpdateMesh(o cmn.ObjectReference, seqno uint64, uri string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.uris == nil {
		l.uris = make(map[cmn.ObjectReference]string)
	}
	l.uris[o] = uri
}

func (l *fakeLSC) MaxSeqNo(cmn.ObjectReference) uint64 { return 1 }

func (l *fakeLSC) get(o cmn.ObjectReference) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	u, ok := l.uris[o]
	return u, ok
}

func TestRecomposeUploadsAndPublishesMesh(t *testing.T) {
	parent := cmn.NewObjectReference()
	child := cmn.NewObjectReference()

	source := &fakeSource{
		mesh:   map[cmn.ObjectReference]string{child: "child.mesh"},
		bounds: map[cmn.ObjectReference]cmn.BoundingSphere{
			parent: {Center: cmn.Vector3{}, Radius: 10},
			child:  {Center: cmn.Vector3{X: 1}, Radius: 2},
		},
	}
	uploader := &fakeUploader{}
	lsc := &fakeLSC{}

	m := NewManager(fakePool{}, uploader, source, lsc, 500, 2)
	m.SetChildrenSource(func(p cmn.ObjectReference) []cmn.ObjectReference {
		if p == parent {
			return []cmn.ObjectReference{child}
		}
		return nil
	})

	m.recompose(parent)

	uri, ok := lsc.get(parent)
	require.True(t, ok)
	assert.Contains(t, uri, "uploaded:")
	assert.Len(t, uploader.uris, 1)
}

func TestRunDrainsOnHighWaterMarkAndStop(t *testing.T) {
	parent := cmn.NewObjectReference()
	child := cmn.NewObjectReference()

	source := &fakeSource{
		mesh:   map[cmn.ObjectReference]string{child: "child.mesh"},
		bounds: map[cmn.ObjectReference]cmn.BoundingSphere{
			parent: {Radius: 10},
			child:  {Radius: 2},
		},
	}
	uploader := &fakeUploader{}
	lsc := &fakeLSC{}

	m := NewManager(fakePool{}, uploader, source, lsc, 500, 3)
	m.SetChildrenSource(func(p cmn.ObjectReference) []cmn.ObjectReference {
		return []cmn.ObjectReference{child}
	})

	done := make(chan struct{})
	go func() {
		m.Run()
		close(done)
	}()

	m.Enqueue(Change{Kind: ChildAdded, Parent: parent, Child: child})
	m.Enqueue(Change{Kind: BoundsUpdated, Parent: parent})
	m.Enqueue(Change{Kind: ChildAdded, Parent: parent, Child: child})

	select {
	case <-done:
		t.Fatal("worker exited before Stop")
	case <-time.After(50 * time.Millisecond):
	}

	m.Stop()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not exit after Stop")
	}

	_, ok := lsc.get(parent)
	assert.True(t, ok)
}
