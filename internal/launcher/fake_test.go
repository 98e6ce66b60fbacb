package launcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JPEWdev/oe-doom-launcher/internal/discovery"
)

// fakeBackend is an in-memory discovery layer. Tests feed events into the
// channel and inspect what was advertised.
type fakeBackend struct {
	events chan discovery.Event

	mu         sync.Mutex
	advertised []*fakeHandle
	// colliding names fail Advertise with ErrNameCollision.
	colliding map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		events:    make(chan discovery.Event, 16),
		colliding: make(map[string]bool),
	}
}

func (b *fakeBackend) Advertise(_ context.Context, kind discovery.ServiceKind, name string, port int, txt []string) (discovery.Handle, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.colliding[name] {
		return nil, discovery.ErrNameCollision
	}

	h := &fakeHandle{kind: kind, name: name, port: port, txt: txt}
	b.advertised = append(b.advertised, h)
	return h, nil
}

func (b *fakeBackend) Events() <-chan discovery.Event {
	return b.events
}

func (b *fakeBackend) Close() error {
	close(b.events)
	return nil
}

// active returns the advertised, not yet withdrawn handles of a kind.
func (b *fakeBackend) active(kind discovery.ServiceKind) []*fakeHandle {
	b.mu.Lock()
	defer b.mu.Unlock()

	var hs []*fakeHandle
	for _, h := range b.advertised {
		if h.kind == kind && !h.withdrawn {
			hs = append(hs, h)
		}
	}
	return hs
}

type fakeHandle struct {
	kind      discovery.ServiceKind
	name      string
	port      int
	txt       []string
	withdrawn bool
	withdraws int
}

func (h *fakeHandle) Withdraw() {
	h.withdrawn = true
	h.withdraws++
}

// fakeStarter records spawned processes without running anything.
type fakeStarter struct {
	mu      sync.Mutex
	procs   []*fakeProc
	started chan *fakeProc
	failErr error
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{started: make(chan *fakeProc, 16)}
}

func (s *fakeStarter) Start(argv []string) (Proc, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return nil, s.failErr
	}

	p := &fakeProc{pid: 1000 + len(s.procs), argv: argv, done: make(chan error, 1)}
	s.procs = append(s.procs, p)
	s.started <- p
	return p, nil
}

func (s *fakeStarter) last() *fakeProc {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}

func (s *fakeStarter) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.procs)
}

type fakeProc struct {
	pid  int
	argv []string
	done chan error
	once sync.Once
}

func (p *fakeProc) PID() int {
	return p.pid
}

// Stop simulates the child dying promptly on SIGINT.
func (p *fakeProc) Stop() error {
	p.exit(nil)
	return nil
}

func (p *fakeProc) Done() <-chan error {
	return p.done
}

func (p *fakeProc) exit(err error) {
	p.once.Do(func() {
		p.done <- err
		close(p.done)
	})
}

// clientRecord builds a client-kind record for tests.
func clientRecord(name string, canHost, self bool) discovery.Record {
	return discovery.Record{
		Key:      discovery.Key{Name: name, Kind: discovery.KindClient, Scope: "test"},
		Hostname: fmt.Sprintf("%s.local", name),
		Port:     5029,
		Flags:    discovery.Flags{Self: self},
		CanHost:  canHost,
	}
}

// hostRecord builds a host-kind record for tests.
func hostRecord(name, wad string, self bool) discovery.Record {
	return discovery.Record{
		Key:      discovery.Key{Name: name, Kind: discovery.KindHost, Scope: "test"},
		Hostname: fmt.Sprintf("%s.local", name),
		Port:     5029,
		Flags:    discovery.Flags{Self: self},
		WAD:      wad,
	}
}
