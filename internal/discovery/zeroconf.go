package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

// mDNS browse results all arrive on the one multicast scope.
const mdnsScope = "mdns"

const (
	defaultCycleInterval = 5 * time.Second
	defaultRecordExpiry  = 12 * time.Second
)

// ZeroconfConfig configures the production mDNS backend.
type ZeroconfConfig struct {
	// Logger specifies an optional logger.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
	// Domain is the DNS-SD domain to browse and register in.
	// Defaults to "local.".
	Domain string
	// CycleInterval is how long each browse cycle runs before the network
	// is re-queried with a fresh resolver. Defaults to 5s.
	CycleInterval time.Duration
	// RecordExpiry is how long a record may go unseen before it is treated
	// as departed. Must cover at least two cycles, or a single lost
	// response flaps the registry. Defaults to 12s.
	RecordExpiry time.Duration
}

// Start begins browsing for both service kinds and returns the backend.
// Browsing stops when the backend is closed.
func (c ZeroconfConfig) Start() (*Zeroconf, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	domain := c.Domain
	if domain == "" {
		domain = "local."
	}

	cycle := c.CycleInterval
	if cycle <= 0 {
		cycle = defaultCycleInterval
	}
	expiry := c.RecordExpiry
	if expiry <= 0 {
		expiry = defaultRecordExpiry
	}

	hostname, err := os.Hostname()
	if err != nil {
		return nil, fmt.Errorf("hostname: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	z := &Zeroconf{
		logger:   logger,
		domain:   domain,
		hostFQDN: hostname + "." + strings.TrimSuffix(domain, "."),
		cycle:    cycle,
		expiry:   expiry,
		events:   make(chan Event, 16),
		ctx:      ctx,
		cancel:   cancel,
		owned:    make(map[ServiceKind]string),
	}

	for _, kind := range []ServiceKind{KindClient, KindHost} {
		z.wg.Add(1)
		go z.browse(ctx, kind)
	}

	return z, nil
}

// Zeroconf is the mDNS discovery backend, implementing [Backend] on top of
// grandcat/zeroconf.
//
// The resolver's browse stream delivers each instance once and never
// delivers goodbye packets, so departures cannot be read off the stream
// directly. Instead the backend browses in short cycles, each with a fresh
// resolver so live records are re-delivered, and treats a record unseen for
// longer than the expiry as departed.
type Zeroconf struct {
	logger   *slog.Logger
	domain   string
	hostFQDN string
	cycle    time.Duration
	expiry   time.Duration
	events   chan Event
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup

	mu    sync.Mutex
	owned map[ServiceKind]string
}

// Events implements [Backend].
func (z *Zeroconf) Events() <-chan Event {
	return z.events
}

// Advertise implements [Advertiser]. Name collisions are not reported
// synchronously by mDNS registration; they surface later as [Collision]
// events when a foreign record under our name is browsed.
func (z *Zeroconf) Advertise(_ context.Context, kind ServiceKind, name string, port int, txt []string) (Handle, error) {
	srv, err := zeroconf.Register(name, string(kind), z.domain, port, txt, nil)
	if err != nil {
		return nil, fmt.Errorf("register %s %q: %w", kind, name, err)
	}

	z.mu.Lock()
	z.owned[kind] = name
	z.mu.Unlock()

	h := &zeroconfHandle{backend: z, srv: srv, kind: kind, name: name, port: port, txt: txt}

	// Registration loops back through our own browser on most stacks, but
	// not all; echo the advertisement so the registry always contains our
	// own client record.
	z.wg.Add(1)
	go func() {
		defer z.wg.Done()
		z.send(z.ctx, Published{Kind: kind, Name: name})
		if kind == KindClient {
			z.send(z.ctx, PeerAppeared{Record: h.selfRecord()})
		}
	}()

	return h, nil
}

// Close stops browsing and closes the event stream.
func (z *Zeroconf) Close() error {
	z.cancel()
	z.wg.Wait()
	close(z.events)
	return nil
}

func (z *Zeroconf) isOwned(kind ServiceKind, name string) bool {
	z.mu.Lock()
	defer z.mu.Unlock()
	return z.owned[kind] == name
}

// browse runs browse cycles for one service kind until the backend closes.
// A cycle failing while the backend is still running means mDNS is gone,
// which is fatal to the daemon.
func (z *Zeroconf) browse(ctx context.Context, kind ServiceKind) {
	defer z.wg.Done()

	state := newBrowseState(kind)
	for {
		if err := z.browseCycle(ctx, kind, state); err != nil {
			if ctx.Err() == nil {
				z.send(ctx, ConnectivityLost{Err: err})
			}
			return
		}

		for _, ev := range state.expire(time.Now(), z.expiry) {
			z.logger.Debug("record expired", slog.String("kind", string(kind)))
			z.send(ctx, ev)
		}

		if ctx.Err() != nil {
			return
		}
	}
}

// browseCycle queries the network for one cycle and folds the answers into
// state. The resolver is per-cycle: its stream deduplicates instances for
// its lifetime, so reusing one would hide re-announcements.
func (z *Zeroconf) browseCycle(ctx context.Context, kind ServiceKind, state *browseState) error {
	resolver, err := zeroconf.NewResolver(zeroconf.SelectIPTraffic(zeroconf.IPv4))
	if err != nil {
		return fmt.Errorf("create resolver: %w", err)
	}

	cycleCtx, cancel := context.WithTimeout(ctx, z.cycle)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := resolver.Browse(cycleCtx, string(kind), z.domain, entries); err != nil {
		return fmt.Errorf("browse %s: %w", kind, err)
	}

	for entry := range entries {
		key := Key{Name: entry.Instance, Kind: kind, Scope: mdnsScope}

		if entry.TTL == 0 {
			// A goodbye, should the resolver ever deliver one.
			z.logger.Debug("browse remove", slog.String("key", key.String()))
			z.send(ctx, state.goodbye(entry.Instance))
			continue
		}

		if entry.HostName == "" {
			// Incomplete resolution. Dropping one record is recoverable;
			// the peer is re-queried next cycle.
			z.logger.Warn("dropping unresolved record", slog.String("key", key.String()))
			continue
		}

		self := z.isOwned(kind, entry.Instance)
		if self && strings.TrimSuffix(entry.HostName, ".") != z.hostFQDN {
			// Someone else holds our name.
			z.send(ctx, Collision{Kind: kind, Name: entry.Instance})
			continue
		}

		rec := Record{
			Key:      key,
			Hostname: strings.TrimSuffix(entry.HostName, "."),
			Port:     entry.Port,
			Flags:    Flags{Self: self},
		}
		rec.ParseTXT(entry.Text)

		if ev, ok := state.observe(time.Now(), rec); ok {
			z.send(ctx, ev)
		}
	}

	// The stream closing before the cycle deadline means mDNS is gone.
	if cycleCtx.Err() == nil {
		return fmt.Errorf("browse %s ended", kind)
	}
	return nil
}

func (z *Zeroconf) send(ctx context.Context, ev Event) {
	select {
	case z.events <- ev:
	case <-ctx.Done():
	}
}

type zeroconfHandle struct {
	backend *Zeroconf
	srv     *zeroconf.Server
	kind    ServiceKind
	name    string
	port    int
	txt     []string
}

// Withdraw implements [Handle].
func (h *zeroconfHandle) Withdraw() {
	h.srv.Shutdown()

	z := h.backend
	z.mu.Lock()
	if z.owned[h.kind] == h.name {
		delete(z.owned, h.kind)
	}
	z.mu.Unlock()

	if h.kind == KindClient {
		z.wg.Add(1)
		go func() {
			defer z.wg.Done()
			z.send(z.ctx, PeerRemoved{Key: h.selfRecord().Key})
		}()
	}
}

func (h *zeroconfHandle) selfRecord() Record {
	rec := Record{
		Key:      Key{Name: h.name, Kind: h.kind, Scope: mdnsScope},
		Hostname: h.backend.hostFQDN,
		Port:     h.port,
		Flags:    Flags{Self: true},
	}
	rec.ParseTXT(h.txt)
	return rec
}
