// Package launcher implements the peer coordination core: the ordered peer
// registry, the debounced host election, the local advertisement publisher,
// and the game session supervisor. Everything runs on one event-loop
// goroutine; none of the state here is locked.
package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/JPEWdev/oe-doom-launcher/internal/config"
	"github.com/JPEWdev/oe-doom-launcher/internal/discovery"
)

// Config configures a [Launcher].
type Config struct {
	// Logger specifies an optional logger.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
	// Backend is the discovery layer.
	Backend discovery.Backend
	// Starter spawns game processes.
	Starter Starter
	// Game is the launcher configuration.
	Game config.Config
	// InstanceName is the stable name both local services advertise under.
	InstanceName string
}

// NewLauncher wires the coordination context: registry, publisher, session
// and election timer, all owned by the run loop.
func (c Config) NewLauncher() *Launcher {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	pub := NewPublisher(c.Backend, logger.With(slog.String("component", "publisher")),
		&LocalService{
			Kind: discovery.KindClient,
			Name: c.InstanceName,
			Port: c.Game.Multiplayer.Port,
			TXT:  discovery.ClientTXT(c.Game.Multiplayer.CanHost),
		},
		&LocalService{
			Kind: discovery.KindHost,
			Name: c.InstanceName,
			Port: c.Game.Multiplayer.Port,
			TXT:  discovery.HostTXT(c.Game.Multiplayer.WAD),
		},
	)

	sess := SessionConfig{
		Logger:    logger.With(slog.String("component", "session")),
		Starter:   c.Starter,
		Publisher: pub,
		Game:      c.Game,
	}.NewSession()

	return &Launcher{
		logger:  logger,
		backend: c.Backend,
		wait:    c.Game.Multiplayer.Wait,
		reg:     &Registry{},
		pub:     pub,
		sess:    sess,
	}
}

// Launcher is the coordination context. All mutation happens on the
// goroutine running [Launcher.Run].
type Launcher struct {
	logger  *slog.Logger
	backend discovery.Backend
	wait    time.Duration

	reg  *Registry
	pub  *Publisher
	sess *Session

	timer  *time.Timer
	timerC <-chan time.Time
}

// Run publishes the client advertisement, starts the solo fallback and then
// serves discovery, timer and child-exit events until ctx is cancelled or a
// fatal error occurs.
func (l *Launcher) Run(ctx context.Context) error {
	if err := l.pub.Publish(ctx, discovery.KindClient); err != nil {
		return err
	}
	if err := l.sess.StartSinglePlayer(); err != nil {
		return err
	}

	defer l.shutdown()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-l.backend.Events():
			if !ok {
				return errors.New("launcher: discovery event stream closed")
			}
			if err := l.handle(ctx, ev); err != nil {
				return err
			}

		case <-l.timerC:
			l.timer = nil
			l.timerC = nil
			if err := l.runElection(ctx); err != nil {
				return err
			}

		case err := <-l.sess.ExitC():
			if err := l.sess.HandleExit(err); err != nil {
				return err
			}
		}
	}
}

// handle dispatches one discovery event.
func (l *Launcher) handle(ctx context.Context, ev discovery.Event) error {
	switch ev := ev.(type) {
	case discovery.PeerAppeared:
		l.handlePeerAppeared(ev.Record)
		return nil

	case discovery.PeerRemoved:
		l.handlePeerRemoved(ev.Key)
		return nil

	case discovery.HostAnnounced:
		return l.handleHostAnnounced(ev.Record)

	case discovery.HostLost:
		return l.handleHostLost(ev.Key)

	case discovery.Published:
		l.pub.HandleEstablished(ev.Kind, ev.Name)
		return nil

	case discovery.Collision:
		return l.pub.HandleCollision(ctx, ev.Kind, ev.Name)

	case discovery.ConnectivityLost:
		return fmt.Errorf("launcher: discovery connectivity lost: %w", ev.Err)

	default:
		l.logger.Warn("unknown discovery event", slog.Any("event", ev))
		return nil
	}
}

func (l *Launcher) handlePeerAppeared(rec discovery.Record) {
	isNew, foreign := l.reg.Upsert(rec)

	l.logger.Info("client seen",
		slog.String("name", rec.Key.Name),
		slog.String("host", rec.Hostname),
		slog.Bool("can_host", rec.CanHost),
		slog.Bool("self", rec.Flags.Self),
		slog.Bool("new", isNew))

	// Churn from a foreign peer restarts the quorum wait. Our own records
	// must not, or publishing would trigger elections forever.
	if foreign {
		l.rearm()
	}
}

func (l *Launcher) handlePeerRemoved(key discovery.Key) {
	existed, foreign := l.reg.Remove(key)
	if !existed {
		return
	}

	l.logger.Info("client removed",
		slog.String("name", key.Name),
		slog.Bool("self", !foreign))

	if foreign {
		l.rearm()
	}
}

// handleHostAnnounced joins a foreign host immediately. The announcement is
// the authoritative election outcome; any pending local decision is
// cancelled.
func (l *Launcher) handleHostAnnounced(rec discovery.Record) error {
	if rec.Flags.Self {
		return nil
	}

	l.logger.Info("host announced",
		slog.String("name", rec.Key.Name),
		slog.String("host", rec.Hostname),
		slog.String("wad", rec.WAD))

	l.disarm()
	return l.sess.StartJoin(rec)
}

// handleHostLost falls back to solo and restarts the election when the host
// we are joined to disappears.
func (l *Launcher) handleHostLost(key discovery.Key) error {
	cur, ok := l.sess.CurrentHost()
	if !ok || cur.Key != key {
		return nil
	}

	l.logger.Info("current host lost", slog.String("name", key.Name))

	if err := l.sess.StartSinglePlayer(); err != nil {
		return err
	}
	l.rearm()
	return nil
}

// runElection evaluates the settled registry once the quorum wait elapses.
func (l *Launcher) runElection(ctx context.Context) error {
	l.logger.Info("quorum wait elapsed")

	best, ok := l.reg.Best()
	peers := l.reg.ForeignCount()

	switch {
	case !ok || !best.CanHost:
		l.logger.Info("no suitable hosts")
		return l.sess.StartSinglePlayer()

	case best.Flags.Self:
		if peers > 0 {
			l.logger.Info("elected as host", slog.Int("peers", peers))
			return l.sess.StartHost(ctx, peers+1)
		}
		l.logger.Info("no peers found")
		return l.sess.StartSinglePlayer()

	default:
		// A better host exists; it will announce itself when its own
		// timer fires.
		l.logger.Info("waiting for elected host",
			slog.String("name", best.Key.Name),
			slog.String("host", best.Hostname))
		return nil
	}
}

// rearm restarts the quorum-wait timer, discarding any pending fire.
func (l *Launcher) rearm() {
	if l.timer != nil {
		l.timer.Stop()
	}
	l.timer = time.NewTimer(l.wait)
	l.timerC = l.timer.C
}

// disarm cancels the pending election, if any.
func (l *Launcher) disarm() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.timerC = nil
}

func (l *Launcher) shutdown() {
	l.disarm()
	l.pub.Unpublish(discovery.KindHost)
	l.pub.Unpublish(discovery.KindClient)
	l.sess.Shutdown()
}
