package launcher

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/JPEWdev/oe-doom-launcher/internal/config"
	"github.com/JPEWdev/oe-doom-launcher/internal/discovery"
)

// SessionState is what the local game process is currently doing.
type SessionState int

const (
	// SessionIdle means no game has been started yet.
	SessionIdle SessionState = iota
	SessionSinglePlayer
	SessionConnecting
	SessionHosting
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionSinglePlayer:
		return "single-player"
	case SessionConnecting:
		return "connecting"
	case SessionHosting:
		return "hosting"
	default:
		return fmt.Sprintf("session(%d)", int(s))
	}
}

// SessionConfig configures a [Session].
type SessionConfig struct {
	// Logger specifies an optional logger.
	// If nil, [slog.Default] will be used.
	Logger *slog.Logger
	// Starter spawns the game processes.
	Starter Starter
	// Publisher owns the host advertisement started and stopped with
	// hosted sessions.
	Publisher *Publisher
	// Game is the launcher configuration the command lines are built from.
	Game config.Config
}

// NewSession creates the session controller. It owns at most one child game
// process at a time and is confined to the coordination loop.
func (c SessionConfig) NewSession() *Session {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Session{
		logger:  logger,
		starter: c.Starter,
		pub:     c.Publisher,
		game:    c.Game,
	}
}

// Session decides which game process runs from the current role and
// supervises it.
type Session struct {
	logger  *slog.Logger
	starter Starter
	pub     *Publisher
	game    config.Config

	state       SessionState
	proc        Proc
	currentHost *discovery.Record
}

// State returns the current session state.
func (s *Session) State() SessionState {
	return s.state
}

// CurrentHost returns the host record this instance is joined to, if any.
func (s *Session) CurrentHost() (discovery.Record, bool) {
	if s.currentHost == nil {
		return discovery.Record{}, false
	}
	return *s.currentHost, true
}

// StartSinglePlayer launches the solo fallback session. No-op when a solo
// game is already running.
func (s *Session) StartSinglePlayer() error {
	s.pub.Unpublish(discovery.KindHost)
	s.currentHost = nil

	if s.state == SessionSinglePlayer && s.proc != nil {
		return nil
	}

	s.logger.Info("launching single player game")

	argv := []string{s.game.ZDoom, "-iwad", s.game.Singleplayer.WAD}
	if s.game.Singleplayer.Config != "" {
		argv = append(argv, "-config", s.game.Singleplayer.Config)
	}

	if err := s.launch(argv); err != nil {
		return err
	}

	s.state = SessionSinglePlayer
	return nil
}

// StartJoin launches a client session joining the given host.
func (s *Session) StartJoin(host discovery.Record) error {
	s.pub.Unpublish(discovery.KindHost)
	s.currentHost = &host

	s.logger.Info("connecting to host",
		slog.String("host", host.Hostname),
		slog.Int("port", host.Port))

	argv := []string{
		s.game.ZDoom,
		"-iwad", host.WAD,
		"-join", host.Hostname,
		"-port", strconv.Itoa(host.Port),
	}
	if s.game.Multiplayer.Config != "" {
		argv = append(argv, "-config", s.game.Multiplayer.Config)
	}

	if err := s.launch(argv); err != nil {
		return err
	}

	s.state = SessionConnecting
	return nil
}

// StartHost launches a hosted deathmatch for the given total player count
// and advertises the host service.
func (s *Session) StartHost(ctx context.Context, players int) error {
	s.currentHost = nil

	s.logger.Info("hosting game", slog.Int("players", players))

	argv := []string{
		s.game.ZDoom,
		"-iwad", s.game.Multiplayer.WAD,
		"-deathmatch",
		"+map", s.game.Multiplayer.Map,
		"-host", strconv.Itoa(players),
		"-port", strconv.Itoa(s.game.Multiplayer.Port),
	}
	if s.game.Multiplayer.Config != "" {
		argv = append(argv, "-config", s.game.Multiplayer.Config)
	}

	if err := s.launch(argv); err != nil {
		return err
	}

	s.state = SessionHosting

	return s.pub.Publish(ctx, discovery.KindHost)
}

// ExitC returns the exit channel of the tracked process, or nil when no
// process is live. A nil channel blocks in select, which is the point.
func (s *Session) ExitC() <-chan error {
	if s.proc == nil {
		return nil
	}
	return s.proc.Done()
}

// HandleExit records the tracked process exit. A solo session is restarted
// immediately; other roles stay down until the next election event.
func (s *Session) HandleExit(err error) error {
	pid := s.proc.PID()
	s.proc = nil

	if err != nil {
		s.logger.Warn("child exited", slog.Int("pid", pid), slog.Any("error", err))
	} else {
		s.logger.Info("child exited", slog.Int("pid", pid))
	}

	if s.state == SessionSinglePlayer {
		return s.StartSinglePlayer()
	}

	return nil
}

// Shutdown stops any live child. Called once when the loop exits.
func (s *Session) Shutdown() {
	s.stopCurrent()
	s.currentHost = nil
	s.state = SessionIdle
}

// launch replaces the tracked process: the previous child is stopped and
// reaped before the next one spawns.
func (s *Session) launch(argv []string) error {
	s.stopCurrent()

	s.logger.Info("launching", slog.String("command", strings.Join(argv, " ")))

	proc, err := s.starter.Start(argv)
	if err != nil {
		return fmt.Errorf("start game: %w", err)
	}

	s.logger.Info("child started", slog.Int("pid", proc.PID()))
	s.proc = proc
	return nil
}

func (s *Session) stopCurrent() {
	if s.proc == nil {
		return
	}

	pid := s.proc.PID()
	if err := s.proc.Stop(); err != nil {
		// Likely exited already; the reap below settles it.
		s.logger.Debug("stop child", slog.Int("pid", pid), slog.Any("error", err))
	}
	<-s.proc.Done()

	s.logger.Info("stopped child", slog.Int("pid", pid))
	s.proc = nil
}
