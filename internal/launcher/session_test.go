package launcher

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/JPEWdev/oe-doom-launcher/internal/config"
	"github.com/JPEWdev/oe-doom-launcher/internal/discovery"
)

func newTestSession(game config.Config) (*Session, *fakeBackend, *fakeStarter) {
	backend := newFakeBackend()
	starter := newFakeStarter()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	pub := NewPublisher(backend, logger,
		&LocalService{Kind: discovery.KindClient, Name: "kiosk", Port: game.Multiplayer.Port, TXT: discovery.ClientTXT(true)},
		&LocalService{Kind: discovery.KindHost, Name: "kiosk", Port: game.Multiplayer.Port, TXT: discovery.HostTXT(game.Multiplayer.WAD)},
	)

	sess := SessionConfig{
		Logger:    logger,
		Starter:   starter,
		Publisher: pub,
		Game:      game,
	}.NewSession()

	return sess, backend, starter
}

func TestSoloCommandLine(t *testing.T) {
	game := config.Default()
	game.Singleplayer.Config = "/etc/oe-zdoom/sp.ini"
	sess, _, starter := newTestSession(game)

	if err := sess.StartSinglePlayer(); err != nil {
		t.Fatalf("StartSinglePlayer: %v", err)
	}

	want := []string{"zdoom", "-iwad", "freedoom1.wad", "-config", "/etc/oe-zdoom/sp.ini"}
	if !slices.Equal(starter.last().argv, want) {
		t.Errorf("argv = %v, want %v", starter.last().argv, want)
	}

	// Already running solo: no respawn.
	if err := sess.StartSinglePlayer(); err != nil {
		t.Fatalf("StartSinglePlayer: %v", err)
	}
	if starter.count() != 1 {
		t.Errorf("expected 1 spawn, got %d", starter.count())
	}
}

func TestJoinCommandLine(t *testing.T) {
	game := config.Default()
	game.Multiplayer.Config = "/etc/oe-zdoom/mp.ini"
	sess, _, starter := newTestSession(game)

	host := hostRecord("bravo", "plutonia.wad", false)
	host.Port = 5555
	if err := sess.StartJoin(host); err != nil {
		t.Fatalf("StartJoin: %v", err)
	}

	// The host's wad wins over our own multiplayer wad.
	want := []string{"zdoom", "-iwad", "plutonia.wad", "-join", "bravo.local", "-port", "5555", "-config", "/etc/oe-zdoom/mp.ini"}
	if !slices.Equal(starter.last().argv, want) {
		t.Errorf("argv = %v, want %v", starter.last().argv, want)
	}

	cur, ok := sess.CurrentHost()
	if !ok || cur.Key != host.Key {
		t.Errorf("CurrentHost = %v/%v, want the joined record", cur, ok)
	}
}

func TestHostCommandLineAndAdvertisement(t *testing.T) {
	game := config.Default()
	sess, backend, starter := newTestSession(game)

	if err := sess.StartHost(context.Background(), 3); err != nil {
		t.Fatalf("StartHost: %v", err)
	}

	want := []string{"zdoom", "-iwad", "freedm.wad", "-deathmatch", "+map", "MAP01", "-host", "3", "-port", "5029"}
	if !slices.Equal(starter.last().argv, want) {
		t.Errorf("argv = %v, want %v", starter.last().argv, want)
	}

	hosts := backend.active(discovery.KindHost)
	if len(hosts) != 1 {
		t.Fatalf("expected 1 host advertisement, got %d", len(hosts))
	}
	if !slices.Contains(hosts[0].txt, "wad=freedm.wad") {
		t.Errorf("host TXT = %v, want wad=freedm.wad", hosts[0].txt)
	}
}

func TestJoinStopsHostAdvertisement(t *testing.T) {
	sess, backend, _ := newTestSession(config.Default())

	if err := sess.StartHost(context.Background(), 2); err != nil {
		t.Fatalf("StartHost: %v", err)
	}
	if err := sess.StartJoin(hostRecord("bravo", "freedm.wad", false)); err != nil {
		t.Fatalf("StartJoin: %v", err)
	}

	if hosts := backend.active(discovery.KindHost); len(hosts) != 0 {
		t.Errorf("joining must withdraw the host advertisement, %d still active", len(hosts))
	}

	if _, ok := sess.CurrentHost(); !ok {
		t.Error("expected a current host after join")
	}
}

func TestStartReplacesPreviousProcess(t *testing.T) {
	sess, _, starter := newTestSession(config.Default())

	if err := sess.StartSinglePlayer(); err != nil {
		t.Fatalf("StartSinglePlayer: %v", err)
	}
	solo := starter.last()

	if err := sess.StartHost(context.Background(), 2); err != nil {
		t.Fatalf("StartHost: %v", err)
	}

	select {
	case <-solo.Done():
	default:
		t.Error("previous child must be stopped and reaped before the next spawn")
	}

	if starter.count() != 2 {
		t.Errorf("expected 2 spawns, got %d", starter.count())
	}
}

func TestShutdownStopsChild(t *testing.T) {
	sess, _, starter := newTestSession(config.Default())

	if err := sess.StartSinglePlayer(); err != nil {
		t.Fatalf("StartSinglePlayer: %v", err)
	}

	sess.Shutdown()

	select {
	case <-starter.last().Done():
	default:
		t.Error("shutdown must stop the child")
	}
	if got := sess.State(); got != SessionIdle {
		t.Errorf("state = %v, want idle", got)
	}
}
