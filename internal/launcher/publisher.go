package launcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/JPEWdev/oe-doom-launcher/internal/discovery"
)

// ServiceState is the publish lifecycle of a local service.
type ServiceState int

const (
	StateUnpublished ServiceState = iota
	StatePublishing
	StateRenaming
	StateEstablished
)

func (s ServiceState) String() string {
	switch s {
	case StateUnpublished:
		return "unpublished"
	case StatePublishing:
		return "publishing"
	case StateRenaming:
		return "renaming"
	case StateEstablished:
		return "established"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// LocalService is one capability this instance advertises. Name starts as
// the stable per-machine identifier and mutates only on collision.
type LocalService struct {
	Kind discovery.ServiceKind
	Name string
	Port int
	TXT  []string

	state  ServiceState
	handle discovery.Handle
}

// Publisher owns the local advertisements and their publish state machines,
// including name-collision recovery. It runs on the coordination loop and
// never holds two outstanding publish attempts for the same service.
type Publisher struct {
	ads      discovery.Advertiser
	logger   *slog.Logger
	services map[discovery.ServiceKind]*LocalService
}

// NewPublisher creates a publisher owning the given services.
func NewPublisher(ads discovery.Advertiser, logger *slog.Logger, services ...*LocalService) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}

	p := &Publisher{
		ads:      ads,
		logger:   logger,
		services: make(map[discovery.ServiceKind]*LocalService),
	}
	for _, svc := range services {
		p.services[svc.Kind] = svc
	}
	return p
}

// Publish advertises the service of the given kind. Synchronous name
// collisions are resolved by renaming and retrying; any other advertise
// error is returned. No-op when a publish is already in flight or
// established.
func (p *Publisher) Publish(ctx context.Context, kind discovery.ServiceKind) error {
	svc := p.services[kind]
	if svc.state != StateUnpublished {
		return nil
	}
	return p.attempt(ctx, svc)
}

// Unpublish withdraws the service of the given kind. Idempotent.
func (p *Publisher) Unpublish(kind discovery.ServiceKind) {
	svc := p.services[kind]
	if svc.state == StateUnpublished {
		return
	}

	p.logger.Info("stopping service",
		slog.String("kind", string(svc.Kind)),
		slog.String("name", svc.Name))

	if svc.handle != nil {
		svc.handle.Withdraw()
		svc.handle = nil
	}
	svc.state = StateUnpublished
}

// HandleEstablished marks the service established after the discovery layer
// confirms the advertisement.
func (p *Publisher) HandleEstablished(kind discovery.ServiceKind, name string) {
	svc := p.services[kind]
	if svc.state == StateUnpublished || svc.Name != name {
		return
	}

	svc.state = StateEstablished
	p.logger.Info("service established",
		slog.String("kind", string(svc.Kind)),
		slog.String("name", svc.Name))
}

// HandleCollision reacts to an asynchronous name collision: pick the next
// alternative name and republish. Stale collisions for names we no longer
// hold are ignored.
func (p *Publisher) HandleCollision(ctx context.Context, kind discovery.ServiceKind, name string) error {
	svc := p.services[kind]
	if svc.state == StateUnpublished || svc.Name != name {
		return nil
	}

	if svc.handle != nil {
		svc.handle.Withdraw()
		svc.handle = nil
	}

	svc.state = StateRenaming
	p.rename(svc)

	return p.attempt(ctx, svc)
}

// Name returns the currently advertised name of the given kind.
func (p *Publisher) Name(kind discovery.ServiceKind) string {
	return p.services[kind].Name
}

// State returns the publish state of the given kind.
func (p *Publisher) State(kind discovery.ServiceKind) ServiceState {
	return p.services[kind].state
}

func (p *Publisher) attempt(ctx context.Context, svc *LocalService) error {
	for {
		svc.state = StatePublishing
		p.logger.Info("adding service",
			slog.String("kind", string(svc.Kind)),
			slog.String("name", svc.Name))

		handle, err := p.ads.Advertise(ctx, svc.Kind, svc.Name, svc.Port, svc.TXT)
		if errors.Is(err, discovery.ErrNameCollision) {
			svc.state = StateRenaming
			p.rename(svc)
			continue
		}
		if err != nil {
			svc.state = StateUnpublished
			return fmt.Errorf("advertise %s: %w", svc.Kind, err)
		}

		svc.handle = handle
		return nil
	}
}

func (p *Publisher) rename(svc *LocalService) {
	next := discovery.AlternativeName(svc.Name)
	p.logger.Warn("service name collision, renaming",
		slog.String("kind", string(svc.Kind)),
		slog.String("old", svc.Name),
		slog.String("new", next))
	svc.Name = next
}
