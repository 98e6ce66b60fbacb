// Package discovery defines the DNS-SD view of the launcher: the service
// kinds kiosks advertise, the records browsing produces, and the events a
// backend delivers to the coordination loop.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Service kinds advertised by every cooperating instance. These must match
// across all kiosks on the network.
const (
	// KindClient is advertised by every instance and carries the can-host flag.
	KindClient = ServiceKind("_oe-doom-client._udp")
	// KindHost is advertised only while actually hosting a game and carries
	// the wad the host is running.
	KindHost = ServiceKind("_oe-doom-host._udp")
)

// TXT record keys.
const (
	TXTCanHost = "can-host"
	TXTWAD     = "wad"
)

// ErrNameCollision is returned by [Advertiser.Advertise] when the requested
// instance name is already taken on the network.
var ErrNameCollision = errors.New("discovery: service name collision")

// ServiceKind is a DNS-SD service type.
type ServiceKind string

// Key identifies one browsed record. At most one record per key exists in
// the peer registry at any time.
type Key struct {
	Name  string
	Kind  ServiceKind
	Scope string
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s@%s", k.Name, k.Kind, k.Scope)
}

// Flags carries the lookup result flags of a browsed record.
type Flags struct {
	// Self is set when the record is one of our own advertisements.
	Self bool
	// Cached is set when the record was answered from a local cache rather
	// than a fresh response.
	Cached bool
}

// Record is one discovered peer capability.
type Record struct {
	Key      Key
	Hostname string
	Port     int
	Flags    Flags

	// CanHost is the client-kind payload: whether the peer may ever host.
	CanHost bool
	// WAD is the host-kind payload: the data file the host is running.
	WAD string
}

// ParseTXT fills the kind-specific payload of r from DNS-SD TXT strings of
// the form "key=value". Unknown keys are ignored.
func (r *Record) ParseTXT(txt []string) {
	for _, kv := range txt {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}

		switch key {
		case TXTCanHost:
			r.CanHost = value == "1"
		case TXTWAD:
			r.WAD = value
		}
	}
}

// ClientTXT formats the TXT payload of a client-kind advertisement.
func ClientTXT(canHost bool) []string {
	if canHost {
		return []string{TXTCanHost + "=1"}
	}
	return []string{TXTCanHost + "=0"}
}

// HostTXT formats the TXT payload of a host-kind advertisement.
func HostTXT(wad string) []string {
	return []string{TXTWAD + "=" + wad}
}

// Handle is an active advertisement. Withdrawing it removes the records from
// the network.
type Handle interface {
	Withdraw()
}

// Advertiser publishes local services.
type Advertiser interface {
	// Advertise publishes a service instance. It returns
	// [ErrNameCollision] when the name is taken; the caller is expected to
	// rename and retry.
	Advertise(ctx context.Context, kind ServiceKind, name string, port int, txt []string) (Handle, error)
}

// Backend is the full discovery contract consumed by the launcher: an
// advertiser plus a stream of browse and state events.
type Backend interface {
	Advertiser

	// Events returns the event stream. The channel is closed when the
	// backend shuts down.
	Events() <-chan Event

	Close() error
}

// Event is a discrete discovery occurrence delivered to the coordination
// loop. Exactly one of the concrete types below.
type Event interface {
	event()
}

// PeerAppeared reports a new or updated client-kind record.
type PeerAppeared struct {
	Record Record
}

// PeerRemoved reports that a client-kind record left the network.
type PeerRemoved struct {
	Key Key
}

// HostAnnounced reports a host-kind record: somebody has won an election and
// is accepting joins.
type HostAnnounced struct {
	Record Record
}

// HostLost reports that a host-kind record left the network.
type HostLost struct {
	Key Key
}

// Published reports that an advertisement of ours is established under the
// given name.
type Published struct {
	Kind ServiceKind
	Name string
}

// Collision reports an asynchronous name collision on an advertisement of
// ours. The publisher renames and republishes.
type Collision struct {
	Kind ServiceKind
	Name string
}

// ConnectivityLost reports that the discovery layer is gone for good. Fatal
// to the daemon.
type ConnectivityLost struct {
	Err error
}

func (PeerAppeared) event()     {}
func (PeerRemoved) event()      {}
func (HostAnnounced) event()    {}
func (HostLost) event()         {}
func (Published) event()        {}
func (Collision) event()        {}
func (ConnectivityLost) event() {}
