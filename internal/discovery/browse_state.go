package discovery

import "time"

// browseState tracks the records of one service kind across browse cycles.
// Each cycle re-queries the network with a fresh resolver, so every live
// record is re-delivered; the state announces a record only when it is new
// or its content changed, and declares it gone when it has not been seen
// for longer than the expiry.
type browseState struct {
	kind ServiceKind
	seen map[string]seenRecord
}

type seenRecord struct {
	rec  Record
	last time.Time
}

func newBrowseState(kind ServiceKind) *browseState {
	return &browseState{
		kind: kind,
		seen: make(map[string]seenRecord),
	}
}

// observe records a browsed instance and returns the event to deliver, if
// any. Re-announcements of an unchanged record refresh the last-seen time
// silently; anything else would re-arm election timers on every cycle.
func (s *browseState) observe(now time.Time, rec Record) (Event, bool) {
	prev, ok := s.seen[rec.Key.Name]
	s.seen[rec.Key.Name] = seenRecord{rec: rec, last: now}

	if ok && prev.rec == rec {
		return nil, false
	}

	return appearedEvent(s.kind, rec), true
}

// goodbye drops an instance immediately and returns its removal event.
func (s *browseState) goodbye(name string) Event {
	key := Key{Name: name, Kind: s.kind, Scope: mdnsScope}
	if sr, ok := s.seen[name]; ok {
		key = sr.rec.Key
		delete(s.seen, name)
	}
	return removedEvent(s.kind, key)
}

// expire returns removal events for every record not seen since the
// deadline and forgets them.
func (s *browseState) expire(now time.Time, maxAge time.Duration) []Event {
	var events []Event
	for name, sr := range s.seen {
		if now.Sub(sr.last) > maxAge {
			delete(s.seen, name)
			events = append(events, removedEvent(s.kind, sr.rec.Key))
		}
	}
	return events
}

func appearedEvent(kind ServiceKind, rec Record) Event {
	if kind == KindHost {
		return HostAnnounced{Record: rec}
	}
	return PeerAppeared{Record: rec}
}

func removedEvent(kind ServiceKind, key Key) Event {
	if kind == KindHost {
		return HostLost{Key: key}
	}
	return PeerRemoved{Key: key}
}
