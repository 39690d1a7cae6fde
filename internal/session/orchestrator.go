package session

import (
	"context"
	"errors"
)

// call describes one orchestrated server request.
type call[T any] struct {
	domain Domain
	op     string
	// target groups calls whose whole results supersede each other, such
	// as two full course lists. Empty means only entity-level freshness
	// applies, checked by apply.
	target string
	// prepare reads what the request needs from the state.
	prepare func(st *state) error
	fetch   func(ctx context.Context) (T, error)
	// apply writes a successful result of call seq. It runs under the
	// session lock and must either fully apply or return an error without
	// side effects. It returns ErrStale when newer writes already cover
	// the result.
	apply func(st *state, seq uint64, v T) error
}

type ticket struct {
	seq uint64
}

// begin marks the call pending: the domain is loading and its last error
// is cleared.
func (s *Session) begin(d Domain) ticket {
	s.st.nextSeq++
	ds := s.st.status[d]
	ds.inFlight++
	ds.err = nil
	return ticket{seq: s.st.nextSeq}
}

// end undoes begin's loading count unless the state was reset since.
func (s *Session) end(d Domain, t ticket) {
	if t.seq <= s.st.floor {
		return
	}
	if ds := s.st.status[d]; ds.inFlight > 0 {
		ds.inFlight--
	}
}

func (s *Session) stale(target string, t ticket) bool {
	if t.seq <= s.st.floor {
		return true
	}
	return target != "" && t.seq < s.st.applied[target]
}

// run executes c through the pending, fulfilled and rejected lifecycle and
// returns the fetched value once it has been applied.
func run[T any](ctx context.Context, s *Session, c call[T]) (T, error) {
	var zero T

	s.mu.Lock()
	if c.prepare != nil {
		if err := c.prepare(s.st); err != nil {
			f := s.fail(c.domain, c.op, err)
			s.changed()
			s.mu.Unlock()
			return zero, f
		}
	}
	t := s.begin(c.domain)
	s.changed()
	s.mu.Unlock()

	s.logger.Debug("session call pending", "domain", c.domain, "op", c.op, "seq", t.seq)
	v, err := c.fetch(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.end(c.domain, t)

	if s.stale(c.target, t) {
		s.logger.Debug("discarding stale result",
			"domain", c.domain,
			"op", c.op,
			"seq", t.seq,
			"target", c.target,
			"error", err)
		s.changed()
		return zero, ErrStale
	}

	if err != nil {
		f := s.fail(c.domain, c.op, err)
		s.changed()
		return zero, f
	}
	if c.apply != nil {
		if err := c.apply(s.st, t.seq, v); err != nil {
			if errors.Is(err, ErrStale) {
				s.logger.Debug("discarding superseded result", "domain", c.domain, "op", c.op, "seq", t.seq)
				s.changed()
				return zero, ErrStale
			}
			f := s.fail(c.domain, c.op, err)
			s.changed()
			return zero, f
		}
	}
	if c.target != "" {
		s.st.applied[c.target] = t.seq
	}
	s.changed()
	s.logger.Debug("session call fulfilled", "domain", c.domain, "op", c.op, "seq", t.seq)
	return v, nil
}
