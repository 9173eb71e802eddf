// Package session keeps the per-browser extraction state: the selected
// document type, where the current upload is in its lifecycle and the result
// to render.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xhad/docbot/pkg/extract"
	"github.com/xhad/docbot/pkg/store"
	"go.uber.org/zap"
)

type State string

const (
	Awaiting   State = "awaiting"
	Extracting State = "extracting"
	Rejected   State = "rejected"
	Rendered   State = "rendered"
	Failed     State = "failed"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrBusy     = errors.New("an upload is already being processed")
	ErrNoIndex  = errors.New("session has no indexed document")
)

// Session is a snapshot of one browser session. Outcome is a copy; the
// retriever it points at must not be used, take a Lease instead.
type Session struct {
	ID       string
	DocType  extract.DocType
	State    State
	Document string
	Outcome  *extract.Outcome
	Err      error

	touched time.Time
}

func (s Session) Busy() bool {
	return s.State == Extracting
}

type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
	// leases counts the open leases per outcome; retired outcomes are closed
	// when their last lease is released.
	leases   map[*extract.Outcome]int
	retired  map[*extract.Outcome]bool
	ttl      time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewStore creates a store that forgets sessions idle for longer than ttl.
// now may be nil.
func NewStore(ttl time.Duration, now func() time.Time, logger *zap.Logger) *Store {
	if now == nil {
		now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions: make(map[string]*Session),
		leases:   make(map[*extract.Outcome]int),
		retired:  make(map[*extract.Outcome]bool),
		ttl:      ttl,
		now:      now,
		logger:   logger,
	}
}

// Create starts a session waiting for an upload of the first document type.
func (s *Store) Create() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := &Session{
		ID:      uuid.NewString(),
		DocType: extract.Types()[0],
		State:   Awaiting,
		touched: s.now(),
	}
	s.sessions[sess.ID] = sess
	return sess.snapshot()
}

func (s *Store) Get(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	return sess.snapshot(), nil
}

// Select changes the document type and drops any previous result.
func (s *Store) Select(id string, docType extract.DocType) (Session, error) {
	if _, err := extract.Lookup(docType); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	if sess.Busy() {
		return sess.snapshot(), ErrBusy
	}

	s.reset(sess, Awaiting)
	sess.DocType = docType
	return sess.snapshot(), nil
}

// Begin marks the session as extracting document as docType. Only one
// extraction may run per session.
func (s *Store) Begin(id string, docType extract.DocType, document string) (Session, error) {
	if _, err := extract.Lookup(docType); err != nil {
		return Session{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return Session{}, err
	}
	if sess.Busy() {
		return sess.snapshot(), ErrBusy
	}

	s.reset(sess, Extracting)
	sess.DocType = docType
	sess.Document = document
	return sess.snapshot(), nil
}

// Finish records the result of the running extraction. A type mismatch
// rejects the upload, any other error fails it.
func (s *Store) Finish(id string, outcome *extract.Outcome, runErr error) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		outcome.Close()
		return Session{}, err
	}
	if !sess.Busy() {
		outcome.Close()
		return sess.snapshot(), fmt.Errorf("session %s is %s, not extracting", id, sess.State)
	}

	switch {
	case runErr == nil:
		sess.State = Rendered
		sess.Outcome = outcome
	case errors.Is(runErr, extract.ErrDocTypeMismatch):
		sess.State = Rejected
		sess.Err = runErr
		outcome.Close()
	default:
		sess.State = Failed
		sess.Err = runErr
		outcome.Close()
	}
	return sess.snapshot(), nil
}

// Sweep removes sessions idle for longer than the ttl and returns how many
// were removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-s.ttl)
	removed := 0
	for id, sess := range s.sessions {
		if sess.touched.Before(cutoff) && !sess.Busy() {
			s.retire(sess.Outcome)
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.Sweep(); n > 0 {
				s.logger.Debug("expired sessions removed", zap.Int("count", n))
			}
		}
	}
}

func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// lookup must be called with mu held.
func (s *Store) lookup(id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrNotFound
	}
	if s.now().Sub(sess.touched) > s.ttl {
		s.retire(sess.Outcome)
		delete(s.sessions, id)
		return nil, ErrNotFound
	}
	sess.touched = s.now()
	return sess, nil
}

// Lease keeps the retriever of a rendered session open until Release, even
// if the session moves on to another document in the meantime.
type Lease struct {
	Retriever *store.Retriever

	store   *Store
	outcome *extract.Outcome
	once    sync.Once
}

// Lease pins the retriever of a session that has an indexed document.
func (s *Store) Lease(id string) (*Lease, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}
	out := sess.Outcome
	if sess.State != Rendered || out == nil || out.Retriever == nil {
		return nil, ErrNoIndex
	}
	s.leases[out]++
	return &Lease{Retriever: out.Retriever, store: s, outcome: out}, nil
}

// SetAnswer records the latest answer on the leased outcome.
func (l *Lease) SetAnswer(answer string) {
	l.store.mu.Lock()
	defer l.store.mu.Unlock()
	l.outcome.Answer = answer
}

// Release ends the lease. It is safe to call more than once.
func (l *Lease) Release() {
	l.once.Do(func() {
		s := l.store
		s.mu.Lock()
		s.leases[l.outcome]--
		closeNow := false
		if s.leases[l.outcome] <= 0 {
			delete(s.leases, l.outcome)
			closeNow = s.retired[l.outcome]
			delete(s.retired, l.outcome)
		}
		s.mu.Unlock()

		if closeNow {
			l.outcome.Close()
		}
	})
}

// retire closes an outcome the session no longer references, or defers the
// close to the last Release. mu must be held.
func (s *Store) retire(out *extract.Outcome) {
	if out == nil {
		return
	}
	if s.leases[out] > 0 {
		s.retired[out] = true
		return
	}
	out.Close()
}

// snapshot copies the session and its outcome. mu must be held.
func (sess *Session) snapshot() Session {
	c := *sess
	if sess.Outcome != nil {
		out := *sess.Outcome
		c.Outcome = &out
	}
	return c
}

// reset must be called with mu held.
func (s *Store) reset(sess *Session, state State) {
	s.retire(sess.Outcome)
	sess.Outcome = nil
	sess.Err = nil
	sess.Document = ""
	sess.State = state
}
