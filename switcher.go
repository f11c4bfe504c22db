package stationlink

import (
	"context"
	"sync"

	"github.com/ambitiousfew/stationlink/log"
	"github.com/ambitiousfew/stationlink/topic"
)

// Switchable is a component addressed through a namespace that can move to
// another identifier at runtime. Client and BroadcastListener implement it.
type Switchable interface {
	Namespace() topic.Namespace
	SwitchNamespace(ctx context.Context, ns topic.Namespace) error
}

// Persister stores the identifier selected last so it survives a restart.
type Persister interface {
	PersistIdentifier(ctx context.Context, id string) error
}

// PersisterFunc adapts a function to a Persister.
type PersisterFunc func(ctx context.Context, id string) error

func (f PersisterFunc) PersistIdentifier(ctx context.Context, id string) error {
	return f(ctx, id)
}

// SwitcherOption configures a Switcher.
type SwitcherOption func(*Switcher)

// WithSwitcherLogger sets the switcher logger.
func WithSwitcherLogger(logger log.Logger) SwitcherOption {
	return func(s *Switcher) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithPersister stores every identifier switched to.
func WithPersister(p Persister) SwitcherOption {
	return func(s *Switcher) {
		s.persister = p
	}
}

// Switcher moves a set of components to a different station or side together.
type Switcher struct {
	members   []Switchable
	persister Persister
	logger    log.Logger

	mu sync.Mutex
}

// NewSwitcher returns a switcher over members. Members share one identifier,
// the first member's namespace is the reference for Current.
func NewSwitcher(members []Switchable, opts ...SwitcherOption) *Switcher {
	s := &Switcher{
		members: members,
		logger:  log.Noop(),
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Current returns the identifier the members address.
func (s *Switcher) Current() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.members) == 0 {
		return ""
	}
	return s.members[0].Namespace().Identifier()
}

// SwitchTo moves every member to id. An invalid id leaves every member
// untouched; switching to the current id is a no-op. Each member unroutes its
// identifier scoped topics, resolves its pending requests with their fallback
// and routes the topics of id. The id is persisted last.
func (s *Switcher) SwitchTo(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.members) == 0 {
		return ErrNoMembers
	}

	current := s.members[0].Namespace()
	next := make([]topic.Namespace, len(s.members))
	for i, m := range s.members {
		ns, err := m.Namespace().WithIdentifier(id)
		if err != nil {
			return OpError{Action: ActionSwitching, Target: id, Err: err}
		}
		next[i] = ns
	}

	if next[0].Identifier() == current.Identifier() {
		s.logger.Log(log.LevelDebug, "already on identifier, nothing to switch", log.String("identifier", id))
		return nil
	}

	var firstErr error
	for i, m := range s.members {
		if err := m.SwitchNamespace(ctx, next[i]); err != nil {
			s.logger.Log(log.LevelError, "error switching member",
				log.String("namespace", next[i].String()), log.Error("error", err))
			if firstErr == nil {
				firstErr = OpError{Action: ActionSwitching, Target: id, Err: err}
			}
		}
	}

	s.logger.Log(log.LevelNotice, "switched identifier",
		log.String("from", current.Identifier()), log.String("to", next[0].Identifier()))

	if s.persister != nil {
		if err := s.persister.PersistIdentifier(ctx, next[0].Identifier()); err != nil {
			s.logger.Log(log.LevelError, "error persisting identifier", log.Error("error", err))
			if firstErr == nil {
				firstErr = OpError{Action: ActionPersist, Target: id, Err: err}
			}
		}
	}
	return firstErr
}
