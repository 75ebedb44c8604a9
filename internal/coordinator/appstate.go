package coordinator

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aarel/market-watch/internal/agents"
	"github.com/aarel/market-watch/internal/analytics"
	"github.com/aarel/market-watch/internal/broker"
	"github.com/aarel/market-watch/internal/config"
	"github.com/aarel/market-watch/internal/strategy"
	"github.com/aarel/market-watch/internal/universe"
)

// BrokerFactory builds a Broker bound to u.
type BrokerFactory func(u universe.Universe) (broker.Broker, error)

// AnalyticsFactory builds an AnalyticsStore bound to u.
type AnalyticsFactory func(u universe.Universe) (*analytics.Store, error)

// StrategyFactory builds the Strategy a new Coordinator should run.
type StrategyFactory func() (strategy.Strategy, error)

// TeardownHook is invoked with the outgoing components before they are
// discarded, so a caller can flush state, close websockets, or persist
// anything it needs before the destructive rebuild proceeds.
type TeardownHook func(brk broker.Broker, coord *Coordinator, store *analytics.Store)

// AppState holds the single active, universe-bound wiring of broker,
// analytics store, and Coordinator, and performs the destructive
// transition protocol when asked to move to a different universe. Hot
// toggling a universe in place is never supported: every transition tears
// down and rebuilds every universe-bound component.
type AppState struct {
	brokerFactory    BrokerFactory
	analyticsFactory AnalyticsFactory
	strategyFactory  StrategyFactory
	log              zerolog.Logger

	mu          sync.Mutex
	broker      broker.Broker
	store       *analytics.Store
	coordinator *Coordinator
	teardown    TeardownHook
	broadcaster agents.Broadcaster
}

// NewAppState constructs an AppState for the initial universe u, running
// the factories once to build its first generation of components.
func NewAppState(u universe.Universe, brokerFactory BrokerFactory, analyticsFactory AnalyticsFactory, strategyFactory StrategyFactory, cfg config.RuntimeConfig, log zerolog.Logger) (*AppState, error) {
	s := &AppState{
		brokerFactory:    brokerFactory,
		analyticsFactory: analyticsFactory,
		strategyFactory:  strategyFactory,
		log:              log.With().Str("component", "AppState").Logger(),
	}
	if err := s.build(u, "", cfg); err != nil {
		return nil, err
	}
	return s, nil
}

// SetTeardownHook installs a hook invoked with the outgoing components
// immediately before a destructive transition discards them.
func (s *AppState) SetTeardownHook(hook TeardownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.teardown = hook
}

// SetBroadcaster wires the live UI fan-out callback onto the current
// Coordinator and remembers it so every future generation built by a
// destructive transition is wired the same way.
func (s *AppState) SetBroadcaster(b agents.Broadcaster) {
	s.mu.Lock()
	s.broadcaster = b
	coord := s.coordinator
	s.mu.Unlock()

	if coord != nil {
		coord.SetBroadcaster(b)
	}
}

// Broker returns the currently active broker.
func (s *AppState) Broker() broker.Broker {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.broker
}

// Store returns the currently active analytics store.
func (s *AppState) Store() *analytics.Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store
}

// Coordinator returns the currently active Coordinator.
func (s *AppState) Coordinator() *Coordinator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.coordinator
}

// Transition performs a destructive universe transition: it validates the
// move, stops the outgoing coordinator, then passes the outgoing
// broker/coordinator/store to the teardown hook if one is set (Transition
// itself does not close the old broker or store), rebuilds every component from
// scratch via the injected factories, and asserts every rebuilt
// component's universe matches the requested one before swapping it in.
// Hot toggling without teardown is not offered as an option.
func (s *AppState) Transition(to universe.Universe, reason string, cfg config.RuntimeConfig) error {
	s.mu.Lock()
	from := s.broker.Universe()
	oldBroker, oldCoordinator, oldStore, teardown := s.broker, s.coordinator, s.store, s.teardown
	s.mu.Unlock()

	transition, err := universe.ValidateUniverseTransition(from, to, reason)
	if err != nil {
		return fmt.Errorf("coordinator: universe transition rejected: %w", err)
	}
	s.log.Warn().
		Str("from", string(transition.FromUniverse)).
		Str("to", string(transition.ToUniverse)).
		Str("transition_id", transition.TransitionID).
		Str("reason", reason).
		Msg(transition.Warning)

	if err := oldCoordinator.Stop(); err != nil {
		s.log.Error().Err(err).Msg("error stopping outgoing coordinator during transition")
	}
	if teardown != nil {
		teardown(oldBroker, oldCoordinator, oldStore)
	}

	if err := s.build(to, "", cfg); err != nil {
		return fmt.Errorf("coordinator: failed to rebuild for universe %s: %w", to, err)
	}
	return nil
}

// build constructs a fresh generation of UniverseContext, broker,
// analytics store, and Coordinator for u, asserting each component's
// universe matches the request before swapping it into place. sessionID
// is normally left empty so a new one is generated; it exists as a
// parameter for deterministic construction in tests.
func (s *AppState) build(u universe.Universe, sessionID string, cfg config.RuntimeConfig) error {
	ctx, err := universe.NewContext(u, sessionID, "")
	if err != nil {
		return err
	}

	brk, err := s.brokerFactory(u)
	if err != nil {
		return fmt.Errorf("coordinator: broker factory failed: %w", err)
	}
	if brk.Universe() != u {
		return fmt.Errorf("coordinator: broker factory built a broker bound to %s, requested %s", brk.Universe(), u)
	}

	store, err := s.analyticsFactory(u)
	if err != nil {
		return fmt.Errorf("coordinator: analytics factory failed: %w", err)
	}
	if store.Universe() != u {
		return fmt.Errorf("coordinator: analytics factory built a store bound to %s, requested %s", store.Universe(), u)
	}

	strat, err := s.strategyFactory()
	if err != nil {
		return fmt.Errorf("coordinator: strategy factory failed: %w", err)
	}

	coord, err := New(ctx, brk, store, cfg, strat, s.log)
	if err != nil {
		return fmt.Errorf("coordinator: construction failed: %w", err)
	}
	if coord.Universe() != u {
		return fmt.Errorf("coordinator: constructed coordinator bound to %s, requested %s", coord.Universe(), u)
	}

	s.mu.Lock()
	s.broker, s.store, s.coordinator = brk, store, coord
	if s.broadcaster != nil {
		coord.SetBroadcaster(s.broadcaster)
	}
	s.mu.Unlock()
	return nil
}
