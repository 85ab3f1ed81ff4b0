// Package session holds the connected signer and the contract bindings
// built for it.
package session

import (
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/config"
	"github.com/smartdevs17/stakebet/internal/contracts"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/wallet"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// State is an immutable view of a connected session. Each signer change
// produces a new State; a nil *State means disconnected.
type State struct {
	Signer   wallet.Signer
	Bindings *contracts.Bindings
}

// Account returns the connected address.
func (s *State) Account() common.Address {
	return s.Signer.Address()
}

// Listener is told about every new state, including nil on disconnect.
// Listeners run synchronously and must not call back into SetSigner.
type Listener func(state *State)

// Session owns the current signer and the bindings derived from it.
type Session struct {
	addrs   config.Addresses
	backend bind.ContractBackend
	metrics *metrics.Manager
	logger  *logrus.Entry

	// changeMu serializes signer changes and listener delivery.
	changeMu sync.Mutex

	mu        sync.RWMutex
	state     *State
	listeners map[int]Listener
	nextID    int
	builds    int
}

// New validates the contract configuration and returns a disconnected
// session. Missing or invalid addresses are a configuration error and no
// session is created.
func New(cfg config.ContractsConfig, backend bind.ContractBackend, m *metrics.Manager) (*Session, error) {
	addrs, err := cfg.Addresses()
	if err != nil {
		return nil, err
	}
	return &Session{
		addrs:     addrs,
		backend:   backend,
		metrics:   m,
		logger:    utils.Component("session"),
		listeners: make(map[int]Listener),
	}, nil
}

// Addresses returns the configured contract addresses.
func (s *Session) Addresses() config.Addresses {
	return s.addrs
}

// Current returns the current state, or nil when disconnected.
func (s *Session) Current() *State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Connected reports whether a signer is set.
func (s *Session) Connected() bool {
	return s.Current() != nil
}

// SetSigner replaces the signer. Bindings are rebuilt only when the
// signer identity (its address) changes; a nil signer disconnects.
func (s *Session) SetSigner(signer wallet.Signer) {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	current := s.Current()
	if sameIdentity(current, signer) {
		return
	}

	var next *State
	if signer != nil {
		next = &State{
			Signer:   signer,
			Bindings: contracts.NewBindings(s.addrs, s.backend, signer, s.metrics),
		}
	}

	s.mu.Lock()
	s.state = next
	if next != nil {
		s.builds++
	}
	listeners := make([]Listener, 0, len(s.listeners))
	for id := 0; id < s.nextID; id++ {
		if l, ok := s.listeners[id]; ok {
			listeners = append(listeners, l)
		}
	}
	s.mu.Unlock()

	if next == nil {
		s.logger.Info("Wallet disconnected")
	} else {
		s.logger.WithField("account", next.Account().Hex()).Info("Wallet connected")
	}

	for _, l := range listeners {
		l(next)
	}
}

// Disconnect drops the signer and its bindings.
func (s *Session) Disconnect() {
	s.SetSigner(nil)
}

// Subscribe registers l and immediately delivers the current state to it.
// The returned function unregisters l.
func (s *Session) Subscribe(l Listener) func() {
	s.changeMu.Lock()
	defer s.changeMu.Unlock()

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = l
	state := s.state
	s.mu.Unlock()

	l(state)

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// BindingsBuilt counts how many binding sets have been constructed.
func (s *Session) BindingsBuilt() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.builds
}

func sameIdentity(state *State, signer wallet.Signer) bool {
	if state == nil || signer == nil {
		return state == nil && signer == nil
	}
	return state.Account() == signer.Address()
}
