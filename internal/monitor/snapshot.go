// File: internal/monitor/snapshot.go
package monitor

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// Sink receives every published snapshot.
type Sink interface {
	PublishSnapshot(ctx context.Context, snapshot *models.BalanceSnapshot) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, snapshot *models.BalanceSnapshot) error

// PublishSnapshot calls f.
func (f SinkFunc) PublishSnapshot(ctx context.Context, snapshot *models.BalanceSnapshot) error {
	return f(ctx, snapshot)
}

// SnapshotStore keeps the latest balances per account and republishes
// them to dependent views.
type SnapshotStore struct {
	mu        sync.RWMutex
	snapshots map[common.Address]*models.BalanceSnapshot
	sinks     []Sink
	logger    *logrus.Entry
}

// NewSnapshotStore creates an empty store.
func NewSnapshotStore(sinks ...Sink) *SnapshotStore {
	return &SnapshotStore{
		snapshots: make(map[common.Address]*models.BalanceSnapshot),
		sinks:     sinks,
		logger:    utils.Component("snapshots"),
	}
}

// AddSink registers another subscriber.
func (s *SnapshotStore) AddSink(sink Sink) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sinks = append(s.sinks, sink)
}

// Get returns a copy of account's snapshot, or nil if nothing was read yet.
func (s *SnapshotStore) Get(account common.Address) *models.BalanceSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshots[account].Clone()
}

// Apply merges field values read at block into account's snapshot and
// publishes the result. Fields absent from values keep their previous
// value. Negative values are dropped.
func (s *SnapshotStore) Apply(ctx context.Context, account common.Address, block uint64, values map[string]*big.Int) *models.BalanceSnapshot {
	s.mu.Lock()
	snap, ok := s.snapshots[account]
	if !ok {
		snap = &models.BalanceSnapshot{Account: account}
		s.snapshots[account] = snap
	}
	for field, v := range values {
		if v == nil || v.Sign() < 0 {
			s.logger.WithFields(logrus.Fields{"field": field, "value": v}).Warn("Dropping invalid balance value")
			continue
		}
		v = new(big.Int).Set(v)
		switch field {
		case models.FieldTokenBalance:
			snap.TokenBalance = v
		case models.FieldClaimableFromManager:
			snap.ClaimableFromManager = v
		case models.FieldClaimableFromPool:
			snap.ClaimableFromPool = v
		}
	}
	if block > snap.BlockNumber {
		snap.BlockNumber = block
	}
	snap.UpdatedAt = time.Now().UTC()
	out := snap.Clone()
	sinks := append([]Sink(nil), s.sinks...)
	s.mu.Unlock()

	for _, sink := range sinks {
		if err := sink.PublishSnapshot(ctx, out.Clone()); err != nil {
			s.logger.WithError(err).Debug("Snapshot sink failed")
		}
	}
	return out
}
