package betting

import (
	"context"
	"errors"
	"math"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/units"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sliceCall struct{ start, end uint64 }

type fakeSessions struct {
	mu        sync.Mutex
	total     uint64
	slices    []sliceCall
	detailErr error
	wagered   map[int64]int64
}

func (f *fakeSessions) SessionCount(ctx context.Context) (uint64, error) {
	return f.total, nil
}

func (f *fakeSessions) SessionIDs(ctx context.Context, start, end uint64) ([]*big.Int, error) {
	f.mu.Lock()
	f.slices = append(f.slices, sliceCall{start, end})
	f.mu.Unlock()

	ids := make([]*big.Int, 0, end-start)
	for i := start; i < end; i++ {
		ids = append(ids, new(big.Int).SetUint64(i+1))
	}
	return ids, nil
}

func (f *fakeSessions) Session(ctx context.Context, id *big.Int) (*models.BettingSession, error) {
	if f.detailErr != nil && id.Int64() == 7 {
		return nil, f.detailErr
	}
	return &models.BettingSession{ID: id, TotalWagered: big.NewInt(0)}, nil
}

func (f *fakeSessions) WageredBy(ctx context.Context, id *big.Int, user common.Address) (*big.Int, error) {
	return big.NewInt(f.wagered[id.Int64()]), nil
}

func TestLoaderEmpty(t *testing.T) {
	source := &fakeSessions{total: 0}
	var progress []int

	sessions, err := NewLoader(source, LoaderConfig{}, nil).Load(context.Background(), nil, func(p int) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Empty(t, sessions)
	assert.NotNil(t, sessions)
	assert.Empty(t, source.slices)
	assert.Empty(t, progress)
}

func TestLoaderPaginates(t *testing.T) {
	source := &fakeSessions{total: 250}
	var progress []int

	sessions, err := NewLoader(source, LoaderConfig{SliceSize: 100, MaxConcurrency: 8}, nil).
		Load(context.Background(), nil, func(p int) { progress = append(progress, p) })
	require.NoError(t, err)

	assert.Equal(t, []sliceCall{{0, 100}, {100, 200}, {200, 250}}, source.slices)
	assert.Equal(t, []int{40, 80, 100}, progress)
	require.Len(t, sessions, 250)
	for i, s := range sessions {
		assert.Equal(t, int64(i+1), s.ID.Int64())
	}
}

func TestLoaderSingleSlice(t *testing.T) {
	source := &fakeSessions{total: 3}
	var progress []int

	_, err := NewLoader(source, LoaderConfig{}, nil).Load(context.Background(), nil, func(p int) { progress = append(progress, p) })
	require.NoError(t, err)
	assert.Equal(t, []sliceCall{{0, 3}}, source.slices)
	assert.Equal(t, []int{100}, progress)
}

func TestLoaderCallerWagered(t *testing.T) {
	source := &fakeSessions{total: 2, wagered: map[int64]int64{2: 30}}
	caller := common.HexToAddress("0xa11ce")

	sessions, err := NewLoader(source, LoaderConfig{}, nil).Load(context.Background(), &caller, nil)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Zero(t, sessions[0].CallerWagered.Sign())
	assert.Equal(t, int64(30), sessions[1].CallerWagered.Int64())
}

func TestLoaderDetailFailure(t *testing.T) {
	source := &fakeSessions{total: 10, detailErr: errors.New("rpc down")}

	sessions, err := NewLoader(source, LoaderConfig{}, nil).Load(context.Background(), nil, nil)
	require.Error(t, err)
	assert.Nil(t, sessions)
}

func TestSlipAccumulates(t *testing.T) {
	slip := NewSlip()
	require.NoError(t, slip.Add(5, 2))
	require.NoError(t, slip.Add(9, 1))
	require.NoError(t, slip.Add(5, 3))

	assert.Equal(t, []models.BetEntry{{Guess: 5, Multiplier: 5}, {Guess: 9, Multiplier: 1}}, slip.Entries())
	assert.Equal(t, uint64(6), slip.TotalMultiplier())

	assert.ErrorIs(t, slip.Add(1, 0), utils.ErrValidation)

	assert.True(t, slip.Remove(5))
	assert.False(t, slip.Remove(5))
	assert.Equal(t, []models.BetEntry{{Guess: 9, Multiplier: 1}}, slip.Entries())

	slip.Clear()
	assert.Zero(t, slip.Len())
}

func TestSlipRejectsOverflow(t *testing.T) {
	t.Run("repeat entry", func(t *testing.T) {
		slip := NewSlip()
		require.NoError(t, slip.Add(5, math.MaxUint64))
		assert.ErrorIs(t, slip.Add(5, 2), utils.ErrValidation)
		assert.Equal(t, []models.BetEntry{{Guess: 5, Multiplier: math.MaxUint64}}, slip.Entries())
	})

	t.Run("across lines", func(t *testing.T) {
		slip := NewSlip()
		require.NoError(t, slip.Add(1, math.MaxUint64))
		assert.ErrorIs(t, slip.Add(2, 2), utils.ErrValidation)
		assert.Equal(t, 1, slip.Len())
		assert.Equal(t, uint64(math.MaxUint64), slip.TotalMultiplier())

		err := CheckWager(slip.TotalMultiplier(), WagerLimits{
			PerBet:        units.Ether(1),
			MaxPerSession: units.Ether(10),
			Balance:       units.Ether(10),
		})
		assert.ErrorIs(t, err, utils.ErrValidation)
	})
}

func TestCheckWager(t *testing.T) {
	limits := WagerLimits{
		PerBet:         units.Ether(10),
		MaxPerSession:  units.Ether(100),
		AlreadyWagered: units.Ether(40),
		Balance:        units.Ether(1000),
	}

	t.Run("within limits", func(t *testing.T) {
		assert.NoError(t, CheckWager(6, limits))
	})

	t.Run("exceeds per-session maximum", func(t *testing.T) {
		err := CheckWager(7, limits)
		require.ErrorIs(t, err, utils.ErrValidation)
		assert.Contains(t, err.Error(), "per-session maximum")
	})

	t.Run("exceeds balance", func(t *testing.T) {
		l := limits
		l.Balance = units.Ether(50)
		err := CheckWager(6, l)
		require.ErrorIs(t, err, utils.ErrValidation)
		assert.Contains(t, err.Error(), "insufficient")
	})

	t.Run("empty slip", func(t *testing.T) {
		assert.ErrorIs(t, CheckWager(0, limits), utils.ErrValidation)
	})
}

func TestDisplayState(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	session := func(state models.SessionState, start time.Time) *models.BettingSession {
		return &models.BettingSession{State: state, StartTime: start}
	}

	assert.Equal(t, models.DisplayOpen, DisplayState(session(models.SessionStateOpen, now.Add(time.Hour)), now))
	assert.Equal(t, models.DisplayClosed, DisplayState(session(models.SessionStateOpen, now.Add(-time.Hour)), now))
	assert.Equal(t, models.DisplayClosed, DisplayState(session(models.SessionStateOpen, now), now))
	assert.Equal(t, models.DisplayResultRequested, DisplayState(session(models.SessionStateResultRequested, now), now))
	assert.Equal(t, models.DisplaySettled, DisplayState(session(models.SessionStateSettled, now), now))
	assert.Equal(t, models.DisplayUnknown, DisplayState(session(7, now), now))
	assert.Equal(t, models.DisplayUnknown, DisplayState(nil, now))

	open := session(models.SessionStateOpen, now.Add(time.Hour))
	DisplayState(open, now.Add(2*time.Hour))
	assert.Equal(t, models.SessionStateOpen, open.State, "projection never writes back")
	assert.True(t, AcceptsBets(open, now))
}
