package betting

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/internal/metrics"
	"github.com/smartdevs17/stakebet/internal/models"
	"github.com/smartdevs17/stakebet/pkg/utils"
	"golang.org/x/sync/errgroup"
)

// DefaultSliceSize bounds how many ids one slice call returns.
const DefaultSliceSize = 100

// SessionSource reads betting sessions from the bet manager.
type SessionSource interface {
	SessionCount(ctx context.Context) (uint64, error)
	SessionIDs(ctx context.Context, start, end uint64) ([]*big.Int, error)
	Session(ctx context.Context, id *big.Int) (*models.BettingSession, error)
	WageredBy(ctx context.Context, id *big.Int, user common.Address) (*big.Int, error)
}

// ProgressFunc receives the share of ids fetched so far, in whole percent.
type ProgressFunc func(percent int)

// LoaderConfig holds loader configuration
type LoaderConfig struct {
	SliceSize      int
	MaxConcurrency int
}

// Loader enumerates every betting session.
type Loader struct {
	source         SessionSource
	config         LoaderConfig
	metricsManager *metrics.Manager
	logger         *logrus.Entry
}

// NewLoader creates a session list loader
func NewLoader(source SessionSource, config LoaderConfig, metricsManager *metrics.Manager) *Loader {
	if config.SliceSize <= 0 {
		config.SliceSize = DefaultSliceSize
	}
	if config.MaxConcurrency <= 0 {
		config.MaxConcurrency = 16
	}
	return &Loader{
		source:         source,
		config:         config,
		metricsManager: metricsManager,
		logger:         utils.Component("session_loader"),
	}
}

// Load reads the session count, pages through the ids one slice at a time,
// then fetches every session's details concurrently. When caller is set,
// each session also carries the caller's wagered amount. The list is
// returned in id order and only once every fetch has completed.
func (l *Loader) Load(ctx context.Context, caller *common.Address, progress ProgressFunc) ([]*models.BettingSession, error) {
	start := time.Now()

	total, err := l.source.SessionCount(ctx)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		l.record(0, start)
		return []*models.BettingSession{}, nil
	}

	ids, err := l.loadIDs(ctx, total, progress)
	if err != nil {
		return nil, err
	}

	sessions := make([]*models.BettingSession, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.config.MaxConcurrency)
	for i, id := range ids {
		g.Go(func() error {
			session, err := l.source.Session(gctx, id)
			if err != nil {
				return err
			}
			if caller != nil {
				wagered, err := l.source.WageredBy(gctx, id, *caller)
				if err != nil {
					return err
				}
				session.CallerWagered = wagered
			}
			sessions[i] = session
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	l.record(len(sessions), start)
	l.logger.WithFields(logrus.Fields{
		"sessions": len(sessions),
		"duration": time.Since(start),
	}).Debug("Betting sessions loaded")
	return sessions, nil
}

func (l *Loader) loadIDs(ctx context.Context, total uint64, progress ProgressFunc) ([]*big.Int, error) {
	size := uint64(l.config.SliceSize)
	ids := make([]*big.Int, 0, total)

	for retrieved := uint64(0); retrieved < total; {
		end := retrieved + size
		if end > total {
			end = total
		}

		slice, err := l.source.SessionIDs(ctx, retrieved, end)
		if pm := l.metricsManager.GetPrometheusMetrics(); pm != nil {
			pm.RecordSliceCall()
		}
		if err != nil {
			return nil, err
		}
		if uint64(len(slice)) != end-retrieved {
			return nil, utils.NewAppError(utils.ErrCodeBlockchain, "short session id slice",
				fmt.Sprintf("[%d,%d) returned %d ids", retrieved, end, len(slice)))
		}

		ids = append(ids, slice...)
		retrieved = end

		if progress != nil {
			progress(int(math.Round(float64(retrieved) * 100 / float64(total))))
		}
	}
	return ids, nil
}

func (l *Loader) record(count int, start time.Time) {
	if pm := l.metricsManager.GetPrometheusMetrics(); pm != nil {
		pm.RecordSessionsLoaded(count, time.Since(start))
	}
}
