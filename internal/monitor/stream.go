// File: internal/monitor/stream.go
package monitor

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/smartdevs17/stakebet/pkg/utils"
)

// ErrStreamClosed is returned by Next once the stream has been closed.
var ErrStreamClosed = errors.New("block stream closed")

// BlockStream is a lazy, infinite, non-restartable sequence of block
// headers. Close releases the underlying subscription; it is safe to call
// more than once and from any goroutine.
type BlockStream struct {
	headers <-chan *types.Header
	errs    <-chan error
	release func()

	once   sync.Once
	closed chan struct{}
}

func newBlockStream(headers <-chan *types.Header, errs <-chan error, release func()) *BlockStream {
	return &BlockStream{
		headers: headers,
		errs:    errs,
		release: release,
		closed:  make(chan struct{}),
	}
}

// Next blocks until the next header arrives. A subscription failure ends
// the stream; callers open a new one rather than retrying Next.
func (s *BlockStream) Next(ctx context.Context) (*types.Header, error) {
	select {
	case <-s.closed:
		return nil, ErrStreamClosed
	default:
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.closed:
		return nil, ErrStreamClosed
	case err, ok := <-s.errs:
		if !ok || err == nil {
			return nil, ErrStreamClosed
		}
		return nil, utils.WrapError(utils.ErrCodeConnection, "block subscription failed", err)
	case header, ok := <-s.headers:
		if !ok {
			return nil, ErrStreamClosed
		}
		return header, nil
	}
}

// Close tears the stream down.
func (s *BlockStream) Close() {
	s.once.Do(func() {
		close(s.closed)
		if s.release != nil {
			s.release()
		}
	})
}

// HeadSource opens block streams.
type HeadSource interface {
	Subscribe(ctx context.Context) (*BlockStream, error)
}

// HeadSubscriber is satisfied by *ethclient.Client over websocket or IPC.
type HeadSubscriber interface {
	SubscribeNewHead(ctx context.Context, ch chan<- *types.Header) (ethereum.Subscription, error)
}

// SubscriptionSource streams heads pushed by the node.
type SubscriptionSource struct {
	client HeadSubscriber
}

// NewSubscriptionSource creates a push-based head source.
func NewSubscriptionSource(client HeadSubscriber) *SubscriptionSource {
	return &SubscriptionSource{client: client}
}

// Subscribe opens a newHeads subscription.
func (s *SubscriptionSource) Subscribe(ctx context.Context) (*BlockStream, error) {
	headers := make(chan *types.Header, 16)
	sub, err := s.client.SubscribeNewHead(ctx, headers)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeConnection, "failed to subscribe to new heads", err)
	}
	return newBlockStream(headers, sub.Err(), sub.Unsubscribe), nil
}

// HeadReader is satisfied by *ethclient.Client over any transport.
type HeadReader interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// PollingSource emulates a head subscription by polling the latest header,
// for HTTP endpoints that cannot push.
type PollingSource struct {
	client   HeadReader
	interval time.Duration
	logger   *logrus.Entry
}

// NewPollingSource creates a head source that polls every interval.
func NewPollingSource(client HeadReader, interval time.Duration) *PollingSource {
	return &PollingSource{
		client:   client,
		interval: interval,
		logger:   utils.Component("head_poller"),
	}
}

// Subscribe starts a polling goroutine that lives until the stream is closed.
func (p *PollingSource) Subscribe(ctx context.Context) (*BlockStream, error) {
	headers := make(chan *types.Header, 1)
	done := make(chan struct{})
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.pollLoop(done, headers)
	}()

	return newBlockStream(headers, nil, func() {
		close(done)
		wg.Wait()
	}), nil
}

func (p *PollingSource) pollLoop(done <-chan struct{}, headers chan<- *types.Header) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	var last *big.Int
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), p.interval)
		header, err := p.client.HeaderByNumber(ctx, nil)
		cancel()
		if err != nil {
			p.logger.WithError(err).Debug("Failed to poll latest header")
			continue
		}
		if last != nil && header.Number.Cmp(last) <= 0 {
			continue
		}
		last = new(big.Int).Set(header.Number)

		select {
		case headers <- header:
		case <-done:
			return
		}
	}
}
