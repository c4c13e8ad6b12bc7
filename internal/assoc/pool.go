package assoc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/clinicore/xray-console/pkg/config"
	"github.com/clinicore/xray-console/pkg/errkind"
	"github.com/clinicore/xray-console/pkg/model"
)

// pooledAssociation tracks an idle association's last-use time for
// eviction.
type pooledAssociation struct {
	assoc  *Association
	idleAt time.Time
}

// destinationPool is a bounded set of idle associations to one AE.
type destinationPool struct {
	mu    sync.Mutex
	idle  []*pooledAssociation
	inUse int
}

// Pool bounds the number of concurrent associations per destination AE,
// per spec.md §5.1 (default max 4), and evicts associations idle past
// IdleEvictionMS.
type Pool struct {
	mu         sync.Mutex
	callingAE  string
	opts       config.PoolOptions
	byDest     map[string]*destinationPool
}

// NewPool constructs a Pool with the given calling AE title and pool
// sizing options.
func NewPool(callingAE string, opts config.PoolOptions) *Pool {
	return &Pool{
		callingAE: callingAE,
		opts:      opts,
		byDest:    make(map[string]*destinationPool),
	}
}

func destKey(dest model.Destination) string {
	return fmt.Sprintf("%s@%s:%d", dest.AETitle, dest.Host, dest.Port)
}

func (p *Pool) poolFor(dest model.Destination) *destinationPool {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := destKey(dest)
	dp, ok := p.byDest[key]
	if !ok {
		dp = &destinationPool{}
		p.byDest[key] = dp
	}
	return dp
}

// Acquire returns an idle association if one is available and still
// fresh, dials a new one if the pool has capacity, or blocks until
// capacity frees up or ctx expires.
func (p *Pool) Acquire(ctx context.Context, dest model.Destination, proposed []ProposedContext) (*Association, error) {
	dp := p.poolFor(dest)
	deadline := time.Now().Add(time.Duration(p.opts.AcquisitionTimeoutMS) * time.Millisecond)
	if d, ok := ctx.Deadline(); !ok || d.After(deadline) {
		var cancel context.CancelFunc
		ctx, cancel = context.WithDeadline(ctx, deadline)
		defer cancel()
	}

	for {
		dp.mu.Lock()
		for len(dp.idle) > 0 {
			pa := dp.idle[len(dp.idle)-1]
			dp.idle = dp.idle[:len(dp.idle)-1]
			if time.Since(pa.idleAt) > time.Duration(p.opts.IdleEvictionMS)*time.Millisecond {
				dp.mu.Unlock()
				pa.assoc.Abort()
				dp.mu.Lock()
				continue
			}
			dp.inUse++
			dp.mu.Unlock()
			return pa.assoc, nil
		}
		if dp.inUse < p.opts.MaxSize {
			dp.inUse++
			dp.mu.Unlock()
			a, err := Dial(ctx, dest, p.callingAE, proposed)
			if err != nil {
				dp.mu.Lock()
				dp.inUse--
				dp.mu.Unlock()
				return nil, err
			}
			return a, nil
		}
		dp.mu.Unlock()

		select {
		case <-ctx.Done():
			return nil, errkind.New(errkind.PoolExhausted, fmt.Sprintf("assoc: pool exhausted for %s", destKey(dest)))
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Release returns a healthy association to its destination's idle set, or
// discards it (and frees the slot) if it was aborted.
func (p *Pool) Release(dest model.Destination, a *Association, healthy bool) {
	dp := p.poolFor(dest)
	dp.mu.Lock()
	defer dp.mu.Unlock()
	dp.inUse--
	if !healthy {
		return
	}
	dp.idle = append(dp.idle, &pooledAssociation{assoc: a, idleAt: time.Now()})
}
