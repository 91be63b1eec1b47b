package presence

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingPruner struct {
	mu      sync.Mutex
	cutoffs []time.Time
	err     error
}

func (p *countingPruner) DeleteBefore(_ context.Context, cutoff time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cutoffs = append(p.cutoffs, cutoff)
	return 1, p.err
}

func (p *countingPruner) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.cutoffs)
}

func TestRunRetentionDisabled(t *testing.T) {
	p := &countingPruner{}
	RunRetention(context.Background(), p, 0, time.Millisecond, nil)
	assert.Zero(t, p.calls())
}

func TestRunRetentionPrunesUntilCancelled(t *testing.T) {
	p := &countingPruner{err: errors.New("busy")}
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		RunRetention(ctx, p, time.Hour, 5*time.Millisecond, nil)
		close(done)
	}()

	require.Eventually(t, func() bool { return p.calls() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunRetention did not stop")
	}

	p.mu.Lock()
	first := p.cutoffs[0]
	p.mu.Unlock()
	assert.WithinDuration(t, time.Now().Add(-time.Hour), first, time.Minute)
}
