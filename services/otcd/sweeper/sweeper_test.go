package sweeper

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"otcswap/core/state"
	"otcswap/native/otc"
	"otcswap/storage"
)

type countingExpirer struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingExpirer) ExpireDue(admin [20]byte, limit int) ([][20]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return nil, c.err
}

func (c *countingExpirer) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func TestSweepExpiresOverdueOffers(t *testing.T) {
	admin := [20]byte{0xAD}
	maker := [20]byte{0x01}
	input, output := [20]byte{0xA1}, [20]byte{0xB2}
	now := int64(1_700_000_000)

	st, err := state.NewManager(storage.NewMemDB())
	require.NoError(t, err)
	engine := otc.NewEngine(st)
	engine.SetNowFunc(func() int64 { return now })
	require.NoError(t, engine.InitializeAdmin(admin, 0, admin, false, nil))
	require.NoError(t, engine.Credit(maker, input, 300))
	for id := uint64(1); id <= 3; id++ {
		_, err := engine.CreateOffer(otc.CreateOfferParams{
			Maker: maker, OfferID: id, InputAsset: input, OutputAsset: output,
			TokenAmount: 100, ExpectedTotalAmount: 100, Deadline: now + int64(id)*10,
		})
		require.NoError(t, err)
	}

	now += 25
	s := New(engine, Config{Admin: admin, BatchSize: 10})
	require.Equal(t, 2, s.Sweep())
	require.Equal(t, 0, s.Sweep())

	stats, err := engine.Stats()
	require.NoError(t, err)
	require.Equal(t, uint64(2), stats.ExpiredOffers)
	require.Equal(t, uint64(1), stats.ActiveOffers)
	require.Equal(t, now, stats.LastExpiryCheck)
}

func TestSweepLogsErrors(t *testing.T) {
	exp := &countingExpirer{err: errors.New("boom")}
	s := New(exp, Config{})
	require.Equal(t, 0, s.Sweep())
	require.Equal(t, 1, exp.count())
}

func TestRunStopsOnCancel(t *testing.T) {
	exp := &countingExpirer{}
	s := New(exp, Config{Interval: 5 * time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return exp.count() >= 2 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
