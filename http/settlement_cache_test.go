package http

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	x402 "github.com/skillpay/x402-skills"
)

func TestSettlementKey(t *testing.T) {
	first := settlementKey([]byte(`{"x402Version":2,"payload":{"nonce":"123"}}`))
	second := settlementKey([]byte(`{"x402Version":2,"payload":{"nonce":"456"}}`))

	assert.Equal(t, first, settlementKey([]byte(`{"x402Version":2,"payload":{"nonce":"123"}}`)))
	assert.NotEqual(t, first, second)
	assert.Len(t, first, 64)
}

func TestSettlementCacheReplaysSuccess(t *testing.T) {
	cache := newSettlementCache(time.Minute)
	var calls int
	settle := func() (*x402.SettleResponse, error) {
		calls++
		return &x402.SettleResponse{Success: true, Transaction: "0x123"}, nil
	}

	response, replayed, err := cache.settle(context.Background(), "key", settle)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, "0x123", response.Transaction)

	response, replayed, err = cache.settle(context.Background(), "key", settle)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, "0x123", response.Transaction)
	assert.Equal(t, 1, calls)
}

func TestSettlementCacheSkipsFailures(t *testing.T) {
	cache := newSettlementCache(time.Minute)
	var calls int

	_, _, err := cache.settle(context.Background(), "key", func() (*x402.SettleResponse, error) {
		calls++
		return nil, errors.New("facilitator down")
	})
	require.Error(t, err)

	response, _, err := cache.settle(context.Background(), "key", func() (*x402.SettleResponse, error) {
		calls++
		return &x402.SettleResponse{Success: false, ErrorReason: "insufficient_funds"}, nil
	})
	require.NoError(t, err)
	assert.False(t, response.Success)

	_, replayed, err := cache.settle(context.Background(), "key", func() (*x402.SettleResponse, error) {
		calls++
		return &x402.SettleResponse{Success: true}, nil
	})
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 3, calls)
}

func TestSettlementCacheExpiry(t *testing.T) {
	cache := newSettlementCache(time.Minute)
	now := time.Unix(1700000000, 0)
	cache.now = func() time.Time { return now }
	var calls int
	settle := func() (*x402.SettleResponse, error) {
		calls++
		return &x402.SettleResponse{Success: true}, nil
	}

	_, _, err := cache.settle(context.Background(), "key", settle)
	require.NoError(t, err)

	now = now.Add(time.Minute)
	_, replayed, err := cache.settle(context.Background(), "key", settle)
	require.NoError(t, err)
	assert.False(t, replayed)
	assert.Equal(t, 2, calls)
}

func TestSettlementCacheCollapsesConcurrentSettles(t *testing.T) {
	cache := newSettlementCache(time.Minute)
	release := make(chan struct{})
	var calls int32
	settle := func() (*x402.SettleResponse, error) {
		atomic.AddInt32(&calls, 1)
		<-release
		return &x402.SettleResponse{Success: true, Transaction: "0xabc"}, nil
	}

	const callers = 5
	var wg sync.WaitGroup
	results := make([]*x402.SettleResponse, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			response, _, err := cache.settle(context.Background(), "key", settle)
			assert.NoError(t, err)
			results[i] = response
		}(i)
	}

	require.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 1 }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, response := range results {
		require.NotNil(t, response)
		assert.Equal(t, "0xabc", response.Transaction)
	}
}

func TestSettlementCacheWaitHonorsContext(t *testing.T) {
	cache := newSettlementCache(time.Minute)
	release := make(chan struct{})
	started := make(chan struct{})
	go func() {
		_, _, _ = cache.settle(context.Background(), "key", func() (*x402.SettleResponse, error) {
			close(started)
			<-release
			return &x402.SettleResponse{Success: true}, nil
		})
	}()
	<-started
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := cache.settle(ctx, "key", func() (*x402.SettleResponse, error) {
		t.Fatal("waiter must not settle")
		return nil, nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestProcessSettlementSettlesProofOnce(t *testing.T) {
	facilitator := &mockFacilitatorClient{}
	service := newTestService(t, facilitator)
	verified := &VerifiedPayment{
		Version:      2,
		PayloadBytes: []byte(`{"x402Version":2,"payload":{"signature":"0xsig"}}`),
		Requirements: x402.PaymentRequirements{Scheme: "exact", Network: "eip155:8453", Amount: "10000"},
	}

	first, err := service.ProcessSettlement(context.Background(), verified)
	require.NoError(t, err)
	second, err := service.ProcessSettlement(context.Background(), verified)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, facilitator.settleCalls)

	uncached, err := NewResourceService(testRoutes(), WithFacilitatorClient(facilitator), WithServiceLogger(testLogger()), WithSettlementTTL(0))
	require.NoError(t, err)
	_, err = uncached.ProcessSettlement(context.Background(), verified)
	require.NoError(t, err)
	_, err = uncached.ProcessSettlement(context.Background(), verified)
	require.NoError(t, err)
	assert.Equal(t, 3, facilitator.settleCalls)
}
