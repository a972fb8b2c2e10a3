//go:build integration

package idempotency_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/suite"

	"govern/internal/guard/idempotency"
	"govern/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	ctx   context.Context
	redis *containers.RedisContainer
	store *idempotency.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.redis = containers.NewRedisContainer(s.T())
	s.store = idempotency.NewRedisStore(s.redis.Client, "govern:idem:")
}

func (s *RedisStoreSuite) SetupTest() {
	s.Require().NoError(s.redis.FlushAll(s.ctx))
}

func (s *RedisStoreSuite) TestClaimIsAtomic() {
	won, err := s.store.Claim(s.ctx, "op-1")
	s.NoError(err)
	s.True(won)

	won, err = s.store.Claim(s.ctx, "op-1")
	s.NoError(err)
	s.False(won)
}

func (s *RedisStoreSuite) TestReleaseReopensClaim() {
	won, err := s.store.Claim(s.ctx, "op-2")
	s.NoError(err)
	s.True(won)

	s.NoError(s.store.Release(s.ctx, "op-2"))

	won, err = s.store.Claim(s.ctx, "op-2")
	s.NoError(err)
	s.True(won)
}

func (s *RedisStoreSuite) TestCompleteIsPermanent() {
	won, err := s.store.Claim(s.ctx, "op-3")
	s.NoError(err)
	s.True(won)
	s.NoError(s.store.Complete(s.ctx, "op-3"))

	won, err = s.store.Claim(s.ctx, "op-3")
	s.NoError(err)
	s.False(won)
}

func (s *RedisStoreSuite) TestGuardOverRedis() {
	guard, err := idempotency.NewGuard(s.store)
	s.Require().NoError(err)

	const workers = 8
	var ran atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := guard.Run(s.ctx, "op-race", func(context.Context) error {
				ran.Add(1)
				return nil
			})
			if err != nil {
				s.ErrorIs(err, idempotency.ErrDuplicate)
			}
		}()
	}
	wg.Wait()

	s.Equal(int64(1), ran.Load())
}
