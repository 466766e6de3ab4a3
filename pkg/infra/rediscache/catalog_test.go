package rediscache

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
)

type stubCatalog struct {
	info  domain.ProductInfo
	err   error
	calls int
}

func (s *stubCatalog) Product(ctx context.Context, id string) (domain.ProductInfo, error) {
	s.calls++
	if s.err != nil {
		return domain.ProductInfo{}, s.err
	}
	return s.info, nil
}

func testProduct() domain.ProductInfo {
	return domain.ProductInfo{
		ID:    "p1",
		Name:  "Widget",
		Price: decimal.NewFromFloat(19.99),
	}
}

func TestProductCacheMissLoadsAndStores(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	backing := &stubCatalog{info: testProduct()}
	cache := NewCatalog(rdb, backing, time.Minute, zap.NewNop())

	blob, err := json.Marshal(testProduct())
	require.NoError(t, err)
	mock.ExpectGet("catalog:product:p1").RedisNil()
	mock.ExpectSet("catalog:product:p1", blob, time.Minute).SetVal("OK")

	info, err := cache.Product(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Widget", info.Name)
	require.Equal(t, 1, backing.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductCacheHitSkipsBacking(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	backing := &stubCatalog{info: testProduct()}
	cache := NewCatalog(rdb, backing, time.Minute, zap.NewNop())

	blob, err := json.Marshal(testProduct())
	require.NoError(t, err)
	mock.ExpectGet("catalog:product:p1").SetVal(string(blob))

	info, err := cache.Product(context.Background(), "p1")
	require.NoError(t, err)
	require.True(t, info.Price.Equal(decimal.NewFromFloat(19.99)))
	require.Equal(t, 0, backing.calls)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProductNotFoundPassesThrough(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	backing := &stubCatalog{err: domain.ErrProductNotFound}
	cache := NewCatalog(rdb, backing, time.Minute, zap.NewNop())

	mock.ExpectGet("catalog:product:ghost").RedisNil()

	_, err := cache.Product(context.Background(), "ghost")
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvalidate(t *testing.T) {
	rdb, mock := redismock.NewClientMock()
	cache := NewCatalog(rdb, &stubCatalog{}, time.Minute, zap.NewNop())

	mock.ExpectDel("catalog:product:p1").SetVal(1)
	require.NoError(t, cache.Invalidate(context.Background(), "p1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
