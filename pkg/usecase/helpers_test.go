package usecase

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
	"github.com/sokoide/orderflow/pkg/infra/gateway"
	"github.com/sokoide/orderflow/pkg/infra/memory"
)

const (
	testCartID = "cart-1"
	testUserID = "user-1"
)

type fixture struct {
	t   *testing.T
	ctx context.Context

	store     *memory.Store
	orderRepo *memory.OrderRepository
	payRepo   *memory.PaymentRepository
	catalog   *memory.Catalog
	notifier  *memory.Notifier

	ledger     *Ledger
	cart       *Cart
	orders     *Orders
	payments   *Payments
	reconciler *Reconciler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	log := zap.NewNop()

	store := memory.NewStore()
	inv := memory.NewInventoryRepository(store)
	lines := memory.NewCartLineRepository(store)
	orderRepo := memory.NewOrderRepository(store)
	payRepo := memory.NewPaymentRepository(store)
	catalog := memory.NewCatalog()
	notifier := memory.NewNotifier()

	ledger := NewLedger(store, inv, log)
	cart := NewCart(store, lines, ledger, log)
	orders := NewOrders(OrdersDeps{
		Store:     store,
		Orders:    orderRepo,
		Lines:     lines,
		Ledger:    ledger,
		Catalog:   catalog,
		Snapshots: catalog,
		Notifier:  notifier,
		Logger:    log,
	}, 0)

	registry := NewGatewayRegistry()
	registry.Register(gateway.NewTest(), domain.FeeSchedule{
		Fixed:      decimal.NewFromFloat(0.30),
		Percentage: decimal.NewFromFloat(2.5),
	})
	registry.Register(gateway.NewCashOnDelivery(), domain.FeeSchedule{})
	registry.Register(gateway.NewBankTransfer(), domain.FeeSchedule{
		Fixed: decimal.NewFromFloat(1.00),
	})

	payments := NewPayments(store, payRepo, orders, registry, notifier, log)
	reconciler := NewReconciler(orders, orderRepo, log)

	return &fixture{
		t:          t,
		ctx:        context.Background(),
		store:      store,
		orderRepo:  orderRepo,
		payRepo:    payRepo,
		catalog:    catalog,
		notifier:   notifier,
		ledger:     ledger,
		cart:       cart,
		orders:     orders,
		payments:   payments,
		reconciler: reconciler,
	}
}

func (f *fixture) seedProduct(id, name string, price float64, available int) domain.UnitRef {
	f.t.Helper()
	f.store.SeedProduct(id, available)
	require.NoError(f.t, f.catalog.SaveProduct(f.ctx, domain.ProductInfo{
		ID:    id,
		Name:  name,
		Price: decimal.NewFromFloat(price),
	}))
	return domain.UnitRef{ProductID: id}
}

func (f *fixture) seedSizedProduct(id, name string, price float64, sizes map[string]int) {
	f.t.Helper()
	f.store.SeedSizedProduct(id, sizes)
	names := make([]string, 0, len(sizes))
	for size := range sizes {
		names = append(names, size)
	}
	require.NoError(f.t, f.catalog.SaveProduct(f.ctx, domain.ProductInfo{
		ID:       id,
		Name:     name,
		Price:    decimal.NewFromFloat(price),
		HasSizes: true,
		Sizes:    names,
	}))
}

func (f *fixture) level(ref domain.UnitRef) domain.StockLevel {
	f.t.Helper()
	level, err := f.ledger.CheckAvailability(f.ctx, ref)
	require.NoError(f.t, err)
	return level
}

// checkout seeds a product, puts quantity in the cart and checks out,
// returning the created batch.
func (f *fixture) checkout(productID string, price float64, available, quantity int) []*domain.Order {
	f.t.Helper()
	ref := f.seedProduct(productID, productID+" name", price, available)
	_, err := f.cart.Add(f.ctx, testCartID, ref, quantity)
	require.NoError(f.t, err)
	orders, err := f.orders.CheckoutCart(f.ctx, testUserID, testCartID, CheckoutOptions{
		ShippingAddress: "1 Main St",
		PaymentMethod:   "card",
	})
	require.NoError(f.t, err)
	return orders
}
