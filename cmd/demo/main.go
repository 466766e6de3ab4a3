// demo walks the whole order lifecycle against the in-memory store:
// cart, checkout, a declined charge, a successful retry, a partial
// refund and an expiry sweep. No external services required.
package main

import (
	"context"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
	"github.com/sokoide/orderflow/pkg/infra/gateway"
	"github.com/sokoide/orderflow/pkg/infra/memory"
	"github.com/sokoide/orderflow/pkg/usecase"
)

func main() {
	ctx := context.Background()
	zlog, err := zap.NewDevelopment()
	if err != nil {
		log.Fatal(err)
	}
	defer zlog.Sync()

	store := memory.NewStore()
	inv := memory.NewInventoryRepository(store)
	lines := memory.NewCartLineRepository(store)
	orderRepo := memory.NewOrderRepository(store)
	payRepo := memory.NewPaymentRepository(store)
	catalog := memory.NewCatalog()
	notifier := memory.NewNotifier()

	ledger := usecase.NewLedger(store, inv, zlog)
	cart := usecase.NewCart(store, lines, ledger, zlog)
	orders := usecase.NewOrders(usecase.OrdersDeps{
		Store:     store,
		Orders:    orderRepo,
		Lines:     lines,
		Ledger:    ledger,
		Catalog:   catalog,
		Snapshots: catalog,
		Notifier:  notifier,
		Logger:    zlog,
	}, 15*time.Minute)
	registry := usecase.NewGatewayRegistry()
	registry.Register(gateway.NewTest(), domain.FeeSchedule{
		Fixed:      decimal.NewFromFloat(0.30),
		Percentage: decimal.NewFromFloat(2.5),
	})
	payments := usecase.NewPayments(store, payRepo, orders, registry, notifier, zlog)

	// Seed the shop.
	store.SeedProduct("widget", 10)
	store.SeedSizedProduct("shirt", map[string]int{"M": 5, "L": 3})
	must(catalog.SaveProduct(ctx, domain.ProductInfo{
		ID: "widget", Name: "Widget", Price: decimal.NewFromFloat(19.99),
	}))
	must(catalog.SaveProduct(ctx, domain.ProductInfo{
		ID: "shirt", Name: "Shirt", Price: decimal.NewFromFloat(25.00),
		HasSizes: true, Sizes: []string{"M", "L"},
	}))

	// Fill the cart and check out.
	_, err = cart.Add(ctx, "cart-1", domain.UnitRef{ProductID: "widget"}, 2)
	must(err)
	_, err = cart.Add(ctx, "cart-1", domain.UnitRef{ProductID: "shirt", Size: "M"}, 1)
	must(err)
	batch, err := orders.CheckoutCart(ctx, "user-1", "cart-1", usecase.CheckoutOptions{
		ShippingAddress: "1 Main St",
		PaymentMethod:   "card",
	})
	must(err)
	log.Printf("checked out %d orders under %s", len(batch), batch[0].PaymentHash)

	// First charge declines, second succeeds.
	payment, err := payments.CreateForOrders(ctx, batch, "card", domain.GatewayTest)
	must(err)
	log.Printf("payment %s: amount=%s fee=%s", payment.ID, payment.Amount, payment.FeeAmount)

	failed, err := payments.Process(ctx, payment.ID, usecase.ProcessRequest{
		CardNumber: gateway.CardDeclined,
	})
	must(err)
	log.Printf("attempt 1: %s (%s)", failed.Status, failed.FailureReason)

	completed, err := payments.Process(ctx, payment.ID, usecase.ProcessRequest{
		CardNumber: "4242424242424242",
	})
	must(err)
	log.Printf("attempt 2: %s txn=%s", completed.Status, completed.TransactionID)

	for _, o := range batch {
		got, err := orders.Get(ctx, o.ID)
		must(err)
		log.Printf("order %s: %s / %s", got.ID, got.Status, got.PaymentStatus)
	}

	// Partial refund.
	refund, err := payments.Refund(ctx, payment.ID, decimal.NewFromInt(10), "damaged item")
	must(err)
	log.Printf("refund %s: %s", refund.ID, refund.Status)

	// An abandoned checkout gets swept once its window lapses.
	_, err = cart.Add(ctx, "cart-2", domain.UnitRef{ProductID: "shirt", Size: "L"}, 2)
	must(err)
	_, err = orders.CheckoutCart(ctx, "user-2", "cart-2", usecase.CheckoutOptions{})
	must(err)
	log.Printf("events so far: %d", len(notifier.Events()))
	log.Println("demo finished")
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
