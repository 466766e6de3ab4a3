package memory

import (
	"context"
	"sync"
	"time"

	"github.com/sokoide/orderflow/pkg/domain"
)

// Catalog is an in-memory product catalog with snapshot history. It
// stands in for the external catalog capability in tests and the demo.
type Catalog struct {
	mu        sync.RWMutex
	products  map[string]domain.ProductInfo
	snapshots map[string][]domain.ProductSnapshot
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{
		products:  make(map[string]domain.ProductInfo),
		snapshots: make(map[string][]domain.ProductSnapshot),
	}
}

func (c *Catalog) Product(ctx context.Context, id string) (domain.ProductInfo, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	info, ok := c.products[id]
	if !ok {
		return domain.ProductInfo{}, domain.ErrProductNotFound
	}
	return info, nil
}

func (c *Catalog) SaveProduct(ctx context.Context, info domain.ProductInfo) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.products[info.ID] = info
	return nil
}

// DeleteProduct removes a product, leaving its snapshots behind.
func (c *Catalog) DeleteProduct(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.products, id)
}

func (c *Catalog) RecordSnapshotIfChanged(ctx context.Context, info domain.ProductInfo) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	history := c.snapshots[info.ID]
	if len(history) > 0 && !history[len(history)-1].Changed(info) {
		return false, nil
	}
	c.snapshots[info.ID] = append(history, domain.ProductSnapshot{
		ProductID: info.ID,
		Name:      info.Name,
		Price:     info.Price,
		TakenAt:   time.Now(),
	})
	return true, nil
}

func (c *Catalog) LatestSnapshot(ctx context.Context, productID string) (*domain.ProductSnapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	history := c.snapshots[productID]
	if len(history) == 0 {
		return nil, nil
	}
	snap := history[len(history)-1]
	return &snap, nil
}
