package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/sokoide/orderflow/pkg/domain"
)

// CatalogWriter is the catalog mutation path. Snapshot recording is an
// explicit call made here, not a hidden save hook, so every write that
// can invalidate a frozen order field leaves a history entry behind.
type CatalogWriter struct {
	writer    domain.CatalogWriter
	snapshots domain.SnapshotStore
	log       *zap.Logger
}

// NewCatalogWriter creates a new CatalogWriter.
func NewCatalogWriter(writer domain.CatalogWriter, snapshots domain.SnapshotStore, log *zap.Logger) *CatalogWriter {
	return &CatalogWriter{writer: writer, snapshots: snapshots, log: log}
}

// SaveProduct persists the product and records a snapshot when any
// frozen field changed.
func (w *CatalogWriter) SaveProduct(ctx context.Context, info domain.ProductInfo) error {
	if err := w.writer.SaveProduct(ctx, info); err != nil {
		return err
	}
	wrote, err := w.snapshots.RecordSnapshotIfChanged(ctx, info)
	if err != nil {
		return err
	}
	if wrote {
		w.log.Debug("catalog snapshot recorded", zap.String("product_id", info.ID))
	}
	return nil
}
