package producer

import (
	"context"

	"vaultsync/internal/models"
)

// Producer defines the interface for the mutation export sink
type Producer interface {
	// Publish sends a single applied-mutation record to the export topic
	Publish(ctx context.Context, rec *models.MutationRecord) error

	// PublishBatch sends applied-mutation records in batch to the export topic
	PublishBatch(ctx context.Context, recs []*models.MutationRecord) error

	// Close closes the producer connection
	Close() error
}
