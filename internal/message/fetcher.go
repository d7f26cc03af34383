// Package message retrieves full message content on demand.
package message

import (
	"context"

	"go.uber.org/zap"

	"github.com/nhle/tempmail/internal/model"
	"github.com/nhle/tempmail/internal/provider"
)

// Fetcher loads one message body per call. Nothing is cached, so every
// view reflects the provider's current content.
type Fetcher struct {
	gateway provider.MessageFetcher
	logger  *zap.SugaredLogger
}

// NewFetcher creates a Fetcher backed by gateway. logger may be nil.
func NewFetcher(gateway provider.MessageFetcher, logger *zap.SugaredLogger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Fetcher{gateway: gateway, logger: logger}
}

// GetDetail fetches message id for the mailbox token owns. Gateway errors
// are returned as they are so callers can tell NotFound from transport
// failures.
func (f *Fetcher) GetDetail(ctx context.Context, token, id string) (*model.MessageDetail, error) {
	detail, err := f.gateway.FetchMessage(ctx, token, id)
	if err != nil {
		f.logger.Debugw("message fetch failed", "id", id, "error", err)
		return nil, err
	}
	return detail, nil
}
