package worker

// retry_cron.go
// Periodically requeues receipts whose next_retry_at has come due. The
// receipt worker finds the already-rendered PDF on the row and only the
// failing step (generation or delivery) is repeated.

import (
	"context"
	"time"

	"tillpos/internal/repository"

	"github.com/rs/zerolog/log"
)

const retryBatchSize = 50

// StartRetryCron polls for due receipt retries every interval until ctx is
// cancelled. Runs in its own goroutine.
func StartRetryCron(ctx context.Context, receipts repository.ReceiptRepository, dispatcher *Dispatcher, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		log.Info().Dur("interval", interval).Msg("retry cron started")
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("retry cron shutting down")
				return
			case <-ticker.C:
				runRetryPass(ctx, receipts, dispatcher)
			}
		}
	}()
}

func runRetryPass(ctx context.Context, receipts repository.ReceiptRepository, dispatcher *Dispatcher) {
	due, err := receipts.ListPendingRetry(ctx, time.Now(), retryBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("retry cron: failed to list due receipts")
		return
	}
	for i := range due {
		rec := &due[i]
		payload := ReceiptJobPayload{
			SaleID:        rec.SaleID.String(),
			CustomerEmail: rec.Email,
		}
		if err := dispatcher.EnqueueReceipt(ctx, payload); err != nil {
			log.Error().Err(err).Str("sale_id", rec.SaleID.String()).Msg("retry cron: failed to requeue receipt")
			continue
		}
		// Clear the due marker so the next pass does not double-enqueue;
		// the worker reschedules on failure.
		rec.NextRetryAt = nil
		if err := receipts.Update(ctx, rec); err != nil {
			log.Error().Err(err).Str("sale_id", rec.SaleID.String()).Msg("retry cron: failed to clear retry marker")
		}
	}
	if len(due) > 0 {
		log.Info().Int("count", len(due)).Msg("retry cron: receipts requeued")
	}
}
