package worker

// email_worker.go
// Processes email jobs from QueueEmail: mails the PDF receipt to the customer
// through the circuit-breaker-guarded SMTP mailer and records the delivery
// outcome on the Receipt row.

import (
	"context"
	"encoding/json"
	"time"

	"tillpos/internal/infra"
	"tillpos/internal/model"
	"tillpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type EmailWorker struct {
	mailer     *infra.Mailer
	receipts   repository.ReceiptRepository
	dispatcher *Dispatcher
}

func NewEmailWorker(mailer *infra.Mailer, receipts repository.ReceiptRepository, dispatcher *Dispatcher) *EmailWorker {
	return &EmailWorker{mailer: mailer, receipts: receipts, dispatcher: dispatcher}
}

// Process sends an email with the PDF receipt as attachment. A failed send
// puts the receipt back in pending with a next_retry_at so the cron requeues
// it; the PDF is not regenerated on that path.
func (w *EmailWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload EmailJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("email_worker: invalid payload")
		return
	}
	if payload.ToEmail == "" {
		log.Warn().Msg("email_worker: empty to_email, skipping")
		return
	}

	sendErr := w.mailer.Send(payload.ToEmail, payload.Subject, payload.Body, payload.PDFPath)

	rec := w.findReceipt(ctx, payload.SaleID)

	if sendErr != nil {
		log.Error().Err(sendErr).Str("to", payload.ToEmail).Msg("email_worker: failed to send email")
		if rec != nil {
			msg := sendErr.Error()
			rec.RetryCount++
			rec.LastError = &msg
			if rec.RetryCount >= maxReceiptRetries {
				rec.Status = model.ReceiptFailed
				rec.NextRetryAt = nil
				w.dispatcher.sendToDLQ(ctx, QueueEmail, "email", raw, msg, rec.RetryCount)
			} else {
				next := time.Now().Add(time.Duration(1<<uint(rec.RetryCount-1)) * time.Minute)
				rec.Status = model.ReceiptPending
				rec.NextRetryAt = &next
			}
			if err := w.receipts.Update(ctx, rec); err != nil {
				log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("email_worker: failed to record send failure")
			}
		}
		return
	}

	if rec != nil {
		rec.Status = model.ReceiptSent
		rec.NextRetryAt = nil
		rec.LastError = nil
		if err := w.receipts.Update(ctx, rec); err != nil {
			log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("email_worker: failed to mark receipt sent")
		}
	}
	log.Info().Str("to", payload.ToEmail).Msg("email_worker: receipt sent")
}

func (w *EmailWorker) findReceipt(ctx context.Context, saleID string) *model.Receipt {
	if saleID == "" {
		return nil
	}
	id, err := uuid.Parse(saleID)
	if err != nil {
		return nil
	}
	rec, err := w.receipts.FindBySaleID(ctx, id)
	if err != nil {
		return nil
	}
	return rec
}
