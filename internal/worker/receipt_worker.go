package worker

// receipt_worker.go
// Processes receipt jobs from QueueReceipt: renders the thermal PDF for a
// committed sale and, when the customer left an email, hands delivery off to
// the email queue. Also renders session close reports (job type "report").

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"tillpos/internal/infra"
	"tillpos/internal/model"
	"tillpos/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const maxReceiptRetries = 5

// ReceiptWorker renders receipt and session report PDFs.
type ReceiptWorker struct {
	sales          repository.SaleRepository
	sessions       repository.SessionRepository
	receipts       repository.ReceiptRepository
	dispatcher     *Dispatcher
	pdfStoragePath string
	businessName   string
}

func NewReceiptWorker(
	sales repository.SaleRepository,
	sessions repository.SessionRepository,
	receipts repository.ReceiptRepository,
	dispatcher *Dispatcher,
	pdfStoragePath string,
	businessName string,
) *ReceiptWorker {
	return &ReceiptWorker{
		sales:          sales,
		sessions:       sessions,
		receipts:       receipts,
		dispatcher:     dispatcher,
		pdfStoragePath: pdfStoragePath,
		businessName:   businessName,
	}
}

// Process handles one receipt job:
//  1. Fetch the sale (with items)
//  2. Load or create the Receipt record
//  3. Render the PDF, with in-process retries
//  4. On failure, schedule a cron retry (or move to DLQ at the cap)
//  5. Enqueue the email job when the customer left an address
func (w *ReceiptWorker) Process(ctx context.Context, raw json.RawMessage) {
	var payload ReceiptJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("receipt_worker: invalid payload")
		return
	}
	saleID, err := uuid.Parse(payload.SaleID)
	if err != nil {
		log.Error().Str("sale_id", payload.SaleID).Msg("receipt_worker: invalid sale_id")
		return
	}

	sale, err := w.sales.FindByID(ctx, saleID)
	if err != nil {
		log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("receipt_worker: sale not found")
		return
	}

	rec, err := w.receipts.FindBySaleID(ctx, saleID)
	if err != nil {
		rec = &model.Receipt{
			SaleID: saleID,
			Email:  payload.CustomerEmail,
			Status: model.ReceiptPending,
		}
		if err := w.receipts.Create(ctx, rec); err != nil {
			log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("receipt_worker: failed to create receipt")
			return
		}
	}

	// A cron retry after a delivery failure arrives with the PDF already
	// rendered; skip straight to mailing.
	if rec.PDFPath == nil {
		var pdfPath string
		genErr := withRetry(ctx, 3, func(attempt int) error {
			path, err := infra.GenerateReceiptPDF(sale, w.businessName, w.pdfStoragePath)
			if err != nil {
				log.Warn().
					Err(err).
					Int("attempt", attempt+1).
					Str("sale_id", payload.SaleID).
					Msg("receipt_worker: PDF attempt failed, retrying")
				return err
			}
			pdfPath = path
			return nil
		})
		if genErr != nil {
			w.scheduleRetry(ctx, rec, raw, fmt.Sprintf("PDF generation failed: %v", genErr))
			return
		}
		rec.PDFPath = &pdfPath
		rec.Status = model.ReceiptGenerated
		rec.NextRetryAt = nil
		rec.LastError = nil
		if err := w.receipts.Update(ctx, rec); err != nil {
			log.Error().Err(err).Str("sale_id", payload.SaleID).Msg("receipt_worker: failed to update receipt")
			return
		}
		log.Info().Str("pdf", pdfPath).Str("sale_id", payload.SaleID).Msg("receipt_worker: PDF generated")
	}

	email := rec.Email
	if email == nil {
		email = payload.CustomerEmail
	}
	if email != nil && *email != "" && rec.PDFPath != nil {
		job := EmailJobPayload{
			SaleID:  payload.SaleID,
			ToEmail: *email,
			Subject: fmt.Sprintf("%s receipt — Ticket #%d", w.businessName, sale.TicketNumber),
			Body:    fmt.Sprintf("Your purchase receipt is attached.\nTotal: $%s", sale.Total.StringFixed(2)),
			PDFPath: *rec.PDFPath,
		}
		if err := w.dispatcher.EnqueueEmail(ctx, job); err != nil {
			log.Warn().Err(err).Str("email", *email).Msg("receipt_worker: failed to enqueue email")
		}
	}
}

// ProcessReport renders the session close summary PDF (job type "report").
func (w *ReceiptWorker) ProcessReport(ctx context.Context, raw json.RawMessage) {
	var payload SessionReportJobPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		log.Error().Err(err).Msg("receipt_worker: invalid report payload")
		return
	}
	sessionID, err := uuid.Parse(payload.SessionID)
	if err != nil {
		log.Error().Str("session_id", payload.SessionID).Msg("receipt_worker: invalid session_id")
		return
	}

	session, err := w.sessions.FindByID(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", payload.SessionID).Msg("receipt_worker: session not found")
		return
	}
	movements, err := w.sessions.ListMovements(ctx, sessionID)
	if err != nil {
		log.Error().Err(err).Str("session_id", payload.SessionID).Msg("receipt_worker: failed to load ledger")
		return
	}

	path, err := infra.GenerateSessionReportPDF(session, movements, w.businessName, w.pdfStoragePath)
	if err != nil {
		log.Error().Err(err).Str("session_id", payload.SessionID).Msg("receipt_worker: report generation failed")
		return
	}
	log.Info().Str("pdf", path).Str("session_id", payload.SessionID).Msg("receipt_worker: session report generated")
}

// scheduleRetry leaves the receipt pending with an exponential next_retry_at
// for the cron, or marks it failed and DLQs the job once retries run out.
func (w *ReceiptWorker) scheduleRetry(ctx context.Context, rec *model.Receipt, raw json.RawMessage, reason string) {
	rec.RetryCount++
	rec.LastError = &reason

	if rec.RetryCount >= maxReceiptRetries {
		rec.Status = model.ReceiptFailed
		rec.NextRetryAt = nil
		if err := w.receipts.Update(ctx, rec); err != nil {
			log.Error().Err(err).Str("sale_id", rec.SaleID.String()).Msg("receipt_worker: failed to mark receipt failed")
		}
		w.dispatcher.sendToDLQ(ctx, QueueReceipt, "receipt", raw, reason, rec.RetryCount)
		return
	}

	// 1m, 2m, 4m, 8m …
	wait := time.Duration(1<<uint(rec.RetryCount-1)) * time.Minute
	next := time.Now().Add(wait)
	rec.Status = model.ReceiptPending
	rec.NextRetryAt = &next
	if err := w.receipts.Update(ctx, rec); err != nil {
		log.Error().Err(err).Str("sale_id", rec.SaleID.String()).Msg("receipt_worker: failed to schedule retry")
		return
	}
	log.Warn().
		Str("sale_id", rec.SaleID.String()).
		Int("retry_count", rec.RetryCount).
		Time("next_retry_at", next).
		Msg("receipt_worker: retry scheduled")
}

// withRetry calls fn up to maxAttempts times with exponential backoff.
// Backoff schedule: attempt 1 = immediate, 2 = 1s, 3 = 2s.
// Returns nil if any attempt succeeds; last error otherwise.
func withRetry(ctx context.Context, maxAttempts int, fn func(attempt int) error) error {
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		if i > 0 {
			wait := time.Duration(1<<uint(i-1)) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
			}
		}
		if err := fn(i); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return lastErr
}
