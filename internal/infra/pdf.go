package infra

// pdf.go — thermal receipt and session report rendering with go-pdf/fpdf.
// Receipts are 74mm × 105mm (close to thermal paper); session reports use A4.
// Files land in storagePath/receipt_{ticket}.pdf and
// storagePath/session_{id}.pdf.

import (
	"fmt"
	"os"
	"path/filepath"

	"tillpos/internal/model"

	"github.com/go-pdf/fpdf"
	"github.com/shopspring/decimal"
)

// GenerateReceiptPDF renders the receipt for a completed sale.
// Returns the path of the generated file.
func GenerateReceiptPDF(sale *model.Sale, businessName, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("receipt_%d.pdf", sale.TicketNumber)
	filePath := filepath.Join(storagePath, fileName)

	// 74mm × 105mm — thermal receipt paper (custom size, not in fpdf's named list)
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "mm",
		Size:           fpdf.SizeType{Wd: 74, Ht: 105},
	})
	pdf.SetMargins(4, 4, 4)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 8 // total margins = 8mm

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(contentW, 7, businessName, "", 1, "C", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	pdf.CellFormat(contentW, 5, "Sale receipt", "", 1, "C", false, 0, "")
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "B", 8)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Ticket #%d", sale.TicketNumber), "", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(contentW, 4, sale.CreatedAt.Format("02/01/2006  15:04"), "", 1, "L", false, 0, "")
	pdf.Ln(2)

	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	col1 := contentW * 0.52 // product name
	col2 := contentW * 0.16 // qty
	col3 := contentW * 0.32 // subtotal

	pdf.SetFont("Helvetica", "B", 7)
	pdf.CellFormat(col1, 5, "Item", "B", 0, "L", false, 0, "")
	pdf.CellFormat(col2, 5, "Qty", "B", 0, "C", false, 0, "")
	pdf.CellFormat(col3, 5, "Subtotal", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 7)
	for _, item := range sale.Items {
		name := item.Name
		if len(name) > 22 {
			name = name[:21] + "…"
		}
		pdf.CellFormat(col1, 5, name, "", 0, "L", false, 0, "")
		pdf.CellFormat(col2, 5, fmt.Sprintf("x%d", item.Quantity), "", 0, "C", false, 0, "")
		pdf.CellFormat(col3, 5, "$"+item.Subtotal.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.Ln(2)
	pdf.Line(4, pdf.GetY(), pageW-4, pdf.GetY())
	pdf.Ln(2)

	pdf.SetFont("Helvetica", "", 7)
	if !sale.Discount.IsZero() {
		pdf.CellFormat(col1+col2, 5, "Discount:", "", 0, "L", false, 0, "")
		pdf.CellFormat(col3, 5, "-$"+sale.Discount.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(col1+col2, 6, "TOTAL:", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 6, "$"+sale.Total.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 7)
	pdf.CellFormat(col1+col2, 4, "Paid ("+sale.PaymentMethod.Label()+"):", "", 0, "L", false, 0, "")
	pdf.CellFormat(col3, 4, "$"+sale.Total.StringFixed(2), "", 1, "R", false, 0, "")

	pdf.Ln(3)
	pdf.SetFont("Helvetica", "I", 7)
	pdf.CellFormat(contentW, 4, "Thank you for your purchase!", "", 1, "C", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}

	return filePath, nil
}

// GenerateSessionReportPDF renders the close-of-session summary: opening
// float, the full movement ledger and the final balance.
func GenerateSessionReportPDF(session *model.CashSession, movements []model.Movement, businessName, storagePath string) (string, error) {
	if err := os.MkdirAll(storagePath, 0755); err != nil {
		return "", fmt.Errorf("pdf: create storage dir: %w", err)
	}

	fileName := fmt.Sprintf("session_%s.pdf", session.ID.String())
	filePath := filepath.Join(storagePath, fileName)

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	contentW := pageW - 30

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(contentW, 9, businessName, "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)
	pdf.CellFormat(contentW, 6, "Cash session report", "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 9)
	pdf.CellFormat(contentW, 5, fmt.Sprintf("Register %d  •  Session %s", session.Register, session.ID.String()), "", 1, "L", false, 0, "")
	pdf.CellFormat(contentW, 5, "Opened:  "+session.OpenedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	if session.ClosedAt != nil {
		pdf.CellFormat(contentW, 5, "Closed:  "+session.ClosedAt.Format("02/01/2006 15:04"), "", 1, "L", false, 0, "")
	}
	pdf.Ln(4)

	// Ledger table
	colSeq := contentW * 0.08
	colTime := contentW * 0.18
	colType := contentW * 0.22
	colDesc := contentW * 0.34
	colAmt := contentW * 0.18

	pdf.SetFont("Helvetica", "B", 9)
	pdf.CellFormat(colSeq, 6, "#", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colTime, 6, "Time", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colType, 6, "Type", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colDesc, 6, "Description", "B", 0, "L", false, 0, "")
	pdf.CellFormat(colAmt, 6, "Amount", "B", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 8)
	supplies, withdraws, cashSales := decimal.Zero, decimal.Zero, decimal.Zero
	for _, m := range movements {
		pdf.CellFormat(colSeq, 5, fmt.Sprintf("%d", m.Seq), "", 0, "L", false, 0, "")
		pdf.CellFormat(colTime, 5, m.CreatedAt.Format("15:04:05"), "", 0, "L", false, 0, "")
		pdf.CellFormat(colType, 5, m.Type.Label(), "", 0, "L", false, 0, "")
		desc := m.Description
		if len(desc) > 38 {
			desc = desc[:37] + "…"
		}
		pdf.CellFormat(colDesc, 5, desc, "", 0, "L", false, 0, "")
		pdf.CellFormat(colAmt, 5, "$"+m.Amount.StringFixed(2), "", 1, "R", false, 0, "")

		switch m.Type {
		case model.MovementSupply:
			supplies = supplies.Add(m.Amount)
		case model.MovementWithdraw:
			withdraws = withdraws.Add(m.Amount)
		case model.MovementSale:
			if m.PaymentMethod != nil && *m.PaymentMethod == model.PaymentCash {
				cashSales = cashSales.Add(m.Amount)
			}
		}
	}

	pdf.Ln(4)
	pdf.Line(15, pdf.GetY(), pageW-15, pdf.GetY())
	pdf.Ln(3)

	summary := []struct {
		label string
		value decimal.Decimal
	}{
		{"Opening float", session.OpeningAmount},
		{"Supplies", supplies},
		{"Withdrawals", withdraws},
		{"Cash sales", cashSales},
		{"Daily sales (all methods)", session.DailySales},
	}
	pdf.SetFont("Helvetica", "", 9)
	for _, row := range summary {
		pdf.CellFormat(contentW*0.6, 5, row.label+":", "", 0, "L", false, 0, "")
		pdf.CellFormat(contentW*0.4, 5, "$"+row.value.StringFixed(2), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(contentW*0.6, 7, "FINAL BALANCE:", "", 0, "L", false, 0, "")
	pdf.CellFormat(contentW*0.4, 7, "$"+session.Balance.StringFixed(2), "", 1, "R", false, 0, "")

	if err := pdf.OutputFileAndClose(filePath); err != nil {
		return "", fmt.Errorf("pdf: write file: %w", err)
	}

	return filePath, nil
}
