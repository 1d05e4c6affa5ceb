package ledger

import (
	"context"
	"fmt"

	"dues-backend/internal/models"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

var exportHeaders = []string{
	"ID", "Date", "Payer", "Member ID", "Amount", "Method", "Status", "Reference", "Label", "Dues Due Date",
}

// ExportXLSX renders the filtered ledger as a single-sheet workbook with a
// total row for Completed amounts.
func (s *Service) ExportXLSX(ctx context.Context, f Filter) ([]byte, error) {
	txs, err := s.ListAll(ctx, f)
	if err != nil {
		return nil, err
	}

	file := excelize.NewFile()
	defer file.Close()

	const sheet = "Transactions"
	if err := file.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	for i, h := range exportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(sheet, cell, h); err != nil {
			return nil, err
		}
	}

	completed := decimal.Zero
	for r, t := range txs {
		row := r + 2
		var memberID any
		if t.MemberID != nil {
			memberID = *t.MemberID
		}
		var ref, due string
		if t.ExternalRef != nil {
			ref = *t.ExternalRef
		}
		if d := models.FormatDate(t.DuesDueDate); d != nil {
			due = *d
		}
		amount := models.Money(t.Amount)
		values := []any{
			t.ID, t.TransactionDate.Format("2006-01-02"), t.PayerName, memberID, amount,
			t.PaymentMethod, string(t.Status), ref, t.DisplayLabel, due,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := file.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
		}
		if t.Status == models.TxCompleted {
			completed = completed.Add(t.Amount)
		}
	}

	totalRow := len(txs) + 3
	labelCell, _ := excelize.CoordinatesToCellName(4, totalRow)
	valueCell, _ := excelize.CoordinatesToCellName(5, totalRow)
	_ = file.SetCellValue(sheet, labelCell, "Completed total")
	_ = file.SetCellValue(sheet, valueCell, models.Money(completed))

	buf, err := file.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write xlsx: %w", err)
	}
	return buf.Bytes(), nil
}
