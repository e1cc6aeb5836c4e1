package journal

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const attemptsSheet = "Attempts"

var exportColumns = []string{
	"Time (UTC)", "Attempt", "Event", "Outcome", "User", "Room",
	"Check-in", "Check-out", "Nights", "Total", "Booking", "Conflicts", "Message",
}

// sheetWriter appends rows to one excelize sheet.
type sheetWriter struct {
	file  *excelize.File
	sheet string
	row   int
}

func newSheetWriter(name string) *sheetWriter {
	f := excelize.NewFile()
	// Rename default sheet
	f.SetSheetName("Sheet1", name)
	return &sheetWriter{file: f, sheet: name, row: 1}
}

func (w *sheetWriter) header(columns []string) error {
	if err := w.write(toCells(columns)); err != nil {
		return err
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err == nil {
		startCell, _ := excelize.CoordinatesToCellName(1, 1)
		endCell, _ := excelize.CoordinatesToCellName(len(columns), 1)
		_ = w.file.SetCellStyle(w.sheet, startCell, endCell, style)
	}
	return w.file.SetPanes(w.sheet, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

func (w *sheetWriter) write(row []interface{}) error {
	for i, val := range row {
		cell, err := excelize.CoordinatesToCellName(i+1, w.row)
		if err != nil {
			return err
		}
		if err := w.file.SetCellValue(w.sheet, cell, val); err != nil {
			return err
		}
	}
	w.row++
	return nil
}

func toCells(values []string) []interface{} {
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}

// ExportXLSX writes attempts created since the given time as an XLSX workbook.
func (j *Journal) ExportXLSX(ctx context.Context, since time.Time, out io.Writer) (int, error) {
	attempts, err := j.ListSince(ctx, since)
	if err != nil {
		return 0, err
	}

	w := newSheetWriter(attemptsSheet)
	defer w.file.Close()

	if err := w.header(exportColumns); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}
	for i := range attempts {
		a := &attempts[i]
		var bookingID interface{}
		if a.BookingID != 0 {
			bookingID = a.BookingID
		}
		total, _ := a.TotalPrice.Float64()
		row := []interface{}{
			a.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			a.AttemptID, a.EventType, a.Outcome, a.UserID, a.RoomID,
			a.CheckIn, a.CheckOut, a.Nights, total, bookingID, a.Conflicts, a.Message,
		}
		if err := w.write(row); err != nil {
			return 0, fmt.Errorf("write attempt %s: %w", a.AttemptID, err)
		}
	}

	if err := w.file.Write(out); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}
	return len(attempts), nil
}
