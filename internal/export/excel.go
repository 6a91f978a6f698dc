// Package export renders the SRD register as an xlsx workbook for the
// production office.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/example/srdflow/internal/models"
)

var registerHeader = []string{
	"Ref No", "Title", "Requester", "Progress %", "Ready",
	"In Production", "Production %", "Created",
}

// WriteRegister writes all SRDs as one sheet to w.
func WriteRegister(w io.Writer, srds []models.SRD) error {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "SRDs"
	idx, err := f.NewSheet(sheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	for col, title := range registerHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return err
		}
	}

	for row, srd := range srds {
		values := []any{
			srd.RefNo,
			srd.Title,
			srd.Requester,
			srd.Progress,
			srd.ReadyForProduction,
			srd.InProduction,
			srd.ProductionProgress,
			srd.CreatedAt.Format("2006-01-02 15:04"),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
