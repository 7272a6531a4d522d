package export

import (
	"fmt"
	"time"

	"github.com/C4T-BuT-S4D/promobot/internal/models"
	"github.com/xuri/excelize/v2"
)

const sheetName = "Promos"

var header = []any{"#", "Promo code", "Special code", "Date", "Name", "Phone", "Address", "Telegram ID"}

type Artifact struct {
	Name string
	Data []byte
}

// XLSX renders promo rows as a spreadsheet named "{month}_{year}.xlsx".
type XLSX struct {
	loc *time.Location
}

func NewXLSX(loc *time.Location) *XLSX {
	return &XLSX{loc: loc}
}

func (x *XLSX) Build(promos []*models.PromoCode, month time.Month, year int) (*Artifact, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("naming sheet: %w", err)
	}

	if err := f.SetSheetRow(sheetName, "A1", &header); err != nil {
		return nil, fmt.Errorf("writing header: %w", err)
	}

	for i, p := range promos {
		row := []any{
			i + 1,
			p.Code,
			p.SpecialCode,
			p.Date.In(x.loc).Format(time.DateTime),
			"", "", "", "",
		}
		if p.User != nil {
			row[4], row[5], row[6], row[7] = p.User.Name, p.User.Phone, p.User.Address, p.User.TelegramID
		}

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("addressing row %d: %w", i, err)
		}
		if err := f.SetSheetRow(sheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("writing row %d: %w", i, err)
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("rendering xlsx: %w", err)
	}

	return &Artifact{
		Name: FileName(month, year),
		Data: buf.Bytes(),
	}, nil
}

func FileName(month time.Month, year int) string {
	return fmt.Sprintf("%d_%d.xlsx", int(month), year)
}
