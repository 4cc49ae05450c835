package tabular

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// DecodeError reports a byte stream that could not be decoded into sheets.
// Retrying the same bytes cannot succeed.
type DecodeError struct {
	Format string
	Err    error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s workbook: %v", e.Format, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

var (
	zipSignature = []byte{0x50, 0x4b, 0x03, 0x04}
	oleSignature = []byte{0xd0, 0xcf, 0x11, 0xe0, 0xa1, 0xb1, 0x1a, 0xe1}
)

// Parse decodes a fully buffered spreadsheet into one raw string table per
// non-empty sheet. The container is sniffed from the leading bytes: the zip
// signature covers .xlsx/.xlsm/.xlsb archives, the OLE compound signature
// covers legacy .xls. No type coercion and no network access happen here.
func Parse(data []byte) (*Dataset, error) {
	switch {
	case bytes.HasPrefix(data, zipSignature):
		return parseWorkbook(data)
	case bytes.HasPrefix(data, oleSignature):
		return parseLegacyWorkbook(data)
	default:
		return nil, &DecodeError{Format: "unknown", Err: errors.New("unrecognized container signature")}
	}
}

func parseWorkbook(data []byte) (*Dataset, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &DecodeError{Format: "xlsx", Err: err}
	}
	defer f.Close()

	ds := newDataset()
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, &DecodeError{Format: "xlsx", Err: fmt.Errorf("sheet %q: %w", sheet, err)}
		}
		if t := tableFromRows(sheet, rows); t != nil {
			ds.add(t)
		}
	}
	return ds, nil
}
