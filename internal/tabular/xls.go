package tabular

import (
	"bytes"

	"github.com/extrame/xls"
)

// parseLegacyWorkbook decodes the BIFF .xls container. Row records carry a
// [FirstCol, LastCol) cell range; cells outside it stay "".
func parseLegacyWorkbook(data []byte) (*Dataset, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, &DecodeError{Format: "xls", Err: err}
	}

	ds := newDataset()
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil || row.LastCol() <= 0 {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, row.LastCol())
			for c := row.FirstCol(); c < row.LastCol(); c++ {
				cells[c] = row.Col(c)
			}
			rows = append(rows, cells)
		}
		if t := tableFromRows(sheet.Name, rows); t != nil {
			ds.add(t)
		}
	}
	return ds, nil
}
