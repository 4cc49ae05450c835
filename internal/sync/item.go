package sync

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/edgelake/sheetsink/internal/ledger"
	"github.com/edgelake/sheetsink/internal/normalize"
	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/tabular"
	"github.com/edgelake/sheetsink/pkg/canonpath"
)

type itemOutcome int

const (
	outcomeStored itemOutcome = iota
	outcomeFailed
	outcomeSkipped
	outcomeDuplicate
)

// spreadsheetExts are the filename extensions the processor ingests,
// compared lower-cased.
var spreadsheetExts = map[string]bool{
	".xlsx": true,
	".xls":  true,
	".xlsm": true,
	".xlsb": true,
}

// fetchAndStoreItem runs the per-item gauntlet: process flag, watched path,
// extension, dedup, decode, normalize, write. Skips return without touching
// the database. Row-level coercion failures do not error; the item lands as
// a Failed ProcessedFile with its good rows written and the run continues.
// A returned error aborts the whole run.
func (p *Processor) fetchAndStoreItem(ctx context.Context, tx pgx.Tx, id string) (itemOutcome, string, error) {
	site, list := p.cfg.Site.SiteID, p.cfg.Site.ListID

	li, err := p.source.GetListItem(ctx, site, list, id)
	if err != nil {
		return 0, "", err
	}
	if !strings.EqualFold(li.ProcessFlag(), "Yes") {
		p.logger.Debug().Str("item", id).Str("flag", li.ProcessFlag()).Msg("skip: process flag not set")
		return outcomeSkipped, "", nil
	}

	di, err := p.source.GetDriveItem(ctx, site, list, id)
	if err != nil {
		return 0, "", err
	}
	if canonpath.Canonical(di.ParentPath) != p.cfg.Site.WatchedPath {
		p.logger.Debug().Str("item", id).Str("parent", di.ParentPath).Msg("skip: outside watched folder")
		return outcomeSkipped, "", nil
	}
	if !spreadsheetExts[strings.ToLower(filepath.Ext(di.Name))] {
		p.logger.Debug().Str("item", id).Str("name", di.Name).Msg("skip: not a spreadsheet")
		return outcomeSkipped, "", nil
	}

	data, err := p.source.Download(ctx, di.DriveID, di.ID)
	if err != nil {
		return 0, "", err
	}
	p.rec.RecordBytes(int64(len(data)))

	fp := ledger.Compute(data)
	seen, err := p.files.Seen(ctx, tx, fp)
	if err != nil {
		return 0, "", err
	}
	if seen {
		p.logger.Info().Str("item", id).Str("name", di.Name).Str("hash", fp.Hash).Msg("skip: content already ingested")
		return outcomeDuplicate, "", nil
	}

	ds, err := tabular.Parse(data)
	if err != nil {
		return 0, "", err
	}
	if ds.Empty() {
		return 0, "", &schema.MismatchError{Sheet: di.Name, Reason: "workbook has no usable sheets"}
	}

	tables, firstRowErr, err := p.normalizeDataset(ds)
	if err != nil {
		return 0, "", err
	}

	records := 0
	for _, nt := range tables {
		records += len(nt.Rows)
	}

	file := ledger.ProcessedFile{
		FileName:      di.Name,
		SourceItemID:  id,
		FileHash:      fp.Hash,
		FileSizeBytes: fp.Size,
		ProcessedAt:   p.now().UTC(),
		Status:        ledger.FileSuccess,
		RecordCount:   records,
	}
	outcome := outcomeStored
	if firstRowErr != "" {
		file.Status = ledger.FileFailed
		file.ErrorMessage = firstRowErr
		outcome = outcomeFailed
	}

	if _, err := p.writer.Write(ctx, tx, file, tables); err != nil {
		return 0, "", err
	}
	p.rec.RecordRows(int64(records))

	p.logger.Info().
		Str("item", id).
		Str("name", di.Name).
		Int("records", records).
		Str("status", string(file.Status)).
		Msg("item stored")
	return outcome, firstRowErr, nil
}

// normalizeDataset matches every decoded sheet against the registry
// (strict: an unregistered sheet fails the item) and returns the normalized
// tables in registry declaration order, which is also write order. The
// second return is the first row-level coercion error across all sheets.
func (p *Processor) normalizeDataset(ds *tabular.Dataset) ([]*normalize.NormalizedTable, string, error) {
	for _, t := range ds.Tables() {
		if _, ok := p.registry.SpecBySheet(t.SheetName); !ok {
			return nil, "", &schema.MismatchError{Sheet: t.SheetName, Reason: "sheet is not registered"}
		}
	}

	var tables []*normalize.NormalizedTable
	firstRowErr := ""
	for _, spec := range p.registry.Tables() {
		t, ok := ds.Table(spec.SheetName)
		if !ok {
			continue
		}
		nt, err := normalize.Normalize(spec, t)
		if err != nil {
			return nil, "", err
		}
		if len(nt.RowErrors) > 0 && firstRowErr == "" {
			firstRowErr = "sheet " + spec.SheetName + ": " + nt.RowErrors[0].Error()
		}
		tables = append(tables, nt)
	}
	return tables, firstRowErr, nil
}
