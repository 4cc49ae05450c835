package main

import (
	"context"
	"fmt"

	"github.com/edgelake/sheetsink/internal/db"
	"github.com/edgelake/sheetsink/internal/schema"
	"github.com/edgelake/sheetsink/internal/source"
	syncer "github.com/edgelake/sheetsink/internal/sync"
)

// buildProcessor wires the database, registry, and Source client into a
// sync processor for one-shot commands. The caller closes the returned DB.
func buildProcessor(ctx context.Context) (*syncer.Processor, *db.DB, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	reg, err := schema.NewRegistry(schema.Catalog())
	if err != nil {
		return nil, nil, err
	}

	database, err := db.Open(ctx, cfg.Warehouse.URL, logger)
	if err != nil {
		return nil, nil, err
	}

	client := source.New(cfg.Source, logger)
	proc := syncer.NewProcessor(&cfg, database.Pool, reg, client, logger)
	return proc, database, nil
}

func printResult(res *syncer.Result) {
	fmt.Printf("Run committed (log id %d)\n", res.LogID)
	fmt.Printf("  succeeded:  %d\n", res.Succeeded)
	fmt.Printf("  failed:     %d\n", res.Failed)
	fmt.Printf("  skipped:    %d\n", res.Skipped)
	fmt.Printf("  duplicates: %d\n", res.Duplicates)
	if res.LastError != "" {
		fmt.Printf("  last error: %s\n", res.LastError)
	}
	if res.Continuation != nil {
		fmt.Printf("  remaining:  %d items\n", len(res.Continuation.ItemIDs))
	}
}
