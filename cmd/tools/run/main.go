// Command run executes one pipeline scan from the terminal, prints a
// summary table, and writes the dataset to a JSON file.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/joho/godotenv"

	"github.com/david/fundingradar/internal/db"
	"github.com/david/fundingradar/internal/ingest"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	var (
		sourcesPath = flag.String("sources", os.Getenv("SOURCES_CONFIG"), "path to sources yaml (empty for embedded defaults)")
		outPath     = flag.String("out", "dataset.json", "where to write the dataset")
		snapPath    = flag.String("snapshot", "data/snapshot.json", "snapshot file for run-over-run diffing")
		strict      = flag.Bool("strict", false, "fail when verification cannot confirm any URL")
		noCarry     = flag.Bool("no-carry-forward", false, "publish the fallback set instead of the previous snapshot on an empty run")
		limit       = flag.Int("limit", 0, "check at most this many URLs (0 for default)")
	)
	flag.Parse()

	reg, err := ingest.LoadRegistry(*sourcesPath)
	if err != nil {
		log.Fatalf("loading sources: %v", err)
	}

	pipeline := ingest.NewPipeline(reg, ingest.NewHTTPFetcher(0))
	pipeline.Store = db.NewFileStore(*snapPath)
	pipeline.Verify.Strict = *strict
	pipeline.DisableCarryForward = *noCarry
	if *limit > 0 {
		pipeline.Verify.MaxChecks = *limit
	}

	dataset, err := pipeline.Run(context.Background())
	if err != nil {
		log.Fatalf("run failed: %v", err)
	}

	printSummary(dataset)

	data, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		log.Fatalf("encoding dataset: %v", err)
	}
	if err := os.WriteFile(*outPath, data, 0o644); err != nil {
		log.Fatalf("writing %s: %v", *outPath, err)
	}
	log.Printf("dataset written to %s", *outPath)
}

func printSummary(d *ingest.Dataset) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"#", "Title", "Source", "Status", "Deadline", "Amount"})
	for i, item := range d.Items {
		title := ingest.TruncateText(item.Title, 48)
		t.AppendRow(table.Row{i + 1, title, item.SourceID, item.Status, item.Deadline, item.Amount})
	}
	t.AppendFooter(table.Row{"", "", "", "total", d.Stats.Total, ""})
	t.Render()

	log.Printf("open=%d unknown=%d closed=%d new=%d updated=%d sources=%d",
		d.Stats.Open, d.Stats.Unknown, d.Stats.Closed,
		d.Stats.NewToday, d.Stats.UpdatedToday, d.Stats.SourcesConfigured)
	if len(d.Diagnostics.Errors) > 0 {
		log.Printf("%d diagnostics recorded; see dataset file for details", len(d.Diagnostics.Errors))
	}
}
