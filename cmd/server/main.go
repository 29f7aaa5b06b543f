package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/david/fundingradar/internal/api"
	"github.com/david/fundingradar/internal/db"
	"github.com/david/fundingradar/internal/delivery"
	"github.com/david/fundingradar/internal/enrich"
	"github.com/david/fundingradar/internal/ingest"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, using environment")
	}

	reg, err := ingest.LoadRegistry(os.Getenv("SOURCES_CONFIG"))
	if err != nil {
		log.Fatalf("loading sources: %v", err)
	}
	log.Printf("loaded %d sources", len(reg.Sources))

	pipeline := buildPipeline(reg)

	server := api.NewServer(pipeline, os.Getenv("ADMIN_SECRET"))

	if os.Getenv("RUN_ON_START") == "1" {
		go func() {
			dataset, err := pipeline.Run(context.Background())
			if err != nil {
				log.Printf("startup run failed: %v", err)
				return
			}
			server.SetDataset(dataset)
			log.Printf("startup run completed: %d items", dataset.Stats.Total)
		}()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	log.Printf("listening on :%s", port)
	if err := server.Start(":" + port); err != nil {
		log.Fatalf("server stopped: %v", err)
	}
}

func buildPipeline(reg *ingest.Registry) *ingest.Pipeline {
	var fetcher ingest.Fetcher
	if os.Getenv("FETCHER") == "colly" {
		fetcher = ingest.NewCollyFetcher()
	} else {
		fetcher = ingest.NewHTTPFetcher(0)
	}

	pipeline := ingest.NewPipeline(reg, fetcher)
	pipeline.Verify.Strict = os.Getenv("STRICT_VERIFY") == "1"
	pipeline.DisableCarryForward = os.Getenv("DISABLE_CARRY_FORWARD") == "1"

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		ctx := context.Background()
		pool, err := db.Connect(ctx, dbURL)
		if err != nil {
			log.Fatalf("connecting to postgres: %v", err)
		}
		if err := db.Migrate(ctx, pool); err != nil {
			log.Fatalf("migrating schema: %v", err)
		}
		pipeline.Store = db.NewSnapshotStore(pool)
		log.Println("snapshot store: postgres")
	} else {
		path := os.Getenv("SNAPSHOT_FILE")
		if path == "" {
			path = "data/snapshot.json"
		}
		pipeline.Store = db.NewFileStore(path)
		log.Printf("snapshot store: %s", path)
	}

	if os.Getenv("OLLAMA_ENABLED") == "1" {
		pipeline.Enricher = enrich.NewOllamaEnricher()
		log.Println("enrichment: ollama")
	}

	if dir := os.Getenv("DIGEST_DIR"); dir != "" {
		pipeline.Drafter = delivery.FileDrafter{Dir: dir}
	} else {
		pipeline.Drafter = delivery.LogDrafter{}
	}

	return pipeline
}
