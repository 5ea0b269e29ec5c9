package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"manhwa-recommender/internal/common/config"
	"manhwa-recommender/internal/common/database"
	"manhwa-recommender/internal/common/logger"
	"manhwa-recommender/internal/models"
	"manhwa-recommender/internal/recommend/query"
	"manhwa-recommender/internal/recommend/store"
)

// activeSource walks the active catalog in batches.
type activeSource interface {
	EachActive(ctx context.Context, batchSize int, fn func([]models.Manhwa) error) error
	Count(ctx context.Context, q query.Catalog) (int64, error)
}

type indexTarget interface {
	EnsureIndex(ctx context.Context) (bool, error)
	BulkIndex(ctx context.Context, items []models.Manhwa) (int, error)
	Count(ctx context.Context, q query.Catalog) (int64, error)
}

type indexReport struct {
	Read    int
	Indexed int
	Created bool
}

func main() {
	indexCmd := flag.NewFlagSet("index", flag.ExitOnError)
	validateCmd := flag.NewFlagSet("validate", flag.ExitOnError)

	configPath := indexCmd.String("config", "", "Path to a config file (default: configs/config.yaml lookup)")
	batchSize := indexCmd.Int("batch", 500, "Documents per bulk request")
	validateConfig := validateCmd.String("config", "", "Path to a config file (default: configs/config.yaml lookup)")

	if len(os.Args) < 2 {
		help()
		os.Exit(1)
	}

	var path string
	switch os.Args[1] {
	case "index":
		indexCmd.Parse(os.Args[2:])
		path = *configPath
	case "validate":
		validateCmd.Parse(os.Args[2:])
		path = *validateConfig
	default:
		help()
		os.Exit(1)
	}

	cfg, err := loadConfig(path)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}
	log := logger.NewStructured(cfg.Logging.Level, "console")

	pg, err := database.NewPostgres(cfg.Database.Postgres)
	if err != nil {
		fmt.Printf("Error connecting to postgres: %v\n", err)
		os.Exit(1)
	}
	defer pg.Close()

	es, err := database.NewElasticsearch(cfg.Database.Elasticsearch)
	if err != nil {
		fmt.Printf("Error creating elasticsearch client: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	src := store.NewPostgres(pg.DB, log)
	dst := store.NewElasticCatalog(es.Client, cfg.Database.Elasticsearch.Index, log)

	switch os.Args[1] {
	case "index":
		report, err := indexCatalog(ctx, src, dst, *batchSize, log)
		if err != nil {
			fmt.Printf("Error indexing catalog: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %d of %d active items into %s (index created: %t)\n",
			report.Indexed, report.Read, dst.Index(), report.Created)
		if report.Indexed < report.Read {
			os.Exit(2)
		}

	case "validate":
		pgCount, esCount, err := compareCounts(ctx, src, dst)
		if err != nil {
			fmt.Printf("Error validating index: %v\n", err)
			os.Exit(1)
		}
		if pgCount != esCount {
			fmt.Printf("Index out of sync: postgres=%d elasticsearch=%d\n", pgCount, esCount)
			os.Exit(2)
		}
		fmt.Printf("Index in sync: %d active items\n", pgCount)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Load()
	}
	return config.LoadFromFile(path)
}

// indexCatalog copies every active catalog item into the search index.
func indexCatalog(ctx context.Context, src activeSource, dst indexTarget, batchSize int, log logger.Logger) (indexReport, error) {
	var report indexReport

	created, err := dst.EnsureIndex(ctx)
	if err != nil {
		return report, fmt.Errorf("ensure index: %w", err)
	}
	report.Created = created

	err = src.EachActive(ctx, batchSize, func(batch []models.Manhwa) error {
		n, err := dst.BulkIndex(ctx, batch)
		if err != nil {
			return fmt.Errorf("bulk index: %w", err)
		}
		report.Read += len(batch)
		report.Indexed += n
		log.Info("batch indexed", map[string]interface{}{
			"batch":   len(batch),
			"indexed": n,
			"total":   report.Indexed,
		})
		return nil
	})
	return report, err
}

func compareCounts(ctx context.Context, src activeSource, dst indexTarget) (int64, int64, error) {
	active := query.Catalog{}
	active.Where(query.Active())

	pgCount, err := src.Count(ctx, active)
	if err != nil {
		return 0, 0, fmt.Errorf("count postgres: %w", err)
	}
	esCount, err := dst.Count(ctx, active)
	if err != nil {
		return 0, 0, fmt.Errorf("count elasticsearch: %w", err)
	}
	return pgCount, esCount, nil
}

func help() {
	fmt.Println("Usage: catalog-indexer <command> [options]")
	fmt.Println("Commands:")
	fmt.Println("  index     Copy active catalog items from PostgreSQL into Elasticsearch")
	fmt.Println("  validate  Compare active item counts between PostgreSQL and Elasticsearch")
}
