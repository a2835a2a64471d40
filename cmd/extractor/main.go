package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tradedash/internal/config"
	"tradedash/internal/extractor"
	"tradedash/internal/providers/comtrade"
	"tradedash/internal/store"
	"tradedash/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	switch os.Args[1] {
	case "run":
		run(os.Args[2:])
	case "update":
		update(os.Args[2:])
	case "extract":
		extract(os.Args[2:])
	case "sample":
		sample(os.Args[2:])
	case "cleanup":
		cleanup(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: extractor <command> [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "commands:")
	fmt.Fprintln(os.Stderr, "  run      full extraction with synthetic fallback")
	fmt.Fprintln(os.Stderr, "  update   refresh the most recent two years")
	fmt.Fprintln(os.Stderr, "  extract  extract one reporter/year slice")
	fmt.Fprintln(os.Stderr, "  sample   generate synthetic records only")
	fmt.Fprintln(os.Stderr, "  cleanup  delete records older than the retention age")
}

func run(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "path to yaml config (empty = built-in defaults)")
	dbPath := fs.String("db", "", "sqlite database path (overrides config; empty string keeps config)")
	noPersist := fs.Bool("no-persist", false, "disable persistence (dry run)")
	verbose := fs.Bool("verbose", false, "debug logging")
	fs.Parse(args)

	env := newEnv(*configPath, *dbPath, *noPersist, *verbose)
	defer env.store.Close()

	total, err := env.extractor.RunFull(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "extraction run failed:", err)
		os.Exit(1)
	}
	printSummary(env, total)
}

func update(args []string) {
	fs := flag.NewFlagSet("update", flag.ExitOnError)
	configPath := fs.String("config", "", "path to yaml config")
	dbPath := fs.String("db", "", "sqlite database path")
	verbose := fs.Bool("verbose", false, "debug logging")
	fs.Parse(args)

	env := newEnv(*configPath, *dbPath, false, *verbose)
	defer env.store.Close()

	total, err := env.extractor.UpdateRecent(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "update failed:", err)
		os.Exit(1)
	}
	fmt.Printf("updated %d records\n", total)
}

func extract(args []string) {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configPath := fs.String("config", "", "path to yaml config")
	dbPath := fs.String("db", "", "sqlite database path")
	reporter := fs.String("reporter", "", "reporter ISO3 code (required)")
	partner := fs.String("partner", "all", "partner ISO3 code")
	year := fs.Int("year", time.Now().UTC().Year()-1, "reference year")
	hsCode := fs.String("hs-code", "TOTAL", "commodity code")
	verbose := fs.Bool("verbose", false, "debug logging")
	fs.Parse(args)

	if strings.TrimSpace(*reporter) == "" {
		fmt.Fprintln(os.Stderr, "extract: -reporter is required")
		os.Exit(2)
	}

	env := newEnv(*configPath, *dbPath, false, *verbose)
	defer env.store.Close()

	count, err := env.extractor.ExtractSpecific(context.Background(),
		strings.ToUpper(*reporter), *partner, *year, *hsCode)
	if err != nil {
		fmt.Fprintln(os.Stderr, "extraction failed:", err)
		os.Exit(1)
	}
	fmt.Printf("extracted %d records\n", count)
}

func sample(args []string) {
	fs := flag.NewFlagSet("sample", flag.ExitOnError)
	configPath := fs.String("config", "", "path to yaml config")
	dbPath := fs.String("db", "", "sqlite database path")
	count := fs.Int("count", 0, "record count (0 = config default)")
	verbose := fs.Bool("verbose", false, "debug logging")
	fs.Parse(args)

	env := newEnv(*configPath, *dbPath, false, *verbose)
	defer env.store.Close()

	n := *count
	if n <= 0 {
		n = env.cfg.SampleRecords
	}
	if err := env.extractor.SeedReferenceData(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "reference seeding failed:", err)
		os.Exit(1)
	}
	generated, err := env.extractor.GenerateSample(context.Background(), n)
	if err != nil {
		fmt.Fprintln(os.Stderr, "sample generation failed:", err)
		os.Exit(1)
	}
	fmt.Printf("generated %d synthetic records\n", generated)
}

func cleanup(args []string) {
	fs := flag.NewFlagSet("cleanup", flag.ExitOnError)
	configPath := fs.String("config", "", "path to yaml config")
	dbPath := fs.String("db", "", "sqlite database path")
	days := fs.Int("days", 0, "retention age in days (0 = config default)")
	fs.Parse(args)

	env := newEnv(*configPath, *dbPath, false, false)
	defer env.store.Close()

	age := *days
	if age <= 0 {
		age = env.cfg.RetentionDays
	}
	deleted, err := env.store.DeleteOlderThan(context.Background(), time.Duration(age)*24*time.Hour)
	if err != nil {
		fmt.Fprintln(os.Stderr, "cleanup failed:", err)
		os.Exit(1)
	}
	fmt.Printf("deleted %d records older than %d days\n", deleted, age)
}

type env struct {
	cfg       *config.Config
	store     store.Store
	extractor *extractor.Extractor
}

func newEnv(configPath, dbPath string, noPersist, verbose bool) *env {
	log := logrus.New()
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}
	if strings.TrimSpace(dbPath) != "" {
		cfg.DatabasePath = dbPath
	}

	var st store.Store
	if noPersist {
		st = &store.NopStore{}
	} else {
		st, err = sqlite.New(cfg.DatabasePath, log)
		if err != nil {
			fmt.Fprintln(os.Stderr, "store open failed:", err)
			os.Exit(1)
		}
	}

	provider := comtrade.New(comtrade.Config{
		BaseURL:         cfg.BaseURL,
		APIKey:          cfg.APIKey,
		Timeout:         cfg.Timeout(),
		RequestsPerHour: cfg.HourlyCeiling(),
		RequestDelay:    cfg.RequestDelay(),
	}, log)

	return &env{
		cfg:       cfg,
		store:     st,
		extractor: extractor.New(cfg, provider, st, log),
	}
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func printSummary(env *env, total int) {
	stats, err := env.store.SummaryStats(context.Background())
	if err != nil {
		fmt.Printf("extraction complete, %d records stored\n", total)
		return
	}
	fmt.Println("=== EXTRACTION SUMMARY ===")
	fmt.Printf("Total Records: %d\n", stats.TotalRecords)
	fmt.Printf("Year Range: %s\n", stats.Years)
	fmt.Printf("Unique Reporters: %d\n", stats.UniqueReporters)
	fmt.Printf("Unique Partners: %d\n", stats.UniquePartners)
	fmt.Printf("Total Trade Value: $%.2f\n", stats.TotalTradeValue)
	fmt.Println("==========================")
}
