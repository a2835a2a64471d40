package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"tradedash/internal/config"
	"tradedash/internal/server"
	"tradedash/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	_ = godotenv.Load()

	switch os.Args[1] {
	case "serve":
		serve(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: server serve [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -addr    listen address (default: :8080)")
	fmt.Fprintln(os.Stderr, "  -config  path to yaml config")
	fmt.Fprintln(os.Stderr, "  -db      sqlite database path (overrides config)")
}

func serve(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":8080", "listen address")
	configPath := fs.String("config", "", "path to yaml config")
	dbPath := fs.String("db", "", "sqlite database path")
	fs.Parse(args)

	log := logrus.New()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config load failed:", err)
		os.Exit(1)
	}
	if strings.TrimSpace(*dbPath) != "" {
		cfg.DatabasePath = *dbPath
	}

	st, err := sqlite.New(cfg.DatabasePath, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "store open failed:", err)
		os.Exit(1)
	}
	defer st.Close()

	router := server.NewRouter(server.NewHandler(st, log))
	log.WithField("addr", *addr).Info("serving trade data API")
	if err := router.Run(*addr); err != nil {
		fmt.Fprintln(os.Stderr, "server failed:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if strings.TrimSpace(path) == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}
