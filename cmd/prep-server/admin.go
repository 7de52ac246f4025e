package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/marcus/prep/internal/api"
)

func runAdmin(args []string) {
	if len(args) == 0 {
		printAdminUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "stats":
		runAdminStats(args[1:])
	case "changes":
		runAdminChanges(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown admin command: %s\n", args[0])
		printAdminUsage()
		os.Exit(1)
	}
}

func printAdminUsage() {
	fmt.Fprintln(os.Stderr, `Usage: prep-server admin <command> [flags]

Commands:
  stats    Print dish, item, and change log counts
  changes  Print change log entries as JSON lines`)
}

func openDB(ctx context.Context, dbPath string) api.Store {
	cfg := api.LoadConfig()
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	store, err := openStore(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: open database: %v\n", err)
		os.Exit(1)
	}
	return store
}

func runAdminStats(args []string) {
	fs := flag.NewFlagSet("admin stats", flag.ExitOnError)
	dbPath := fs.String("db", "", "path to prep.db (default: from PREP_DB_PATH or ./data/prep.db)")
	fs.Parse(args)

	ctx := context.Background()
	store := openDB(ctx, *dbPath)
	defer store.Close()

	ds, err := store.FetchAll(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	seq, err := store.LastSeq(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	withRecipe := 0
	for _, it := range ds.Items {
		if it.Recipe != nil && *it.Recipe != "" {
			withRecipe++
		}
	}
	fmt.Printf("dishes:       %d\n", len(ds.Dishes))
	fmt.Printf("items:        %d\n", len(ds.Items))
	fmt.Printf("with recipe:  %d\n", withRecipe)
	fmt.Printf("last seq:     %d\n", seq)
}

func runAdminChanges(args []string) {
	fs := flag.NewFlagSet("admin changes", flag.ExitOnError)
	after := fs.Int64("after", 0, "only print changes with a greater sequence number")
	limit := fs.Int("limit", 100, "maximum number of changes to print")
	dbPath := fs.String("db", "", "path to prep.db (default: from PREP_DB_PATH or ./data/prep.db)")
	fs.Parse(args)

	ctx := context.Background()
	store := openDB(ctx, *dbPath)
	defer store.Close()

	evs, err := store.ChangesSince(ctx, *after, *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	for _, ev := range evs {
		if err := enc.Encode(ev); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
	}
}
