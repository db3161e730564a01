// CLAUDE:SUMMARY CLI subcommands managing lookup download sources (list/check/set-url) and fetching them into the lookup directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/hazyhaar/geolookup/pkg/sources"
)

func cmdSources(args []string) {
	fs := flag.NewFlagSet("sources", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	check := fs.Bool("check", false, "HEAD every source URL and record status and Last-Modified")
	id := fs.String("source", "", "source ID (with --set-url)")
	setURL := fs.String("set-url", "", "override the download URL of --source")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)

	sdb, err := cfg.openSources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening sources: %v\n", err)
		os.Exit(1)
	}
	defer sdb.Close()

	switch {
	case *setURL != "":
		if *id == "" {
			fmt.Fprintln(os.Stderr, "--set-url needs --source")
			os.Exit(1)
		}
		if err := sdb.SetURL(*id, *setURL); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("[%s] URL -> %s\n", *id, *setURL)
		return
	case *check:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		sum := sources.NewChecker(sdb, logger, time.Hour).CheckAll(ctx)
		fmt.Printf("%d reachable, %d failed, %d changed upstream\n\n", sum.OK, sum.Failed, len(sum.Stale))
	}

	list, err := sdb.ListSources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if len(list) == 0 {
		fmt.Printf("No sources registered (manifest: %s)\n", cfg.SourcesManifest)
		return
	}
	fmt.Println("Lookup sources:")
	fmt.Println()
	for _, src := range list {
		status := ""
		if src.LastStatus != nil {
			status = fmt.Sprintf("  [%d]", *src.LastStatus)
		}
		fetched := ""
		if src.LastFetch != nil {
			fetched = "  fetched " + time.Unix(*src.LastFetch, 0).Format(time.DateOnly)
		}
		stale := ""
		if src.Stale() {
			stale = "  (stale: run fetch)"
		}
		fmt.Printf("  %-25s  %-6s  %s%s%s%s\n", src.ID, src.Collection, src.Description, status, fetched, stale)
	}
}

func cmdFetch(args []string) {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	id := fs.String("source", "", "source ID to fetch")
	all := fs.Bool("all", false, "fetch every registered source")
	collection := fs.String("collection", "", "with --all, only this collection")
	fs.Parse(args)

	if !*all && *id == "" {
		fmt.Println("Usage :")
		fmt.Println("  geolookup fetch --source <id>")
		fmt.Println("  geolookup fetch --all [--collection 2022]")
		os.Exit(1)
	}

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)

	sdb, err := cfg.openSources()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening sources: %v\n", err)
		os.Exit(1)
	}
	defer sdb.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	f := &sources.Fetcher{
		DB:      sdb,
		Root:    cfg.LookupsDir,
		Catalog: cfg.catalogOptions(logger),
		Logger:  logger,
	}

	if *all {
		n, err := f.FetchAll(ctx, *collection)
		fmt.Printf("%d sources fetched\n", n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Printf("[%s] Fetching...\n", *id)
	paths, err := f.Fetch(ctx, *id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[%s] ERROR: %v\n", *id, err)
		os.Exit(1)
	}
	for _, p := range paths {
		fmt.Printf("[%s] OK -> %s\n", *id, p)
	}
}
