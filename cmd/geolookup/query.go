// CLAUDE:SUMMARY CLI subcommands over the lookup index: rebuild it, resolve/execute join routes, list geographies.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/geolookup/pkg/geocode"
	"github.com/hazyhaar/geolookup/pkg/geohelper"
)

func cmdIndex(args []string) {
	fs := flag.NewFlagSet("index", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)

	if err := cfg.invalidate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	lookup, err := cfg.openLookup(context.Background(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	cat := lookup.Catalog()
	for _, col := range cat.Collections {
		fmt.Printf("%s  (%d tables)\n", col.Name, len(col.Tables))
		for _, t := range col.Tables {
			fmt.Printf("  %-40s  %s\n", t.Name, strings.Join(t.CodeColumns, ", "))
		}
	}
	fmt.Printf("\n%d tables indexed -> %s\n", len(cat.Tables()), cfg.catalogOptions(logger).CachePath(cfg.LookupsDir))
}

func cmdResolve(args []string) {
	fs := flag.NewFlagSet("resolve", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	start := fs.String("start", "", "starting code column (e.g. WD22CD)")
	end := fs.String("end", "", "ending code column (e.g. OA21CD)")
	las := fs.String("la", "", "comma-separated local authority names")
	routes := fs.Int("routes", 0, "execute the first N routes (0: only list them)")
	describe := fs.Bool("describe", false, "print each route one join per line")
	outDir := fs.String("out", "", "write executed tables as CSV into this directory (default: stdout)")
	fs.Parse(args)

	if *start == "" || *end == "" {
		fmt.Println("Usage :")
		fmt.Println("  geolookup resolve --start WD22CD --end OA21CD [--la Lewisham,Southwark] [--routes 3] [--out dir]")
		os.Exit(1)
	}

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	lookup, err := cfg.openLookup(ctx, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	q := lookup.Query(*start, *end, splitList(*las))
	if len(q.LocalAuthorities) == 0 {
		q.RequireLocalAuthorityStart = false
	}

	if *routes <= 0 {
		found, err := lookup.Resolve(q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for i, rt := range found {
			printRoute(i+1, rt, *describe)
		}
		return
	}

	results, err := lookup.FilteredGeocodes(ctx, q, *routes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for i, res := range results {
		printRoute(i+1, res.Route, *describe)
		for _, w := range res.Warnings {
			fmt.Fprintf(os.Stderr, "    warning: %s\n", w.Message)
		}
		if err := writeResult(i+1, res, *outDir); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func printRoute(n int, rt geocode.Route, describe bool) {
	if describe {
		fmt.Printf("Route %d:\n%s", n, rt.Describe())
		return
	}
	fmt.Printf("%2d. %s\n", n, rt)
}

func writeResult(n int, res *geocode.Result, dir string) error {
	if dir == "" {
		return writeFrame(res.Table, "")
	}
	p := filepath.Join(dir, fmt.Sprintf("route_%d.csv", n))
	if err := writeFrame(res.Table, p); err != nil {
		return err
	}
	fmt.Printf("    %d rows -> %s\n", res.Table.Len(), p)
	return nil
}

func cmdGeographies(args []string) {
	fs := flag.NewFlagSet("geographies", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	collection := fs.String("collection", "", "restrict to one collection (year folder)")
	keys := fs.Bool("keys", false, "print the geography prefixes instead")
	fs.Parse(args)

	if *keys {
		for _, k := range geohelper.GeographyKeys() {
			fmt.Printf("  %-6s  %s\n", k.Prefix, k.Description)
		}
		fmt.Println()
		fmt.Println(geohelper.Hint)
		return
	}

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)

	lookup, err := cfg.openLookup(context.Background(), logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	geos, err := geohelper.New(lookup.Catalog()).AvailableGeographies(*collection)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	for _, g := range geos {
		fmt.Println(g)
	}
}

func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
