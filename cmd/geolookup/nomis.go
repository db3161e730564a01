// CLAUDE:SUMMARY CLI subcommand building Nomis dataset URLs, optionally from geocodes resolved through the lookup tables, and downloading them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hazyhaar/geolookup/pkg/nomis"
)

// qualifierFlags collects repeated -q name=v1,v2 flags.
type qualifierFlags []nomis.Qualifier

func (q *qualifierFlags) String() string {
	parts := make([]string, len(*q))
	for i, qual := range *q {
		parts[i] = qual.Name + "=" + strings.Join(qual.Values, ",")
	}
	return strings.Join(parts, "&")
}

func (q *qualifierFlags) Set(v string) error {
	name, values, ok := strings.Cut(v, "=")
	if !ok || strings.TrimSpace(name) == "" {
		return fmt.Errorf("want name=value[,value...], got %q", v)
	}
	*q = append(*q, nomis.Qualifier{Name: strings.TrimSpace(name), Values: splitList(values)})
	return nil
}

func cmdNomisURL(args []string) {
	fs := flag.NewFlagSet("nomis-url", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	dataset := fs.String("dataset", "", "Nomis dataset ID (e.g. NM_2021_1)")
	geography := fs.String("geography", "", "comma-separated geography codes")
	start := fs.String("start", "", "resolve geographies: starting code column")
	end := fs.String("end", "", "resolve geographies: ending code column")
	las := fs.String("la", "", "resolve geographies: comma-separated local authorities")
	column := fs.String("column", "", "resolve geographies: column holding the codes (default --end)")
	measure := fs.String("measure", "", "value or percent (default both)")
	sel := fs.String("select", "", "comma-separated columns to return")
	download := fs.String("download", "", "download the table into this directory")
	bulk := fs.Bool("bulk", false, "use the dataset's bulk CSV instead of a query")
	datasets := fs.Bool("datasets", false, "list every Nomis dataset")
	var qualifiers qualifierFlags
	fs.Var(&qualifiers, "q", "extra qualifier name=value[,value...] (repeatable)")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)

	client, err := nomis.New(cfg.Nomis, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	if *datasets {
		list, err := client.Datasets(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, d := range list {
			fmt.Printf("  %-14s  %s\n", d.ID, d.Name)
		}
		return
	}

	if *dataset == "" {
		fmt.Println("Usage :")
		fmt.Println("  geolookup nomis-url --dataset NM_2021_1 --geography E00000001,E00000002 [--measure value]")
		fmt.Println("  geolookup nomis-url --dataset NM_2021_1 --start LAD22CD --end OA21CD --la Lewisham [--download dir]")
		fmt.Println("  geolookup nomis-url --dataset NM_2021_1 --bulk --download dir")
		fmt.Println("  geolookup nomis-url --datasets")
		os.Exit(1)
	}

	if *bulk {
		if *download == "" {
			fmt.Println(client.BulkURL(*dataset))
			return
		}
		p, err := client.DownloadBulk(ctx, *dataset, *download)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("OK -> %s\n", p)
		return
	}

	m, err := nomis.ParseMeasure(*measure)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	codes := splitList(*geography)
	if *start != "" || *end != "" {
		col := *column
		if col == "" {
			col = *end
		}
		resolved, err := resolveCodes(ctx, cfg, *start, *end, splitList(*las), col)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		logger.Info("geographies resolved", "column", col, "codes", len(resolved))
		codes = append(codes, resolved...)
	}

	q := nomis.Query{
		Dataset: *dataset,
		Select:  splitList(*sel),
		Measure: m,
	}
	if len(codes) > 0 {
		q.Qualifiers = append(q.Qualifiers, nomis.Qualifier{Name: "geography", Values: codes})
	}
	q.Qualifiers = append(q.Qualifiers, qualifiers...)

	if *download == "" {
		u, err := client.DataURL(q)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(u)
		return
	}
	p, err := client.DownloadTable(ctx, q, *download, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("OK -> %s\n", p)
}

// resolveCodes executes the first route from start to end and returns the
// distinct values of column.
func resolveCodes(ctx context.Context, cfg config, start, end string, las []string, column string) ([]string, error) {
	logger := newLogger()
	lookup, err := cfg.openLookup(ctx, logger)
	if err != nil {
		return nil, err
	}
	q := lookup.Query(start, end, las)
	if len(las) == 0 {
		q.RequireLocalAuthorityStart = false
	}
	results, err := lookup.FilteredGeocodes(ctx, q, 1)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("no route from %s to %s", start, end)
	}
	res := results[0]
	for _, w := range res.Warnings {
		logger.Warn("geocode warning", "warning", w.Message)
	}
	if !res.Table.Has(column) {
		return nil, fmt.Errorf("column %s not in result of %s", column, res.Route)
	}
	return res.Table.Unique(column), nil
}
