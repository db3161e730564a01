// CLAUDE:SUMMARY CLI subcommand over the Open Geography Portal: list services, build the services lookup, describe and download feature tables into the lookup directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hazyhaar/geolookup/pkg/opengeo"
	"github.com/hazyhaar/geolookup/pkg/tabular"
)

func cmdOpenGeo(args []string) {
	fs := flag.NewFlagSet("opengeo", flag.ExitOnError)
	cfgPath := fs.String("config", "config.yaml", "path to config file")
	typ := fs.String("type", "feature", "server type: feature, map or wfs")
	lookupTable := fs.Bool("lookup", false, "describe every service of --type as one table")
	include := fs.String("include", "", "with --lookup: comma-separated service names")
	service := fs.String("service", "", "feature service to describe or download")
	describe := fs.Bool("describe", false, "with --service: print fields, layers and primary key")
	count := fs.Bool("count", false, "with --service: only print the number of matching rows")
	where := fs.String("where", "1=1", "with --service: SQL row filter")
	fields := fs.String("fields", "", "with --service: comma-separated output fields (default all)")
	limit := fs.Int("limit", 0, "with --service: keep only the first N rows")
	allLinks := fs.Bool("all-links", false, "with --service: query every layer and table, not only the first")
	collection := fs.String("collection", "", "with --service: save into this collection of the lookup directory")
	out := fs.String("out", "", "CSV output file (default: stdout)")
	fs.Parse(args)

	logger := newLogger()
	cfg := loadConfig(*cfgPath, logger)
	client := opengeo.New(cfg.OpenGeography, logger)

	serverType, err := opengeo.ParseServerType(*typ)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Hour)
	defer cancel()

	switch {
	case *lookupTable:
		f, err := client.LookupTable(ctx, serverType, splitList(*include))
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if err := writeFrame(f, *out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

	case *service != "":
		svc, err := client.FeatureService(ctx, *service)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		d, err := client.Describe(ctx, svc)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *describe {
			printDetails(d)
			return
		}
		if *count {
			links := d.Links()
			if len(links) == 0 {
				fmt.Fprintf(os.Stderr, "Error: %s has no layers or tables\n", d.Name)
				os.Exit(1)
			}
			n, err := client.Count(ctx, d, links[0].ID, *where)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Println(n)
			return
		}

		f, err := client.Query(ctx, d, opengeo.Query{
			Where:     *where,
			OutFields: splitList(*fields),
			Limit:     *limit,
			AllLinks:  *allLinks,
			Drop:      cfg.catalogOptions(logger).Convention.IgnoredColumns,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		dest := *out
		if *collection != "" {
			if strings.ContainsAny(*collection, `/\`) || *collection == ".." {
				fmt.Fprintf(os.Stderr, "Error: invalid collection %q\n", *collection)
				os.Exit(1)
			}
			dest = filepath.Join(cfg.LookupsDir, *collection, d.Name+".csv")
		}
		if err := writeFrame(f, dest); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if *collection != "" {
			// The new table only shows up once the index is rebuilt.
			if err := cfg.invalidate(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			fmt.Printf("%d rows -> %s (index invalidated)\n", f.Len(), dest)
		}

	default:
		list, err := client.ServicesOfType(ctx, serverType)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		for _, s := range list {
			fmt.Printf("Service: %s\nURL: %s\nServer type: %s\n\n", s.Name, s.URL, s.Type)
		}
	}
}

func printDetails(d *opengeo.Details) {
	fmt.Println("Name:", d.Name)
	fmt.Println("Description:", d.Description)
	fmt.Println("Output formats:", strings.Join(d.OutputFormats, ", "))
	for _, l := range d.Links() {
		fmt.Printf("Layer %d: %s\n", l.ID, l.Name)
	}
	fmt.Println("Fields:", strings.Join(d.FieldNames(), ", "))
	fmt.Println("Primary key:", d.PrimaryKey)
	if !d.LastEdit.IsZero() {
		fmt.Println("Last edit:", d.LastEdit.Format(time.DateTime))
	}
}

// writeFrame writes f as CSV to path, or stdout when path is empty.
func writeFrame(f *tabular.Frame, path string) error {
	if path == "" {
		return f.WriteCSV(os.Stdout)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := f.WriteCSV(out); err != nil {
		out.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return out.Close()
}
