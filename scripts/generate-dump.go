//go:build ignore

// Package main generates synthetic tuple dumps for local refreshes and
// benchmarks.
// Usage: go run scripts/generate-dump.go -files 4 -records 250000 -output testdata/dumps
//
// A share of ids repeats across files so later files exercise the
// first-source-wins rule, and a few lines per file are malformed.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/Aman-CERP/recidx/internal/record"
)

var (
	numFiles   = flag.Int("files", 4, "Number of dump files to generate")
	numRecords = flag.Int("records", 250_000, "Records per file")
	overlap    = flag.Float64("overlap", 0.05, "Share of ids reused from the previous file")
	outputDir  = flag.String("output", "testdata/dumps", "Output directory")
	seed       = flag.Int64("seed", 42, "Random seed for reproducibility")
)

var domains = []string{"example.com", "example.org", "mail.test", "corp.invalid"}

func main() {
	flag.Parse()

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "failed to create output dir: %v\n", err)
		os.Exit(1)
	}

	rng := rand.New(rand.NewSource(*seed))
	next := 0
	for f := range *numFiles {
		path := filepath.Join(*outputDir, fmt.Sprintf("part_%02d.txt", f+1))
		if err := writeDump(rng, path, f, &next); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("wrote %s\n", path)
	}
	fmt.Printf("\nsources:\n  urls:\n")
	for f := range *numFiles {
		abs, _ := filepath.Abs(filepath.Join(*outputDir, fmt.Sprintf("part_%02d.txt", f+1)))
		fmt.Printf("    - file://%s\n", abs)
	}
}

func writeDump(rng *rand.Rand, path string, file int, next *int) error {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	w := bufio.NewWriter(out)
	for i := range *numRecords {
		var n int
		if file > 0 && rng.Float64() < *overlap {
			n = rng.Intn(*next)
		} else {
			n = *next
			*next++
		}
		if i%10_000 == 0 {
			_, _ = fmt.Fprintf(w, "-- malformed line %d\n", i)
		}
		r := synthetic(rng, n, file)
		if !record.Formattable(r) {
			return fmt.Errorf("record %s cannot be written as a tuple line", r.ID)
		}
		_, _ = fmt.Fprintln(w, record.Format(r))
	}
	return w.Flush()
}

func synthetic(rng *rand.Rand, n, file int) record.Record {
	r := record.Record{ID: fmt.Sprintf("%d", 100000000+n)}
	if rng.Intn(20) > 0 {
		r.Email = fmt.Sprintf("user%d.f%d@%s", n, file, domains[rng.Intn(len(domains))])
	}
	if rng.Intn(10) > 0 {
		r.NetworkAddress = fmt.Sprintf("10.%d.%d.%d", rng.Intn(256), rng.Intn(256), 1+rng.Intn(254))
	}
	return r
}
