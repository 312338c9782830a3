package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
)

// BenchmarkResult represents a parsed benchmark result.
type BenchmarkResult struct {
	Name        string
	Package     string
	Iterations  int
	NsPerOp     float64
	BytesPerOp  int64
	AllocsPerOp int64
}

var (
	inputFile = flag.String(
		"input",
		"",
		"Input file with benchmark output (stdin if not specified)",
	)
	outputFile = flag.String("output", "", "Output markdown file (stdout if not specified)")
	quiet      = flag.Bool("quiet", false, "Suppress progress output")
)

func main() {
	flag.Parse()

	// Read benchmark output
	var scanner *bufio.Scanner
	var inputF *os.File
	if *inputFile != "" {
		f, err := os.Open(*inputFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error opening input file: %v\n", err)
			os.Exit(1)
		}
		inputF = f
		scanner = bufio.NewScanner(f)
	} else {
		scanner = bufio.NewScanner(os.Stdin)
	}

	results := parseBenchmarks(scanner)

	if !*quiet {
		fmt.Fprintf(os.Stderr, "Parsed %d benchmark results\n", len(results))
	}

	report := generateMarkdownReport(results)

	// Write output
	if *outputFile != "" {
		err := os.WriteFile(*outputFile, []byte(report), 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error writing output file: %v\n", err)
			if inputF != nil {
				inputF.Close()
			}
			os.Exit(1)
		}
		if !*quiet {
			fmt.Fprintf(os.Stderr, "Report written to %s\n", *outputFile)
		}
	} else {
		fmt.Fprint(os.Stdout, report)
	}

	if inputF != nil {
		inputF.Close()
	}
}

func parseBenchmarks(scanner *bufio.Scanner) []BenchmarkResult {
	var results []BenchmarkResult

	// Regex to parse benchmark output lines
	// Benchmark_AllocateFree_64B-8    5000000    251.0 ns/op    80 B/op    2 allocs/op
	benchmarkRegex := regexp.MustCompile(
		`^(Benchmark\S+)\s+(\d+)\s+([\d.]+)\s+ns/op(?:\s+([\d.]+)\s+B/op)?(?:\s+([\d.]+)\s+allocs/op)?`,
	)
	// `go test` prints the package path before each package's benchmarks.
	pkgRegex := regexp.MustCompile(`^pkg:\s+(\S+)`)

	pkg := ""
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if m := pkgRegex.FindStringSubmatch(line); m != nil {
			pkg = m[1]
			continue
		}

		matches := benchmarkRegex.FindStringSubmatch(line)
		if matches == nil {
			continue
		}

		// Strip the -N GOMAXPROCS suffix from the name.
		name := matches[1]
		if dashIdx := strings.LastIndex(name, "-"); dashIdx > 0 {
			name = name[:dashIdx]
		}

		iterations, _ := strconv.Atoi(matches[2])
		nsPerOp, _ := strconv.ParseFloat(matches[3], 64)

		var bytesPerOp int64
		var allocsPerOp int64
		if matches[4] != "" {
			bytesPerOp, _ = strconv.ParseInt(matches[4], 10, 64)
		}
		if matches[5] != "" {
			allocsPerOp, _ = strconv.ParseInt(matches[5], 10, 64)
		}

		results = append(results, BenchmarkResult{
			Name:        strings.TrimPrefix(name, "Benchmark"),
			Package:     pkg,
			Iterations:  iterations,
			NsPerOp:     nsPerOp,
			BytesPerOp:  bytesPerOp,
			AllocsPerOp: allocsPerOp,
		})
	}
	return results
}

func generateMarkdownReport(results []BenchmarkResult) string {
	var b strings.Builder

	b.WriteString("# Allocator Benchmark Report\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", time.Now().Format(time.RFC3339))

	if len(results) == 0 {
		b.WriteString("No benchmark results found in input.\n")
		return b.String()
	}

	// Group results by package, packages in path order.
	byPkg := make(map[string][]BenchmarkResult)
	var pkgs []string
	for _, r := range results {
		if _, seen := byPkg[r.Package]; !seen {
			pkgs = append(pkgs, r.Package)
		}
		byPkg[r.Package] = append(byPkg[r.Package], r)
	}
	sort.Strings(pkgs)

	for _, pkg := range pkgs {
		title := pkg
		if title == "" {
			title = "(unknown package)"
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		b.WriteString("| Benchmark | Iterations | ns/op | B/op | allocs/op |\n")
		b.WriteString("|-----------|-----------:|------:|-----:|----------:|\n")

		rows := byPkg[pkg]
		sort.Slice(rows, func(i, j int) bool { return rows[i].Name < rows[j].Name })
		for _, r := range rows {
			fmt.Fprintf(&b, "| %s | %d | %.1f | %d | %d |\n",
				r.Name, r.Iterations, r.NsPerOp, r.BytesPerOp, r.AllocsPerOp)
		}
		b.WriteString("\n")
	}
	return b.String()
}
