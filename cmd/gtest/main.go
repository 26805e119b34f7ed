package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/go-cmp/cmp"
	"github.com/xplshn/gpl0/pkg/config"
	"github.com/xplshn/gpl0/pkg/driver"
	"github.com/xplshn/gpl0/pkg/vm"
)

type Execution struct {
	Stdout   string        `json:"stdout"`
	Error    string        `json:"error,omitempty"`
	Status   string        `json:"status"`
	Duration time.Duration `json:"duration"`
	TimedOut bool          `json:"timed_out,omitempty"`
}

type TestRun struct {
	Name   string    `json:"name"`
	Input  []int64   `json:"input,omitempty"`
	Result Execution `json:"result"`
}

type Golden struct {
	Hash         string    `json:"hash"`
	CompileError string    `json:"compile_error,omitempty"`
	Runs         []TestRun `json:"runs"`
}

type FileTestResult struct {
	File    string         `json:"file"`
	Status  string         `json:"status"` // PASS, FAIL, SKIP, ERROR
	Message string         `json:"message,omitempty"`
	Diff    string         `json:"diff,omitempty"`
	Levels  map[int]Golden `json:"levels,omitempty"`
}

type TestSuiteResults map[string]*FileTestResult

var (
	generateGolden = flag.String("generate-golden", "", "Generate a golden .json file for a given source file.")
	testFiles      = flag.String("test-files", "examples/*.pl0", "Glob pattern(s) for files to test (space-separated).")
	skipFiles      = flag.String("skip-files", "", "Files to skip (space-separated).")
	optLevels      = flag.String("levels", "0 1 2", "Optimization levels every file is run at (space-separated).")
	outputJSON     = flag.String("output", ".test_results.json", "Output file for the JSON test report.")
	timeout        = flag.Duration("timeout", 5*time.Second, "Timeout for each program run.")
	jobs           = flag.Int("j", 4, "Number of parallel test jobs.")
	verbose        = flag.Bool("v", false, "Enable verbose logging.")
	jsonDir        = flag.String("dir", "", "Directory to store/read golden JSON files (defaults to source file dir).")
)

const (
	cRed    = "\x1b[91m"
	cYellow = "\x1b[93m"
	cGreen  = "\x1b[92m"
	cCyan   = "\x1b[96m"
	cBold   = "\x1b[1m"
	cNone   = "\x1b[0m"
)

// cache is shared by all workers; identical sources at the same level compile once.
var cache = driver.NewCache()

func main() {
	flag.Parse()
	log.SetFlags(0)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	levels, err := parseLevels(*optLevels)
	if err != nil {
		log.Fatalf("%s[ERROR]%s %v\n", cRed, cNone, err)
	}

	if *generateGolden != "" {
		handleGenerateGolden(ctx, *generateGolden)
		return
	}
	handleRunTestSuite(ctx, levels)
}

func parseLevels(s string) ([]int, error) {
	var levels []int
	for _, f := range strings.Fields(s) {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 || n > 2 {
			return nil, fmt.Errorf("invalid optimization level '%s'", f)
		}
		levels = append(levels, n)
	}
	if len(levels) == 0 {
		return nil, errors.New("no optimization levels given")
	}
	return levels, nil
}

func getJSONPath(sourceFile string) string {
	jsonFileName := "." + filepath.Base(sourceFile) + ".json"
	if *jsonDir != "" {
		return filepath.Join(*jsonDir, jsonFileName)
	}
	return filepath.Join(filepath.Dir(sourceFile), jsonFileName)
}

// hashFile computes the xxhash of a file's content
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := xxhash.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", h.Sum64()), nil
}

// loadInputs reads <file>.in, one run per line of whitespace separated
// integers. Without that file the program is run once with no input.
func loadInputs(sourceFile string) ([][]int64, error) {
	f, err := os.Open(sourceFile + ".in")
	if errors.Is(err, os.ErrNotExist) {
		return [][]int64{nil}, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var sets [][]int64
	sc := bufio.NewScanner(f)
	for line := 1; sc.Scan(); line++ {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}
		vals := make([]int64, 0, len(fields))
		for _, field := range fields {
			v, err := strconv.ParseInt(field, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%s.in:%d: invalid integer '%s'", sourceFile, line, field)
			}
			vals = append(vals, v)
		}
		sets = append(sets, vals)
	}
	if len(sets) == 0 {
		sets = [][]int64{nil}
	}
	return sets, sc.Err()
}

func compileAndRun(ctx context.Context, sourceFile string, level int) (Golden, error) {
	content, err := os.ReadFile(sourceFile)
	if err != nil {
		return Golden{}, err
	}
	inputs, err := loadInputs(sourceFile)
	if err != nil {
		return Golden{}, err
	}
	result := Golden{Hash: fmt.Sprintf("%x", xxhash.Sum64(content))}

	cfg := config.NewConfig()
	cfg.Stderr = io.Discard
	if err := cfg.ApplyOptLevel(level); err != nil {
		return Golden{}, err
	}
	art, err := cache.Compile(string(content), cfg)
	if err != nil {
		result.CompileError = err.Error()
		return result, nil
	}

	for i, vals := range inputs {
		name := "no_input"
		if vals != nil {
			name = fmt.Sprintf("input_%d", i+1)
		}
		runCtx, cancel := context.WithTimeout(ctx, *timeout)
		var stdout bytes.Buffer
		start := time.Now()
		m, runErr := driver.Run(runCtx, art, cfg, &stdout, vm.Values(vals...))
		exec := Execution{Stdout: stdout.String(), Status: m.Status().String(), Duration: time.Since(start)}
		if runErr != nil {
			exec.Error = runErr.Error()
			exec.TimedOut = errors.Is(runErr, context.DeadlineExceeded)
		}
		cancel()
		result.Runs = append(result.Runs, TestRun{Name: name, Input: vals, Result: exec})
	}
	return result, nil
}

func handleGenerateGolden(ctx context.Context, sourceFile string) {
	log.Printf("Generating golden file for %s...\n", sourceFile)

	golden, err := compileAndRun(ctx, sourceFile, 0)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Could not generate golden file for %s: %v\n", cRed, cNone, sourceFile, err)
	}

	jsonData, err := json.MarshalIndent(golden, "", "  ")
	if err != nil {
		log.Fatalf("%s[ERROR]%s Failed to marshal golden data to JSON: %v\n", cRed, cNone, err)
	}

	goldenFileName := getJSONPath(sourceFile)
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Fatalf("%s[ERROR]%s Failed to create directory %s: %v\n", cRed, cNone, *jsonDir, err)
		}
	}
	if err := os.WriteFile(goldenFileName, jsonData, 0644); err != nil {
		log.Fatalf("%s[ERROR]%s Failed to write golden file %s: %v\n", cRed, cNone, goldenFileName, err)
	}
	log.Printf("%s[SUCCESS]%s Golden file created at %s\n", cGreen, cNone, goldenFileName)
}

func handleRunTestSuite(ctx context.Context, levels []int) {
	files, err := expandGlobPatterns(*testFiles)
	if err != nil {
		log.Fatalf("%s[ERROR]%s Invalid glob pattern(s): %v\n", cRed, cNone, err)
	}
	if len(files) == 0 {
		log.Println("No test files found matching the pattern(s).")
		return
	}

	skipList := make(map[string]bool)
	for _, f := range strings.Fields(*skipFiles) {
		skipList[f] = true
	}

	tasks := make(chan string, len(files))
	resultsChan := make(chan *FileTestResult, len(files))
	var wg sync.WaitGroup

	for i := 0; i < *jobs; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for file := range tasks {
				resultsChan <- testFile(ctx, file, levels)
			}
		}()
	}

	// Feed the tasks channel, skipping files with identical content
	seenHashes := make(map[string]string)
	for _, file := range files {
		if skipList[file] {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: "Explicitly skipped"}
			continue
		}
		fileHash, err := hashFile(file)
		if err != nil {
			resultsChan <- &FileTestResult{File: file, Status: "ERROR", Message: fmt.Sprintf("Failed to read file for hashing: %v", err)}
			continue
		}
		if originalFile, seen := seenHashes[fileHash]; seen {
			resultsChan <- &FileTestResult{File: file, Status: "SKIP", Message: fmt.Sprintf("Content is identical to %s", originalFile)}
			continue
		}
		seenHashes[fileHash] = file
		tasks <- file
	}
	close(tasks)

	wg.Wait()
	close(resultsChan)

	var allResults []*FileTestResult
	for result := range resultsChan {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool {
		return allResults[i].File < allResults[j].File
	})

	printSummary(allResults)
	resultsMap := writeJSONReport(allResults)
	if hasFailures(resultsMap) {
		os.Exit(1)
	}
}

// testFile runs file at every level and compares each against the golden
// file, or against the lowest level when there is no golden file.
func testFile(ctx context.Context, file string, levels []int) *FileTestResult {
	result := &FileTestResult{File: file, Levels: make(map[int]Golden)}
	for _, level := range levels {
		g, err := compileAndRun(ctx, file, level)
		if err != nil {
			result.Status, result.Message = "ERROR", err.Error()
			return result
		}
		result.Levels[level] = g
	}

	reference, refName := result.Levels[levels[0]], fmt.Sprintf("-O%d", levels[0])
	hasGolden := false
	if goldenData, err := os.ReadFile(getJSONPath(file)); err == nil {
		var golden Golden
		if err := json.Unmarshal(goldenData, &golden); err != nil {
			result.Status, result.Message = "ERROR", fmt.Sprintf("Could not parse golden file: %v", err)
			return result
		}
		if golden.Hash != reference.Hash {
			result.Status, result.Message = "SKIP", "Golden file is stale, regenerate it with --generate-golden"
			return result
		}
		reference, refName, hasGolden = golden, "golden", true
	}
	judge(result, levels, reference, refName, hasGolden && reference.CompileError != "")
	return result
}

// judge sets result's status from the per-level outcomes. A level that does
// not compile fails the file unless the golden file records a compile error.
func judge(result *FileTestResult, levels []int, reference Golden, refName string, expectCompileError bool) {
	var broken strings.Builder
	for _, level := range levels {
		if msg := result.Levels[level].CompileError; msg != "" && !expectCompileError {
			fmt.Fprintf(&broken, "-O%d: %s\n", level, msg)
		}
	}
	if broken.Len() > 0 {
		result.Status, result.Message, result.Diff = "FAIL", "Compile error", broken.String()
		return
	}

	var diffs strings.Builder
	for _, level := range levels {
		got := result.Levels[level]
		if d := cmp.Diff(stripDurations(reference), stripDurations(got)); d != "" {
			fmt.Fprintf(&diffs, "-O%d differs from %s (-%s +-O%d):\n%s", level, refName, refName, level, d)
		}
	}
	if diffs.Len() > 0 {
		result.Status, result.Message, result.Diff = "FAIL", "Output mismatch", diffs.String()
		return
	}
	result.Status = "PASS"
	if expectCompileError {
		result.Message = fmt.Sprintf("compile error matches %s at %d level(s)", refName, len(levels))
		return
	}
	result.Message = fmt.Sprintf("%d run(s) agree with %s at %d level(s)", len(reference.Runs), refName, len(levels))
}

func stripDurations(g Golden) Golden {
	runs := make([]TestRun, len(g.Runs))
	for i, r := range g.Runs {
		r.Result.Duration = 0
		runs[i] = r
	}
	g.Runs = runs
	return g
}

func formatDuration(d time.Duration) string {
	if d < time.Millisecond {
		return fmt.Sprintf("%6dµs", d.Microseconds())
	}
	return fmt.Sprintf("%6dms", d.Milliseconds())
}

func printSummary(results []*FileTestResult) {
	var passed, failed, skipped, errored int
	for _, result := range results {
		fmt.Println("----------------------------------------------------------------------")
		fmt.Printf("Testing %s%s%s...\n", cCyan, result.File, cNone)

		switch result.Status {
		case "PASS":
			passed++
			fmt.Printf("  [%sPASS%s] %s\n", cGreen, cNone, result.Message)
		case "FAIL":
			failed++
			fmt.Printf("  [%sFAIL%s] %s\n", cRed, cNone, result.Message)
			fmt.Println(formatDiff(result.Diff))
		case "SKIP":
			skipped++
			fmt.Printf("  [%sSKIP%s] %s\n", cYellow, cNone, result.Message)
		case "ERROR":
			errored++
			fmt.Printf("  [%sERROR%s] %s\n", cRed, cNone, result.Message)
		}

		if *verbose && result.Status == "PASS" {
			levels := make([]int, 0, len(result.Levels))
			for level := range result.Levels {
				levels = append(levels, level)
			}
			sort.Ints(levels)
			for _, level := range levels {
				var total time.Duration
				for _, run := range result.Levels[level].Runs {
					total += run.Result.Duration
				}
				fmt.Printf("    -O%d: %s\n", level, formatDuration(total))
			}
		}
	}

	fmt.Println("----------------------------------------------------------------------")
	fmt.Printf("%sTest Summary:%s %s%d Passed%s, %s%d Failed%s, %s%d Skipped%s, %s%d Errored%s, %d Total\n",
		cBold, cNone, cGreen, passed, cNone, cRed, failed, cNone, cYellow, skipped, cNone, cRed, errored, cNone, len(results))
	entries, hits := cache.Stats()
	if *verbose {
		fmt.Printf("Compile cache: %d program(s), %d hit(s)\n", entries, hits)
	}
}

func formatDiff(diff string) string {
	if diff == "" {
		return ""
	}
	var builder strings.Builder
	builder.WriteString("    --- Diff ---\n")
	for _, line := range strings.Split(diff, "\n") {
		trimmedLine := strings.TrimSpace(line)
		if strings.HasPrefix(trimmedLine, "-") {
			builder.WriteString(cRed)
		} else if strings.HasPrefix(trimmedLine, "+") {
			builder.WriteString(cGreen)
		}
		builder.WriteString("    " + line)
		builder.WriteString(cNone)
		builder.WriteString("\n")
	}
	return builder.String()
}

func writeJSONReport(results []*FileTestResult) TestSuiteResults {
	resultsMap := make(TestSuiteResults, len(results))
	for _, r := range results {
		resultsMap[r.File] = r
	}

	jsonData, err := json.MarshalIndent(resultsMap, "", "  ")
	if err != nil {
		log.Printf("%s[ERROR]%s Failed to marshal results to JSON: %v\n", cRed, cNone, err)
		return resultsMap
	}

	outputFile := *outputJSON
	if *jsonDir != "" {
		if err := os.MkdirAll(*jsonDir, 0755); err != nil {
			log.Printf("%s[ERROR]%s Failed to create dir %s: %v\n", cRed, cNone, *jsonDir, err)
		}
		outputFile = filepath.Join(*jsonDir, *outputJSON)
	}

	if err := os.WriteFile(outputFile, jsonData, 0644); err != nil {
		log.Printf("%s[ERROR]%s Failed to write JSON report to %s: %v\n", cRed, cNone, outputFile, err)
	} else {
		fmt.Printf("Full test report saved to %s\n", outputFile)
	}
	return resultsMap
}

func hasFailures(results TestSuiteResults) bool {
	for _, result := range results {
		if result.Status == "FAIL" || result.Status == "ERROR" {
			return true
		}
	}
	return false
}

func expandGlobPatterns(patterns string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]bool)
	for _, pattern := range strings.Fields(patterns) {
		files, err := filepath.Glob(pattern)
		if err != nil {
			return nil, fmt.Errorf("bad pattern %s: %w", pattern, err)
		}
		for _, file := range files {
			absFile, err := filepath.Abs(file)
			if err != nil {
				continue
			}
			if !seen[absFile] {
				if info, err := os.Stat(absFile); err == nil && info.Mode().IsRegular() {
					allFiles = append(allFiles, absFile)
					seen[absFile] = true
				}
			}
		}
	}
	return allFiles, nil
}
