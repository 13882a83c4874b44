// Benchmark tool for measuring padi's diagnostic accuracy against labelled cases.
//
// Usage:
//
//	go run ./cmd/benchmark -csv cases.csv -url http://localhost:8080
//
// The CSV has a header row and the columns:
//
//	case,expected,symptoms,certainties
//	c001,P01,1;2;7;12,pasti;pasti;0.8;mungkin
//	c002,NONE,9;99;100,pasti;pasti;pasti
//
// expected is a disease code, or NONE when no diagnosis should be made.
// Every case is sent as a distinct user so daily limits and duplicate
// detection do not interfere. Run the server with rate limiting disabled
// or raised to the worker count.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// ExpectNone labels a case that should not produce a diagnosis.
const ExpectNone = "NONE"

// Case is one labelled row of the dataset.
type Case struct {
	Name        string
	Expected    string
	SymptomIDs  []int64
	Certainties map[string]any
}

// DiagnosisRequest is the POST /diagnosis/start body.
type DiagnosisRequest struct {
	SymptomIDs  []int64        `json:"symptom_ids"`
	Certainties map[string]any `json:"certainty_values"`
}

// DiagnosisResponse is the subset of the response envelope the benchmark reads.
type DiagnosisResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    struct {
		Status  string `json:"status"`
		Primary *struct {
			DiseaseCode string  `json:"disease_code"`
			CFFinal     float64 `json:"cf_final"`
		} `json:"primary"`
	} `json:"data"`
}

// Predicted returns the primary disease code, or ExpectNone.
func (r *DiagnosisResponse) Predicted() string {
	if r.Data.Status != "diagnosed" || r.Data.Primary == nil {
		return ExpectNone
	}
	return r.Data.Primary.DiseaseCode
}

// Metrics tracks benchmark results
type Metrics struct {
	Correct        int64
	Incorrect      int64
	Insufficient   int64 // diagnosed below minimum symptom match
	TotalProcessed int64
	TotalErrors    int64

	ProcessingTimeMs int64

	mu        sync.Mutex
	confusion map[string]map[string]int64 // expected -> predicted -> count
}

func (m *Metrics) record(expected, predicted string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.confusion == nil {
		m.confusion = make(map[string]map[string]int64)
	}
	row := m.confusion[expected]
	if row == nil {
		row = make(map[string]int64)
		m.confusion[expected] = row
	}
	row[predicted]++
}

func main() {
	csvPath := flag.String("csv", "", "Path to labelled cases CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "padi base URL")
	userPrefix := flag.String("user", "benchmark", "User ID prefix for requests")
	limit := flag.Int("limit", 0, "Maximum cases to process (0 = all)")
	workers := flag.Int("workers", 4, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each case result")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv cases.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	fmt.Println("PADI BENCHMARK - diagnostic accuracy")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("padi URL:    %s\n", *baseURL)
	fmt.Printf("User Prefix: %s\n", *userPrefix)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		fmt.Printf("ERROR: padi not reachable at %s: %v\n", *baseURL, err)
		fmt.Println("\nMake sure padi is running:")
		fmt.Println("  go run ./cmd/padi serve")
		os.Exit(1)
	}
	fmt.Println("padi is healthy")

	file, err := os.Open(*csvPath)
	if err != nil {
		fmt.Printf("ERROR: Failed to open CSV: %v\n", err)
		os.Exit(1)
	}
	cases, err := readCases(file, *limit)
	file.Close()
	if err != nil {
		fmt.Printf("ERROR: Failed to read CSV: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d cases\n", len(cases))

	fmt.Printf("\nRunning benchmark with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := runBenchmark(cases, *baseURL, *userPrefix, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(os.Stdout, metrics, duration)
}

func checkHealth(baseURL string) error {
	resp, err := http.Get(baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	return nil
}

func readCases(r io.Reader, limit int) ([]Case, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	for _, col := range []string{"case", "expected", "symptoms", "certainties"} {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	var cases []Case
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		c, err := parseCase(record, colIndex)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		cases = append(cases, c)

		if limit > 0 && len(cases) >= limit {
			break
		}
	}

	return cases, nil
}

func parseCase(record []string, colIndex map[string]int) (Case, error) {
	c := Case{
		Name:     record[colIndex["case"]],
		Expected: strings.ToUpper(strings.TrimSpace(record[colIndex["expected"]])),
	}

	ids := splitList(record[colIndex["symptoms"]])
	values := splitList(record[colIndex["certainties"]])
	if len(ids) != len(values) {
		return c, fmt.Errorf("case %s: %d symptoms but %d certainties", c.Name, len(ids), len(values))
	}

	c.Certainties = make(map[string]any, len(ids))
	for i, raw := range ids {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return c, fmt.Errorf("case %s: invalid symptom id %q", c.Name, raw)
		}
		c.SymptomIDs = append(c.SymptomIDs, id)
		if n, err := strconv.ParseFloat(values[i], 64); err == nil {
			c.Certainties[raw] = n
		} else {
			c.Certainties[raw] = values[i]
		}
	}
	return c, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ";") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func runBenchmark(cases []Case, baseURL, userPrefix string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{}

	type job struct {
		index int
		c     Case
	}
	work := make(chan job, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for j := range work {
				userID := fmt.Sprintf("%s-%d", userPrefix, j.index)
				start := time.Now()
				result, err := diagnose(client, baseURL, userID, j.c)
				elapsed := time.Since(start).Milliseconds()

				atomic.AddInt64(&metrics.ProcessingTimeMs, elapsed)
				atomic.AddInt64(&metrics.TotalProcessed, 1)

				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						fmt.Printf("ERROR: %s -> %v\n", j.c.Name, err)
					}
					continue
				}

				predicted := result.Predicted()
				metrics.record(j.c.Expected, predicted)
				if result.Data.Status == "insufficient_match" {
					atomic.AddInt64(&metrics.Insufficient, 1)
				}

				ok := predicted == j.c.Expected
				if ok {
					atomic.AddInt64(&metrics.Correct, 1)
				} else {
					atomic.AddInt64(&metrics.Incorrect, 1)
				}

				if verbose {
					mark := "ok  "
					if !ok {
						mark = "MISS"
					}
					cf := 0.0
					if result.Data.Primary != nil {
						cf = result.Data.Primary.CFFinal
					}
					fmt.Printf("%s %-10s | expected: %-5s | got: %-5s (%.4f) | %s\n",
						mark, j.c.Name, j.c.Expected, predicted, cf, result.Data.Status)
				}
			}
		}()
	}

	for i, c := range cases {
		work <- job{index: i, c: c}
	}
	close(work)

	wg.Wait()

	return metrics
}

func diagnose(client *http.Client, baseURL, userID string, c Case) (*DiagnosisResponse, error) {
	body, err := json.Marshal(DiagnosisRequest{
		SymptomIDs:  c.SymptomIDs,
		Certainties: c.Certainties,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/diagnosis/start", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-User-ID", userID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	// no_diagnosis is reported as 400 with a decision body.
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusBadRequest {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result DiagnosisResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusBadRequest && result.Data.Status == "" {
		return nil, fmt.Errorf("rejected: %s", result.Message)
	}
	return &result, nil
}

func printResults(w io.Writer, m *Metrics, duration time.Duration) {
	fmt.Fprintln(w, "\nBENCHMARK RESULTS")

	fmt.Fprintf(w, "\nDATASET\n")
	fmt.Fprintf(w, "   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Fprintf(w, "   Errors:           %d\n", m.TotalErrors)
	fmt.Fprintf(w, "   Insufficient:     %d\n", m.Insufficient)

	answered := m.Correct + m.Incorrect
	accuracy := float64(0)
	if answered > 0 {
		accuracy = float64(m.Correct) / float64(answered)
	}
	fmt.Fprintf(w, "\nACCURACY\n")
	fmt.Fprintf(w, "   Top-1 Correct:    %d / %d (%.2f%%)\n", m.Correct, answered, accuracy*100)

	fmt.Fprintf(w, "\nPER EXPECTED LABEL\n")
	expected := make([]string, 0, len(m.confusion))
	for label := range m.confusion {
		expected = append(expected, label)
	}
	sort.Strings(expected)
	for _, label := range expected {
		row := m.confusion[label]
		var total int64
		predicted := make([]string, 0, len(row))
		for p, n := range row {
			total += n
			predicted = append(predicted, p)
		}
		sort.Strings(predicted)
		parts := make([]string, 0, len(predicted))
		for _, p := range predicted {
			parts = append(parts, fmt.Sprintf("%s=%d", p, row[p]))
		}
		recall := float64(row[label]) / float64(total) * 100
		fmt.Fprintf(w, "   %-5s recall %6.2f%%  [%s]\n", label, recall, strings.Join(parts, " "))
	}

	fmt.Fprintf(w, "\nPERFORMANCE\n")
	fmt.Fprintf(w, "   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if m.TotalProcessed > 0 {
		avgMs := float64(m.ProcessingTimeMs) / float64(m.TotalProcessed)
		rps := float64(m.TotalProcessed) / duration.Seconds()
		fmt.Fprintf(w, "   Avg Latency:      %.2f ms\n", avgMs)
		fmt.Fprintf(w, "   Throughput:       %.2f req/sec\n", rps)
	}
	fmt.Fprintln(w)
}
