// Scenario replay tool for load and regression testing Verdict.
//
// Usage:
//
//	go run ./cmd/benchmark -csv scenarios.csv -url http://localhost:8080
//
// Each CSV row is one policy context. Recognised columns (header names are
// case-insensitive, all optional except total):
//
//	actor_id, funding_method, program_status, recipient_id, recipient_tier,
//	suggested_recipient_id, category, total, slot_day, slot_start, slot_end,
//	in_region, expected_outcome
//
// The tool posts every row to POST /evaluate, compares the returned outcome
// with expected_outcome when present, and reports an outcome matrix and
// latency figures.
package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
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

	"github.com/fatih/color"

	"github.com/opensource-finance/verdict/internal/domain"
)

var outcomes = []domain.Outcome{
	domain.OutcomeAllowed,
	domain.OutcomeApprovalRequired,
	domain.OutcomeBlocked,
}

// Scenario is one replayable row.
type Scenario struct {
	Line     int
	Context  domain.PolicyContext
	Expected domain.Outcome
}

// Metrics tracks replay results.
type Metrics struct {
	mu sync.Mutex
	// matrix[expected][actual]; expected is "" for unlabelled rows.
	matrix    map[domain.Outcome]map[domain.Outcome]int64
	latencies []time.Duration

	TotalProcessed int64
	TotalErrors    int64
}

func (m *Metrics) record(expected, actual domain.Outcome, latency time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.matrix[expected] == nil {
		m.matrix[expected] = make(map[domain.Outcome]int64)
	}
	m.matrix[expected][actual]++
	m.latencies = append(m.latencies, latency)
}

func main() {
	csvPath := flag.String("csv", "", "Path to scenario CSV file")
	baseURL := flag.String("url", "http://localhost:8080", "Verdict base URL")
	tenantID := flag.String("tenant", "benchmark-test", "Tenant ID for requests")
	limit := flag.Int("limit", 10000, "Maximum scenarios to replay (0 = all)")
	workers := flag.Int("workers", 10, "Number of concurrent workers")
	verbose := flag.Bool("verbose", false, "Print each mismatching scenario")
	flag.Parse()

	if *csvPath == "" {
		fmt.Println("Usage: benchmark -csv scenarios.csv [-url http://localhost:8080]")
		fmt.Println("\nFlags:")
		flag.PrintDefaults()
		os.Exit(1)
	}

	color.Cyan("VERDICT SCENARIO REPLAY")
	fmt.Printf("\nCSV File:    %s\n", *csvPath)
	fmt.Printf("Verdict URL: %s\n", *baseURL)
	fmt.Printf("Tenant ID:   %s\n", *tenantID)
	fmt.Printf("Workers:     %d\n", *workers)
	fmt.Printf("Limit:       %d\n", *limit)
	fmt.Println()

	if err := checkHealth(*baseURL); err != nil {
		color.Red("ERROR: Verdict not reachable at %s: %v", *baseURL, err)
		fmt.Println("\nMake sure Verdict is running:")
		fmt.Println("  go run ./cmd/verdict")
		os.Exit(1)
	}
	color.Green("Verdict is healthy")

	scenarios, err := readScenarios(*csvPath, *limit)
	if err != nil {
		color.Red("ERROR: Failed to read CSV: %v", err)
		os.Exit(1)
	}
	fmt.Printf("Loaded %d scenarios\n", len(scenarios))

	fmt.Printf("\nReplaying with %d workers...\n", *workers)
	startTime := time.Now()
	metrics := replay(scenarios, *baseURL, *tenantID, *workers, *verbose)
	duration := time.Since(startTime)

	printResults(metrics, duration)

	if mismatches(metrics) > 0 {
		os.Exit(2)
	}
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

func readScenarios(path string, limit int) ([]Scenario, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	colIndex := make(map[string]int)
	for i, col := range header {
		colIndex[strings.ToLower(strings.TrimSpace(col))] = i
	}
	if _, ok := colIndex["total"]; !ok {
		return nil, fmt.Errorf("missing required column: total")
	}

	var scenarios []Scenario
	line := 1
	for {
		record, err := reader.Read()
		line++
		if err == io.EOF {
			break
		}
		if err != nil {
			continue // Skip malformed rows
		}

		field := func(name string) string {
			i, ok := colIndex[name]
			if !ok || i >= len(record) {
				return ""
			}
			return strings.TrimSpace(record[i])
		}

		sc, err := parseScenario(field)
		if err != nil {
			color.Yellow("WARN: line %d skipped: %v", line, err)
			continue
		}
		sc.Line = line
		scenarios = append(scenarios, sc)

		if limit > 0 && len(scenarios) >= limit {
			break
		}
	}

	return scenarios, nil
}

func parseScenario(field func(string) string) (Scenario, error) {
	total, err := strconv.ParseInt(field("total"), 10, 64)
	if err != nil {
		return Scenario{}, fmt.Errorf("invalid total: %w", err)
	}

	ctx := domain.PolicyContext{
		ActorID:              orDefault(field("actor_id"), "benchmark-actor"),
		FundingMethod:        domain.FundingMethod(strings.ToUpper(orDefault(field("funding_method"), string(domain.FundingProgram)))),
		ProgramStatus:        domain.ProgramStatus(strings.ToUpper(orDefault(field("program_status"), string(domain.StatusEligible)))),
		RecipientID:          field("recipient_id"),
		RecipientTier:        domain.RecipientTier(strings.ToUpper(orDefault(field("recipient_tier"), string(domain.TierApproved)))),
		SuggestedRecipientID: field("suggested_recipient_id"),
		Category:             field("category"),
		Total:                total,
	}

	if day := field("slot_day"); day != "" {
		d, err1 := strconv.Atoi(day)
		start, err2 := strconv.Atoi(field("slot_start"))
		end, err3 := strconv.Atoi(field("slot_end"))
		if err1 != nil || err2 != nil || err3 != nil {
			return Scenario{}, fmt.Errorf("invalid slot")
		}
		ctx.Slot = &domain.Slot{ID: "slot", Day: time.Weekday(d), StartMinute: start, EndMinute: end}
	}

	if v := field("in_region"); v != "" {
		in, err := strconv.ParseBool(v)
		if err != nil {
			return Scenario{}, fmt.Errorf("invalid in_region: %w", err)
		}
		ctx.InRegion = &in
	}

	return Scenario{
		Context:  ctx,
		Expected: domain.Outcome(strings.ToUpper(field("expected_outcome"))),
	}, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func replay(scenarios []Scenario, baseURL, tenantID string, numWorkers int, verbose bool) *Metrics {
	metrics := &Metrics{matrix: make(map[domain.Outcome]map[domain.Outcome]int64)}

	work := make(chan Scenario, 100)
	var wg sync.WaitGroup

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 10 * time.Second}

			for sc := range work {
				start := time.Now()
				result, err := evaluate(client, baseURL, tenantID, sc.Context)
				elapsed := time.Since(start)

				atomic.AddInt64(&metrics.TotalProcessed, 1)
				if err != nil {
					atomic.AddInt64(&metrics.TotalErrors, 1)
					if verbose {
						color.Red("ERROR: line %d -> %v", sc.Line, err)
					}
					continue
				}

				metrics.record(sc.Expected, result.Outcome, elapsed)

				if verbose && sc.Expected != "" && sc.Expected != result.Outcome {
					color.Yellow("MISMATCH line %-6d | total %12d | expected %-17s | got %-17s | %s",
						sc.Line,
						sc.Context.Total,
						sc.Expected,
						result.Outcome,
						reasonCodes(result.Reasons),
					)
				}
			}
		}()
	}

	for _, sc := range scenarios {
		work <- sc
	}
	close(work)

	wg.Wait()

	return metrics
}

func evaluate(client *http.Client, baseURL, tenantID string, policyCtx domain.PolicyContext) (*domain.EvaluationResponse, error) {
	body, err := json.Marshal(policyCtx)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequest(http.MethodPost, baseURL+"/evaluate", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Tenant-ID", tenantID)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}

	var result domain.EvaluationResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func reasonCodes(reasons []domain.Reason) string {
	codes := make([]string, 0, len(reasons))
	for _, r := range reasons {
		codes = append(codes, fmt.Sprintf("%s/%s", r.Code, r.Severity))
	}
	return strings.Join(codes, ",")
}

func mismatches(m *Metrics) int64 {
	var n int64
	for expected, row := range m.matrix {
		if expected == "" {
			continue
		}
		for actual, count := range row {
			if actual != expected {
				n += count
			}
		}
	}
	return n
}

func printResults(m *Metrics, duration time.Duration) {
	color.Cyan("\nRESULTS")
	fmt.Printf("   Total Processed:  %d\n", m.TotalProcessed)
	fmt.Printf("   Errors:           %d\n", m.TotalErrors)

	color.Cyan("\nOUTCOME MATRIX (rows expected, columns actual)")
	fmt.Printf("   %-18s", "")
	for _, o := range outcomes {
		fmt.Printf(" %17s", o)
	}
	fmt.Println()
	for _, expected := range append([]domain.Outcome{""}, outcomes...) {
		row := m.matrix[expected]
		if row == nil {
			continue
		}
		label := string(expected)
		if label == "" {
			label = "(unlabelled)"
		}
		fmt.Printf("   %-18s", label)
		for _, actual := range outcomes {
			fmt.Printf(" %17d", row[actual])
		}
		fmt.Println()
	}
	if n := mismatches(m); n > 0 {
		color.Red("\n   Mismatches:       %d", n)
	} else {
		color.Green("\n   Mismatches:       0")
	}

	color.Cyan("\nPERFORMANCE")
	fmt.Printf("   Total Duration:   %v\n", duration.Round(time.Millisecond))
	if n := len(m.latencies); n > 0 {
		sorted := append([]time.Duration(nil), m.latencies...)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

		var sum time.Duration
		for _, d := range sorted {
			sum += d
		}
		fmt.Printf("   Avg Latency:      %.2f ms\n", float64(sum.Microseconds())/float64(n)/1000)
		fmt.Printf("   p50 Latency:      %.2f ms\n", float64(sorted[n/2].Microseconds())/1000)
		fmt.Printf("   p99 Latency:      %.2f ms\n", float64(sorted[(n*99)/100].Microseconds())/1000)
		fmt.Printf("   Throughput:       %.2f req/sec\n", float64(m.TotalProcessed)/duration.Seconds())
	}
	fmt.Println()
}
