// Command load drives the bulk SMS API end to end against an
// in-process instance with a fake provider, and reports per-operation
// latency percentiles as JSON.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/emeka/bulksms-back/internal/delivery"
	"github.com/emeka/bulksms-back/internal/extract"
	httpserver "github.com/emeka/bulksms-back/internal/http"
	"github.com/emeka/bulksms-back/internal/http/handlers"
	"github.com/emeka/bulksms-back/internal/phone"
	"github.com/emeka/bulksms-back/internal/policy"
	"github.com/emeka/bulksms-back/internal/queue"
	"github.com/emeka/bulksms-back/internal/repository"
	"github.com/emeka/bulksms-back/internal/service"
	"github.com/emeka/bulksms-back/internal/worker"
)

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server   *httptest.Server
	provider *httptest.Server
	cancel   context.CancelFunc
}

// idPool collects job identifiers produced by one scenario so a later
// scenario can reuse them.
type idPool struct {
	mu  sync.Mutex
	ids []string
}

func (p *idPool) add(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
}

func (p *idPool) pick(index int) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.ids) == 0 {
		return "", false
	}
	return p.ids[index%len(p.ids)], true
}

func main() {
	uploadsTotal := flag.Int("uploads-total", 120, "total spreadsheet upload requests")
	uploadsConcurrency := flag.Int("uploads-concurrency", 12, "concurrency for upload requests")
	uploadRows := flag.Int("upload-rows", 200, "contact rows per uploaded spreadsheet")
	sendsTotal := flag.Int("sends-total", 120, "total send launch requests")
	sendsConcurrency := flag.Int("sends-concurrency", 16, "concurrency for send launch requests")
	pollsTotal := flag.Int("polls-total", 400, "total progress poll requests")
	pollsConcurrency := flag.Int("polls-concurrency", 32, "concurrency for progress poll requests")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	env := startBenchmarkEnvironment()
	defer env.cancel()
	defer env.server.Close()
	defer env.provider.Close()

	client := &http.Client{Timeout: 10 * time.Second}
	var idCounter int64
	previewJobs := &idPool{}
	sendJobs := &idPool{}

	csvContent := buildContactsCSV(*uploadRows)

	uploadsScenario := runScenario("uploads", *uploadsTotal, *uploadsConcurrency, func(index int) error {
		jobID, err := uploadCSV(client, env.server.URL+"/v1/uploads", csvContent)
		if err != nil {
			return err
		}
		previewJobs.add(jobID)
		return nil
	})

	sendsScenario := runScenario("sends_enqueue", *sendsTotal, *sendsConcurrency, func(index int) error {
		previewJobID, ok := previewJobs.pick(index)
		if !ok {
			return fmt.Errorf("no preview jobs available")
		}
		requestID := atomic.AddInt64(&idCounter, 1)
		payload := map[string]any{
			"job_id":            previewJobID,
			"message":           "Hi {name}, this is a load test message",
			"personalize":       index%2 == 0,
			"per_send_delay_ms": 1,
		}
		headers := map[string]string{
			"Idempotency-Key": fmt.Sprintf("load-send-%d-%d", requestID, time.Now().UnixNano()),
		}
		body, err := postJSON(client, env.server.URL+"/v1/sends", payload, headers, http.StatusAccepted)
		if err != nil {
			return err
		}
		if sendJobID, _ := body["send_job_id"].(string); sendJobID != "" {
			sendJobs.add(sendJobID)
		}
		return nil
	})

	pollsScenario := runScenario("progress_polls", *pollsTotal, *pollsConcurrency, func(index int) error {
		sendJobID, ok := sendJobs.pick(index)
		if !ok {
			return fmt.Errorf("no send jobs available")
		}
		return getJSON(client, env.server.URL+"/v1/sends/"+sendJobID, http.StatusOK)
	})

	results := []scenarioResult{uploadsScenario, sendsScenario, pollsScenario}
	slo := map[string]bool{
		"upload_p95_le_1500ms":       uploadsScenario.P95MS <= 1500,
		"send_enqueue_p95_le_500ms":  sendsScenario.P95MS <= 500,
		"progress_poll_p95_le_200ms": pollsScenario.P95MS <= 200,
	}

	report := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}

	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}

	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment() *benchmarkEnv {
	ctx, cancel := context.WithCancel(context.Background())
	logger := zerolog.Nop()

	provider := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"message_id":"load-msg","message":"Successfully Sent","code":"ok"}`))
	}))

	repo := repository.NewMemoryJobsRepository()
	localQueue := queue.NewLocalQueue(4096, logger)
	deliveryClient := delivery.NewTermiiClient(delivery.TermiiConfig{
		APIKey:  "load-test-key",
		BaseURL: provider.URL,
		Timeout: 5 * time.Second,
	})
	extractor := extract.New(extract.Options{
		DefaultProfile: phone.NewProfile("+234", 10, phone.FormatLocal),
	})

	previewService := service.NewPreviewService(repo, extractor, logger)
	sendService := service.NewSendService(service.SendDependencies{
		Repo:     repo,
		Producer: localQueue,
		Rules:    policy.MessageRules{},
		Logger:   logger,
	})
	api := handlers.NewAPI(previewService, sendService, handlers.Options{
		MaxUploadBytes:  32 << 20,
		PreviewPageSize: 100,
	})
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		AuthToken:      "",
		RateLimitRPS:   200000,
		RateLimitBurst: 200000,
	})

	dispatcher := worker.NewDispatcher(localQueue, repo, deliveryClient, logger)
	for i := 0; i < 8; i++ {
		go dispatcher.Start(ctx)
	}

	server := httptest.NewServer(router)
	return &benchmarkEnv{
		server:   server,
		provider: provider,
		cancel:   cancel,
	}
}

func buildContactsCSV(rows int) string {
	if rows <= 0 {
		rows = 1
	}
	var builder strings.Builder
	builder.WriteString("Full Name,Phone Number\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&builder, "Contact Number%d,080%08d\n", i, i)
	}
	return builder.String()
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{
					durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0,
				}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func uploadCSV(client *http.Client, url, content string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "contacts.csv")
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.WriteString(part, content); err != nil {
		return "", fmt.Errorf("write form file: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, &body)
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", writer.FormDataContentType())

	response, err := client.Do(request)
	if err != nil {
		return "", err
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return "", fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, http.StatusCreated, string(raw))
	}

	var decoded struct {
		JobID string `json:"job_id"`
	}
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode upload response: %w", err)
	}
	if decoded.JobID == "" {
		return "", fmt.Errorf("upload response missing job_id")
	}
	return decoded.JobID, nil
}

func postJSON(
	client *http.Client,
	url string,
	payload any,
	headers map[string]string,
	expectedStatus int,
) (map[string]any, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	for key, value := range headers {
		request.Header.Set(key, value)
	}

	response, err := client.Do(request)
	if err != nil {
		return nil, err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return nil, fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(raw))
	}

	var decoded map[string]any
	if err := json.NewDecoder(response.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return decoded, nil
}

func getJSON(client *http.Client, url string, expectedStatus int) error {
	request, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		raw, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(raw))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
