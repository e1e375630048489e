package overpass

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient builds a client pointed at a fake Overpass instance with
// admission and pacing tuned for fast tests.
func newTestClient(ts *httptest.Server, opts ...Option) *Client {
	base := []Option{
		WithHTTPClient(ts.Client()),
		WithRateLimit(1000, 1000),
		WithSlotPolicy(5*time.Millisecond, 500*time.Millisecond),
		WithStatusMemoTTL(0),
	}
	return NewClient(append(base, opts...)...)
}

// fakeOverpass serves /api/status as always-available and delegates
// /api/interpreter to the given handler.
func fakeOverpass(t *testing.T, interpreter http.HandlerFunc) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintln(w, "3 slots available now.")
	})
	mux.HandleFunc("/api/interpreter", interpreter)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func testSpec(ts *httptest.Server) QuerySpec {
	return QuerySpec{
		BBox:       &BBox{South: 48.1, West: 11.5, North: 48.2, East: 11.6},
		Tags:       []TagFilter{TagEquals("amenity", "cafe")},
		Server:     ts.URL + "/api/interpreter",
		MaxRetries: 3,
		RetryDelay: time.Millisecond,
	}
}

func TestRunRetriesTransientStatuses(t *testing.T) {
	var attempts atomic.Int32
	ts := fakeOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		switch attempts.Add(1) {
		case 1:
			w.WriteHeader(http.StatusServiceUnavailable)
		case 2:
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			fmt.Fprint(w, `{"elements":[]}`)
		}
	})

	client := newTestClient(ts)
	result, err := client.Run(context.Background(), testSpec(ts))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Failed() {
		t.Fatalf("Run() failed after retries: %v", result.Err)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	if result.Kind != KindRaw {
		t.Errorf("result kind = %d, want KindRaw", result.Kind)
	}
}

func TestRunTerminalStatusFailsImmediately(t *testing.T) {
	var attempts atomic.Int32
	ts := fakeOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
	})

	client := newTestClient(ts)
	result, err := client.Run(context.Background(), testSpec(ts))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Failed() {
		t.Fatal("Run() should fail on a terminal status")
	}
	if !IsCode(result.Err, ErrInvalidInput) {
		t.Errorf("result error = %v, want %s", result.Err, ErrInvalidInput)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("attempts = %d, want 1 (no retry budget for terminal statuses)", got)
	}
}

func TestRunExhaustsRetryBudget(t *testing.T) {
	var attempts atomic.Int32
	ts := fakeOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := newTestClient(ts)
	result, err := client.Run(context.Background(), testSpec(ts))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Failed() {
		t.Fatal("Run() should fail once the retry budget is spent")
	}
	if !IsCode(result.Err, ErrServiceUnavailable) {
		t.Errorf("result error = %v, want %s", result.Err, ErrServiceUnavailable)
	}
	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
}

func TestRunAllPreservesInputOrder(t *testing.T) {
	ts := fakeOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query().Get("data")
		resp := struct {
			Query string `json:"query"`
		}{Query: query}
		json.NewEncoder(w).Encode(resp)
	})

	client := newTestClient(ts)

	specs := make([]QuerySpec, 8)
	for i := range specs {
		spec := testSpec(ts)
		spec.Tags = []TagFilter{TagEquals("ref", fmt.Sprintf("marker-%d", i))}
		specs[i] = spec
	}

	results, err := client.RunAll(context.Background(), specs)
	if err != nil {
		t.Fatalf("RunAll() error: %v", err)
	}
	if len(results) != len(specs) {
		t.Fatalf("got %d results, want %d", len(results), len(specs))
	}
	for i, result := range results {
		if result.Failed() {
			t.Fatalf("result %d failed: %v", i, result.Err)
		}
		marker := fmt.Sprintf("marker-%d", i)
		if !strings.Contains(string(result.Raw), marker) {
			t.Errorf("result %d does not carry %q: %s", i, marker, result.Raw)
		}
	}
}

func TestRunAllBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	ts := fakeOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		fmt.Fprint(w, `{"elements":[]}`)
	})

	client := newTestClient(ts, WithMaxConcurrent(3))

	specs := make([]QuerySpec, 8)
	for i := range specs {
		specs[i] = testSpec(ts)
	}

	results, err := client.RunAll(context.Background(), specs)
	if err != nil {
		t.Fatalf("RunAll() error: %v", err)
	}
	for i, result := range results {
		if result.Failed() {
			t.Fatalf("result %d failed: %v", i, result.Err)
		}
	}
	if got := peak.Load(); got > 3 {
		t.Errorf("peak concurrency = %d, want at most 3", got)
	}
}

func TestRunAllRejectsInvalidSpecBeforeDispatch(t *testing.T) {
	var requests atomic.Int32
	ts := fakeOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		fmt.Fprint(w, `{"elements":[]}`)
	})

	client := newTestClient(ts)

	specs := []QuerySpec{
		testSpec(ts),
		{Tags: []TagFilter{Tag("amenity")}, Server: ts.URL + "/api/interpreter"},
	}

	results, err := client.RunAll(context.Background(), specs)
	if !IsCode(err, ErrInvalidQuery) {
		t.Fatalf("RunAll() error = %v, want %s", err, ErrInvalidQuery)
	}
	if results != nil {
		t.Errorf("RunAll() returned results alongside a config error")
	}
	if got := requests.Load(); got != 0 {
		t.Errorf("%d requests reached the server before validation failed", got)
	}
}

func TestRunSendsQueryAndUserAgent(t *testing.T) {
	var gotQuery, gotAgent string
	ts := fakeOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("data")
		gotAgent = r.Header.Get("User-Agent")
		fmt.Fprint(w, `{"elements":[]}`)
	})

	client := newTestClient(ts, WithUserAgent("overpassmcp-test/1.0"))
	result, err := client.Run(context.Background(), testSpec(ts))
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if result.Failed() {
		t.Fatalf("Run() failed: %v", result.Err)
	}

	if !strings.Contains(gotQuery, `node[amenity="cafe"](48.1,11.5,48.2,11.6);`) {
		t.Errorf("query not transmitted as the data parameter: %q", gotQuery)
	}
	if gotAgent != "overpassmcp-test/1.0" {
		t.Errorf("User-Agent = %q, want overpassmcp-test/1.0", gotAgent)
	}
}

func TestRunRespectsContextCancellation(t *testing.T) {
	ts := fakeOverpass(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})

	client := newTestClient(ts)
	spec := testSpec(ts)
	spec.RetryDelay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	result, err := client.Run(ctx, spec)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !result.Failed() {
		t.Fatal("Run() should fail when the context expires mid-retry")
	}
}
