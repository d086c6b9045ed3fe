package nvcf

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"
)

// newTestClient wires a client against a single httptest server acting
// as both the function endpoint and the NVCF API.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient("test-token",
		WithBaseURL(srv.URL),
		WithFunctionURL(srv.URL+"/invoke"),
		WithPollSettings(time.Millisecond, 10, 8*time.Millisecond),
	)
}

func TestCall_PendingThenSuccess(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("unexpected Authorization header: %q", got)
		}
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"reqId":"req-1"}`))
	})
	mux.HandleFunc("GET /exec/status/req-1", func(w http.ResponseWriter, r *http.Request) {
		if polls.Add(1) <= 3 {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"reqId":"req-1"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	c := newTestClient(t, mux)
	result, err := c.Call(context.Background(), "vis_control", []Param{{Key: "seed", Value: "1"}}, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
	want := map[string]any{"ok": true}
	if result.Output == nil || !reflect.DeepEqual(result.Output.Document, want) {
		t.Errorf("expected output %v, got %+v", want, result.Output)
	}
	if got := polls.Load(); got != 4 {
		t.Errorf("expected 4 status polls, got %d", got)
	}
}

func TestCall_PollTimeout(t *testing.T) {
	var polls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"reqId":"req-2"}`))
	})
	mux.HandleFunc("GET /exec/status/req-2", func(w http.ResponseWriter, r *http.Request) {
		polls.Add(1)
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"reqId":"req-2"}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := NewClient("test-token",
		WithBaseURL(srv.URL),
		WithFunctionURL(srv.URL+"/invoke"),
		WithPollSettings(time.Millisecond, 3, 4*time.Millisecond),
	)

	_, err := c.Call(context.Background(), "vis_control", nil, nil)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("expected ErrPollTimeout, got %v", err)
	}
	if got := polls.Load(); got != 3 {
		t.Errorf("expected exactly maxAttempts=3 polls, got %d", got)
	}

	// No further polling happens after the budget is exhausted.
	time.Sleep(20 * time.Millisecond)
	if got := polls.Load(); got != 3 {
		t.Errorf("polling continued after timeout: %d polls", got)
	}
}

func TestCall_BackoffSchedule(t *testing.T) {
	var stamps []time.Time
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		w.Write([]byte(`{"reqId":"req-3"}`))
	})
	mux.HandleFunc("GET /exec/status/req-3", func(w http.ResponseWriter, r *http.Request) {
		stamps = append(stamps, time.Now())
		if len(stamps) < 4 {
			w.WriteHeader(http.StatusAccepted)
			w.Write([]byte(`{"reqId":"req-3"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	initial := 20 * time.Millisecond
	maxBackoff := 50 * time.Millisecond
	c := NewClient("test-token",
		WithBaseURL(srv.URL),
		WithFunctionURL(srv.URL+"/invoke"),
		WithPollSettings(initial, 10, maxBackoff),
	)

	if _, err := c.Call(context.Background(), "vis_control", nil, nil); err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if len(stamps) != 4 {
		t.Fatalf("expected 4 polls, got %d", len(stamps))
	}

	// Delay doubles after each pending poll, capped at maxBackoff:
	// 40ms, 50ms, 50ms. Timers only guarantee a lower bound.
	wantMin := []time.Duration{2 * initial, maxBackoff, maxBackoff}
	for i, want := range wantMin {
		got := stamps[i+1].Sub(stamps[i])
		if got < want {
			t.Errorf("gap before poll %d: expected at least %v, got %v", i+2, want, got)
		}
	}
}

func TestCall_JobFailureIsData(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	})

	c := newTestClient(t, mux)
	result, err := c.Call(context.Background(), "vis_control", nil, nil)
	if err != nil {
		t.Fatalf("job failure must not be an error: %v", err)
	}
	if result.StatusCode != http.StatusBadGateway {
		t.Errorf("expected status 502, got %d", result.StatusCode)
	}
	if result.ResponseText != "upstream exploded" {
		t.Errorf("expected raw body text, got %q", result.ResponseText)
	}
	if result.Output != nil {
		t.Error("output must be nil on job failure")
	}
}

func TestCall_ImmediateSuccess(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"done":true}`))
	})

	c := newTestClient(t, mux)
	result, err := c.Call(context.Background(), "vis_control", nil, nil)
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
}

func TestCall_ReadTimeoutOnSuccessBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		// Stall the body until the caller's deadline cancels the read.
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})

	c := newTestClient(t, mux)
	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	result, err := c.Call(ctx, "vis_control", nil, nil)
	if err != nil {
		t.Fatalf("read timeout of a successful body must not be an error: %v", err)
	}
	if result.ResponseText != "Connection Timeout" {
		t.Errorf("expected ResponseText %q, got %q", "Connection Timeout", result.ResponseText)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
	if result.Output != nil {
		t.Error("output must be nil when the body read times out")
	}
}

func TestCall_UnsupportedTerminalFormat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Write([]byte("plain text result"))
	})

	c := newTestClient(t, mux)
	_, err := c.Call(context.Background(), "vis_control", nil, nil)
	var unsupported *UnsupportedFormatError
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected *UnsupportedFormatError, got %v", err)
	}
}

func TestCall_UploadRejectionTolerated(t *testing.T) {
	path := writeTempFile(t, "frame.bin", []byte("frame data"))

	mux := http.NewServeMux()
	var sawAssetHeader atomic.Bool
	mux.HandleFunc("POST /assets", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"assetId":"asset-x","uploadUrl":"` + "http://" + r.Host + `/upload"}`))
	})
	mux.HandleFunc("PUT /upload", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		w.Write([]byte("denied"))
	})
	mux.HandleFunc("POST /invoke", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("NVCF-INPUT-ASSET-REFERENCES") != "" {
			sawAssetHeader.Store(true)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	})

	c := newTestClient(t, mux)
	result, err := c.Call(context.Background(), "vis_control", nil, []string{path})
	if err != nil {
		t.Fatalf("upload rejection must not abort the invocation: %v", err)
	}
	if result.StatusCode != http.StatusOK {
		t.Errorf("expected status 200, got %d", result.StatusCode)
	}
	if sawAssetHeader.Load() {
		t.Error("request must not reference assets that failed to upload")
	}
}
