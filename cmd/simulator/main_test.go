package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func TestRunAcceleratedSummary(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), []string{"-ticks", "500", "-accelerated"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run: %v (stderr=%s)", err, stderr.String())
	}
	out := stdout.String()
	if !strings.HasPrefix(out, "ticks=500 state=active") {
		t.Fatalf("unexpected summary %q", out)
	}
	// 500 steps of 1e-4 decay.
	if !strings.Contains(out, "decay=0.9500") {
		t.Fatalf("summary missing decay: %q", out)
	}
	if !strings.Contains(out, "assessment=idle") {
		t.Fatalf("summary missing assessment phase: %q", out)
	}
}

func TestRunCollidesWithWideThreshold(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sim.yaml")
	if err := os.WriteFile(path, []byte("simulation:\n  collisionThreshold: 100\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"-config", path, "-ticks", "10", "-accelerated"}, &stdout, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "state=collided") || !strings.Contains(out, "collisions=1") {
		t.Fatalf("expected a single collision, got %q", out)
	}
	// Motion freezes after the first tick, so decay stops after one step.
	if !strings.Contains(out, "decay=0.9999") {
		t.Fatalf("decay should freeze on collision, got %q", out)
	}
}

func TestRunRequestsAssessments(t *testing.T) {
	var calls atomic.Int32
	classifier := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = io.WriteString(w, `{"collision_risk":"Yes"}`)
	}))
	defer classifier.Close()
	t.Setenv("ORBITSIM_RISK_ENDPOINT", classifier.URL)

	var stdout bytes.Buffer
	args := []string{"-ticks", "20", "-assess-every", "10", "-accelerated"}
	if err := run(context.Background(), args, &stdout, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	if calls.Load() == 0 {
		t.Fatalf("classifier was never called")
	}
	if !strings.Contains(stdout.String(), "assessment=high_risk") {
		t.Fatalf("expected final high-risk assessment, got %q", stdout.String())
	}
}

func TestRunPrintConfig(t *testing.T) {
	var stdout bytes.Buffer
	if err := run(context.Background(), []string{"-print-config"}, &stdout, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"simulation:", "collisionThreshold: 0.1", "endpoint: http://127.0.0.1:8000/predict"} {
		if !strings.Contains(stdout.String(), want) {
			t.Fatalf("config dump missing %q:\n%s", want, stdout.String())
		}
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	var stdout bytes.Buffer
	if err := run(ctx, nil, &stdout, io.Discard); err != nil {
		t.Fatalf("run: %v", err)
	}
	if !strings.HasPrefix(stdout.String(), "ticks=") {
		t.Fatalf("expected summary after cancellation, got %q", stdout.String())
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	if err := run(context.Background(), []string{"-nope"}, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected flag parse error")
	}
	if err := run(context.Background(), []string{"-config", "/does/not/exist.yaml"}, io.Discard, io.Discard); err == nil {
		t.Fatalf("expected config error")
	}
}
