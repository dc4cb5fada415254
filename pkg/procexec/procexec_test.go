package procexec

import (
	"context"
	"testing"
	"time"
)

func TestRunCapturesOutput(t *testing.T) {
	res, err := Run(context.Background(), time.Second, nil, "sh", "-c", "echo out; echo err 1>&2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Stdout != "out\n" {
		t.Fatalf("stdout = %q", res.Stdout)
	}
	if res.Stderr != "err\n" {
		t.Fatalf("stderr = %q", res.Stderr)
	}
}

func TestRunTimeout(t *testing.T) {
	res, err := Run(context.Background(), 50*time.Millisecond, nil, "sleep", "5")
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if res.Code != 124 {
		t.Fatalf("expected code 124, got %d", res.Code)
	}
}

func TestRunFailureExitCode(t *testing.T) {
	res, err := Run(context.Background(), time.Second, nil, "sh", "-c", "exit 3")
	if err == nil {
		t.Fatal("expected process-failed error")
	}
	if res.Code != 3 {
		t.Fatalf("expected code 3, got %d", res.Code)
	}
}

func TestIsTransient(t *testing.T) {
	cases := map[string]bool{
		"Error: layer already exists":            true,
		"net/http: TLS handshake timeout":        true,
		"manifest digest mismatch detected":      true,
		"permission denied":                      false,
		"no such file or directory":              false,
	}
	for stderr, want := range cases {
		if got := IsTransient(stderr); got != want {
			t.Errorf("IsTransient(%q) = %v, want %v", stderr, got, want)
		}
	}
}
