// Package procexec runs external processes with an explicit timeout and
// captured stdout/stderr, and classifies a handful of known-transient
// container-runtime stderr patterns for retry (spec.md §4.10, §7).
package procexec

import (
	"bytes"
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/cephadmd/cephadmd/pkg/errs"
	"github.com/cephadmd/cephadmd/pkg/metrics"
)

// Result captures one process invocation's outcome.
type Result struct {
	Stdout string
	Stderr string
	Code   int
}

// Run executes name with args, capturing combined stdout/stderr separately and
// enforcing timeout. On expiry it returns (stdout, stderr, 124) wrapped in
// *errs.ProcessTimeout, matching spec.md §7's cancellation contract. A non-zero,
// non-timeout exit is wrapped in *errs.ProcessFailed.
func Run(ctx context.Context, timeout time.Duration, env []string, name string, args ...string) (Result, error) {
	timer := metrics.NewTimer()
	defer timer.ObserveDurationVec(metrics.ExecDuration, name)

	cctx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		cctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(cctx, name, args...)
	if len(env) > 0 {
		cmd.Env = append(cmd.Environ(), env...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	full := strings.Join(append([]string{name}, args...), " ")

	if cctx.Err() == context.DeadlineExceeded {
		res.Code = 124
		return res, &errs.ProcessTimeout{Cmd: full, Secs: timeout.Seconds()}
	}

	if err == nil {
		res.Code = 0
		return res, nil
	}

	if exitErr, ok := err.(*exec.ExitError); ok {
		res.Code = exitErr.ExitCode()
	} else {
		res.Code = -1
	}
	return res, &errs.ProcessFailed{Cmd: full, Stdout: res.Stdout, Stderr: res.Stderr, Code: res.Code}
}

// transientPatterns names the three documented classes of retryable
// container-runtime stderr (spec.md §7, §9): a layer-creation race, a TLS
// handshake timeout, and a digest mismatch. Everything else fails fast.
var transientPatterns = []string{
	"layer already exists",
	"handshake timeout",
	"digest mismatch",
}

// IsTransient reports whether stderr matches one of the known-transient
// container-runtime error classes worth a small backoff-and-retry.
func IsTransient(stderr string) bool {
	lower := strings.ToLower(stderr)
	for _, pat := range transientPatterns {
		if strings.Contains(lower, pat) {
			return true
		}
	}
	return false
}

// RunWithRetry retries Run up to maxAttempts times, backing off linearly,
// but only when the failure's stderr matches IsTransient; any other failure
// surfaces immediately.
func RunWithRetry(ctx context.Context, timeout time.Duration, env []string, maxAttempts int, backoff time.Duration, name string, args ...string) (Result, error) {
	var lastRes Result
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		res, err := Run(ctx, timeout, env, name, args...)
		if err == nil {
			return res, nil
		}
		lastRes, lastErr = res, err
		if !IsTransient(res.Stderr) {
			return res, err
		}
		select {
		case <-ctx.Done():
			return lastRes, ctx.Err()
		case <-time.After(backoff * time.Duration(attempt+1)):
		}
	}
	return lastRes, lastErr
}
