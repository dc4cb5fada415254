package lock

import (
	"testing"
	"time"
)

func TestReentrantAcquireRelease(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "11111111-1111-1111-1111-111111111111")

	if err := l.Acquire(0); err != nil {
		t.Fatalf("first acquire: %v", err)
	}
	if err := l.Acquire(0); err != nil {
		t.Fatalf("nested acquire: %v", err)
	}
	if !l.Held() {
		t.Fatal("expected lock to be held after nested acquire")
	}

	if err := l.Release(); err != nil {
		t.Fatalf("first release: %v", err)
	}
	if !l.Held() {
		t.Fatal("expected lock still held after one release of two acquires")
	}

	if err := l.Release(); err != nil {
		t.Fatalf("second release: %v", err)
	}
	if l.Held() {
		t.Fatal("expected lock released at depth zero")
	}
}

func TestReleaseIdempotent(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "22222222-2222-2222-2222-222222222222")
	if err := l.Release(); err != nil {
		t.Fatalf("release on unheld lock: %v", err)
	}
	if err := l.Release(); err != nil {
		t.Fatalf("second release on unheld lock: %v", err)
	}
}

func TestAcquireTimeoutWhenHeldByOther(t *testing.T) {
	dir := t.TempDir()
	clusterID := "33333333-3333-3333-3333-333333333333"

	holder := New(dir, clusterID)
	if err := holder.Acquire(0); err != nil {
		t.Fatalf("holder acquire: %v", err)
	}
	defer holder.Release()

	waiter := New(dir, clusterID)
	err := waiter.Acquire(0)
	if err == nil {
		t.Fatal("expected LockTimeout when lock already held elsewhere")
	}
}

func TestAcquireZeroTimeoutSingleTry(t *testing.T) {
	dir := t.TempDir()
	l := New(dir, "44444444-4444-4444-4444-444444444444")
	start := time.Now()
	if err := l.Acquire(0); err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("expected fast single-try acquire, took %s", elapsed)
	}
	_ = l.Release()
}
