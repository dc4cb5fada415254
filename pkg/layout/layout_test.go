package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestWriteFileAtomicLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.run")
	if err := WriteFileAtomic(path, []byte("#!/bin/sh\necho hi\n"), 0o700, -1, -1); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path + ".new"); !os.IsNotExist(err) {
		t.Fatalf("expected %s.new to be gone, stat err = %v", path, err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "#!/bin/sh\necho hi\n" {
		t.Fatalf("unexpected contents %q", got)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o700 {
		t.Fatalf("mode = %v", info.Mode().Perm())
	}
}

func TestWriteFileAtomicOverwritesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "unit.meta")
	if err := WriteFileAtomic(path, []byte("v1"), 0o600, -1, -1); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("v2"), 0o600, -1, -1); err != nil {
		t.Fatal(err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "v2" {
		t.Fatalf("got %q, want v2", got)
	}
}

func TestWriteUnitArtifactsSetsCreatedOnceConfiguredEveryTime(t *testing.T) {
	m := New(t.TempDir())
	daemonDir := filepath.Join(m.DataRoot, "mon.a")

	art := UnitArtifacts{
		Run:      "run v1",
		Stop:     "stop",
		Poststop: "poststop",
		Image:    "quay.io/ceph/ceph:v18",
		MetaJSON: []byte(`{"image":"quay.io/ceph/ceph:v18"}`),
	}
	if err := m.WriteUnitArtifacts(daemonDir, art, -1, -1); err != nil {
		t.Fatal(err)
	}
	created1, err := os.ReadFile(filepath.Join(daemonDir, "unit.created"))
	if err != nil {
		t.Fatal(err)
	}
	configured1, err := os.ReadFile(filepath.Join(daemonDir, "unit.configured"))
	if err != nil {
		t.Fatal(err)
	}

	art.Run = "run v2"
	if err := m.WriteUnitArtifacts(daemonDir, art, -1, -1); err != nil {
		t.Fatal(err)
	}
	created2, err := os.ReadFile(filepath.Join(daemonDir, "unit.created"))
	if err != nil {
		t.Fatal(err)
	}
	if string(created1) != string(created2) {
		t.Fatalf("unit.created changed across redeploy: %q -> %q", created1, created2)
	}

	run2, err := os.ReadFile(filepath.Join(daemonDir, "unit.run"))
	if err != nil {
		t.Fatal(err)
	}
	if string(run2) != "run v2" {
		t.Fatalf("unit.run not updated: %q", run2)
	}
	_ = configured1
}

func TestHasUnitArtifactsRejectsPartialSet(t *testing.T) {
	dir := t.TempDir()
	if err := WriteFileAtomic(filepath.Join(dir, "unit.run"), []byte("x"), 0o700, -1, -1); err != nil {
		t.Fatal(err)
	}
	ok, err := HasUnitArtifacts(dir)
	if ok || err == nil {
		t.Fatalf("expected partial-set error, got ok=%v err=%v", ok, err)
	}
}

func TestHasUnitArtifactsRejectsImageMismatch(t *testing.T) {
	dir := t.TempDir()
	m := &Manager{DataRoot: filepath.Dir(dir)}
	_ = m
	art := UnitArtifacts{
		Run:      "exec docker run other-image",
		Stop:     "stop",
		Poststop: "poststop",
		Image:    "quay.io/ceph/ceph:v18",
		MetaJSON: []byte(`{}`),
	}
	mgr := New(filepath.Dir(dir))
	if err := mgr.WriteUnitArtifacts(dir, art, -1, -1); err != nil {
		t.Fatal(err)
	}
	_, err := HasUnitArtifacts(dir)
	if err == nil {
		t.Fatal("expected mismatch error")
	}
}

func TestWriteFilesHandlesRelativeAndAbsolutePaths(t *testing.T) {
	dir := t.TempDir()
	abs := filepath.Join(t.TempDir(), "etc", "ceph.conf")
	err := WriteFiles(dir, map[string]string{
		"config":  "[global]\n",
		abs:       "[abs]\n",
	}, -1, -1)
	if err != nil {
		t.Fatal(err)
	}
	if got, _ := os.ReadFile(filepath.Join(dir, "config")); string(got) != "[global]\n" {
		t.Fatalf("relative write failed: %q", got)
	}
	if got, _ := os.ReadFile(abs); string(got) != "[abs]\n" {
		t.Fatalf("absolute write failed: %q", got)
	}
}
