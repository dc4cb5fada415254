package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/cephadmd/cephadmd/pkg/config"
	"github.com/cephadmd/cephadmd/pkg/errs"
	"github.com/cephadmd/cephadmd/pkg/registry"
	"github.com/cephadmd/cephadmd/pkg/runtime"
	"github.com/cephadmd/cephadmd/pkg/types"
)

func testEngine(t *testing.T) (*Engine, string) {
	t.Helper()
	root := t.TempDir()
	host := config.DefaultHostConfig()
	host.DataDir = filepath.Join(root, "data")
	host.UnitDir = filepath.Join(root, "units")
	e := New(host, runtime.New("podman"), zerolog.Nop())
	return e, root
}

func TestRemoveDaemonDangerousWithoutForceFails(t *testing.T) {
	e, _ := testEngine(t)
	err := e.RemoveDaemon(context.Background(), "abcd", types.Identity{Kind: types.KindMon, ID: "a"}, RemoveOptions{Force: false})
	var dwf *errs.DangerousWithoutForce
	if err == nil {
		t.Fatal("expected error")
	}
	if !asDangerous(err, &dwf) {
		t.Fatalf("expected DangerousWithoutForce, got %v", err)
	}
}

func asDangerous(err error, target **errs.DangerousWithoutForce) bool {
	e, ok := err.(*errs.DangerousWithoutForce)
	if ok {
		*target = e
	}
	return ok
}

func TestAdminKeyringPresentDetectsStanza(t *testing.T) {
	e, _ := testEngine(t)
	monDir := filepath.Join(e.Host.DataDir, "abcd", "mon.a")
	if err := os.MkdirAll(monDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(monDir, "keyring"), []byte("[mon.]\nkey = abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	present, err := e.adminKeyringPresent("abcd")
	if err != nil {
		t.Fatal(err)
	}
	if present {
		t.Fatal("expected no admin keyring yet")
	}

	if err := os.WriteFile(filepath.Join(monDir, "keyring"), []byte("[client.admin]\nkey = abc\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	present, err = e.adminKeyringPresent("abcd")
	if err != nil {
		t.Fatal(err)
	}
	if !present {
		t.Fatal("expected admin keyring to be detected")
	}
}

func TestResolveMountsMapsDataSourceToDaemonDirAndKeepsOtherSourcesVerbatim(t *testing.T) {
	d, err := registry.Lookup(types.KindMon)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &types.Config{}
	mounts := resolveMounts(d, cfg, "/var/lib/cephadmd/abcd/mon.a")
	if len(mounts) != 1 {
		t.Fatalf("expected 1 mount, got %d", len(mounts))
	}
	if mounts[0].Source != "/var/lib/cephadmd/abcd/mon.a" || mounts[0].Destination != "/var/lib/ceph/mon" {
		t.Fatalf("got %+v", mounts[0])
	}

	iscsi, err := registry.Lookup(types.KindISCSI)
	if err != nil {
		t.Fatal(err)
	}
	iscsiMounts := resolveMounts(iscsi, cfg, "/var/lib/cephadmd/abcd/iscsi.a")
	if len(iscsiMounts) != 1 || iscsiMounts[0].Source != "configfs" || iscsiMounts[0].Destination != "/sys/kernel/config" {
		t.Fatalf("got %+v", iscsiMounts)
	}
}

func TestResolveMountsIncludesExtraBinds(t *testing.T) {
	d, err := registry.Lookup(types.KindMgr)
	if err != nil {
		t.Fatal(err)
	}
	cfg := &types.Config{ExtraBinds: []types.Bind{{Source: "/host/path", Target: "/container/path", ReadOnly: true}}}
	mounts := resolveMounts(d, cfg, "/var/lib/cephadmd/abcd/mgr.a")
	if len(mounts) != 1 || mounts[0].Source != "/host/path" || mounts[0].Options[0] != "ro" {
		t.Fatalf("got %+v", mounts)
	}
}

func TestWrapKindSpecificAddsMkfsPreambleOnlyOnFirstDeploy(t *testing.T) {
	e, _ := testEngine(t)
	d, err := registry.Lookup(types.KindMon)
	if err != nil {
		t.Fatal(err)
	}
	ident := types.Identity{Kind: types.KindMon, ID: "a"}
	vecs := types.RunVectors{Run: []string{"podman", "run", "image"}}

	first, err := e.wrapKindSpecific(d, ident, "/data/abcd/mon.a", "image", vecs, true)
	if err != nil {
		t.Fatal(err)
	}
	if !contains(shellJoin(first.Run), "--mkfs") {
		t.Fatalf("expected --mkfs preamble on first deploy: %v", first.Run)
	}

	again, err := e.wrapKindSpecific(d, ident, "/data/abcd/mon.a", "image", vecs, false)
	if err != nil {
		t.Fatal(err)
	}
	if contains(shellJoin(again.Run), "--mkfs") {
		t.Fatalf("did not expect --mkfs preamble on redeploy: %v", again.Run)
	}
}

func TestHostCephConfReferencesClusterRequiresExactFsidMatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ceph.conf")
	content := "# cluster abcd is mentioned here only in a comment\n[global]\nfsid = abcd\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	ok, err := hostCephConfReferencesClusterAt(path, "abcd")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected exact fsid match to be detected")
	}

	ok, err = hostCephConfReferencesClusterAt(path, "abcdxyz")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("did not expect a substring match to count as a reference")
	}
}

func TestRemoveClusterKeepLogsPreservesLogDir(t *testing.T) {
	e, _ := testEngine(t)
	e.Host.LogDir = filepath.Join(e.Host.DataDir, "..", "logs")
	logDir := filepath.Join(e.Host.LogDir, "abcd")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		t.Fatal(err)
	}

	if err := e.RemoveCluster(context.Background(), "abcd", nil, RemoveClusterOptions{Force: true, KeepLogs: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(logDir); err != nil {
		t.Fatalf("expected log dir to survive with KeepLogs set: %v", err)
	}
}

func TestShellJoinShebangAndFallbackChain(t *testing.T) {
	out := shellJoin([]string{"docker", "stop", "svc-a-mon-a", "||", "docker", "stop", "svc-a-mon.a", "||", "true"})
	if !contains(out, "#!/bin/sh") {
		t.Fatalf("missing shebang: %s", out)
	}
	if !contains(out, "|| docker") {
		t.Fatalf("missing fallback chain: %s", out)
	}
}

func TestShellQuoteEscapesSingleQuotes(t *testing.T) {
	got := shellQuote("it's a test")
	if got != `'it'\''s a test'` {
		t.Fatalf("got %q", got)
	}
}

func contains(s, sub string) bool {
	return len(sub) > 0 && indexOf(s, sub) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
