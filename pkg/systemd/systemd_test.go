package systemd

import "testing"

func TestRenderDaemonUnitForkingVsSimple(t *testing.T) {
	simple, err := RenderDaemonUnit(UnitParams{ClusterID: "abcd", Kind: "mon", ID: "a", DataDir: "/var/lib/cephadmd/abcd/mon.a"})
	if err != nil {
		t.Fatal(err)
	}
	if contains(simple, "Type=forking") {
		t.Error("expected Type=simple by default")
	}

	forking, err := RenderDaemonUnit(UnitParams{ClusterID: "abcd", Kind: "mon", ID: "a", DataDir: "/x", Forking: true})
	if err != nil {
		t.Fatal(err)
	}
	if !contains(forking, "Type=forking") || !contains(forking, "PIDFile=/x/unit.pid") {
		t.Errorf("forking unit missing directives: %s", forking)
	}
}

func TestRenderDaemonUnitDockerAfter(t *testing.T) {
	out, err := RenderDaemonUnit(UnitParams{ClusterID: "c", Kind: "osd", ID: "0", DataDir: "/d", DockerFamily: true})
	if err != nil {
		t.Fatal(err)
	}
	if !contains(out, "After=network-online.target docker.service") {
		t.Errorf("missing docker After=: %s", out)
	}
}

func TestUnitNameFormat(t *testing.T) {
	if got := UnitName("abcd", "mon", "a"); got != "daemon-abcd@mon.a.service" {
		t.Fatalf("got %q", got)
	}
}

func TestCgroupSlicePathEscapesSvcSliceDash(t *testing.T) {
	got := cgroupSlicePath("abcd", "daemon-abcd@mon.a.service")
	want := `/sys/fs/cgroup/system.slice/system-svc\x2dabcd.slice/daemon-abcd@mon.a.service`
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestCleanupFailedCgroupToleratesMissingPath(t *testing.T) {
	c := NewController()
	if err := c.CleanupFailedCgroup("no-such-cluster", "no-such-unit.service"); err != nil {
		t.Fatalf("expected no error for an already-absent cgroup, got %v", err)
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
