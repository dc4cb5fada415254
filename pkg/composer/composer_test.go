package composer

import (
	"strings"
	"testing"

	"github.com/cephadmd/cephadmd/pkg/runtime"
	"github.com/cephadmd/cephadmd/pkg/types"
)

func TestContainerNamesDashSubstitution(t *testing.T) {
	n := ContainerNames("abcd", types.Identity{Kind: types.KindMon, ID: "a"})
	if n.Legacy != "svc-abcd-mon.a" {
		t.Fatalf("legacy = %q", n.Legacy)
	}
	if n.Canonical != "svc-abcd-mon-a" {
		t.Fatalf("canonical = %q", n.Canonical)
	}
}

func TestComposeRunIncludesMandatoryFlags(t *testing.T) {
	d := &types.Descriptor{Kind: types.KindMon, Entrypoint: "/usr/bin/ceph-mon"}
	rt := runtime.New("docker")
	vecs, err := Compose(d, Options{
		Runtime:   rt,
		Image:     "quay.io/ceph/ceph:v18",
		Ident:     types.Identity{Kind: types.KindMon, ID: "a"},
		ClusterID: "abcd",
		DataDir:   "/var/lib/cephadmd/abcd/mon.a",
		Flags:     Flags{NetHost: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	run := strings.Join(vecs.Run, " ")
	for _, want := range []string{"--rm", "--ipc=host", "--stop-signal=SIGTERM", "--net=host", "svc-abcd-mon-a"} {
		if !strings.Contains(run, want) {
			t.Errorf("run vector missing %q: %s", want, run)
		}
	}
}

func TestComposePrivilegedExcludesCapAdd(t *testing.T) {
	d := &types.Descriptor{Kind: types.KindISCSI, Entrypoint: "/usr/bin/rbd-target-api"}
	rt := runtime.New("podman")
	vecs, err := Compose(d, Options{
		Runtime:   rt,
		Image:     "img",
		Ident:     types.Identity{Kind: types.KindISCSI, ID: "a"},
		ClusterID: "c1",
		Flags:     Flags{Privileged: true, AllowPtrace: true, NetHost: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	run := strings.Join(vecs.Run, " ")
	if !strings.Contains(run, "--group-add=disk") {
		t.Error("expected --group-add=disk for privileged")
	}
	if strings.Contains(run, "SYS_PTRACE") {
		t.Error("privileged should exclude cap-add even with AllowPtrace set")
	}
}

func TestComposePtraceWithoutPrivileged(t *testing.T) {
	d := &types.Descriptor{Kind: types.KindOsd, Entrypoint: "/usr/bin/ceph-osd"}
	rt := runtime.New("podman")
	vecs, err := Compose(d, Options{
		Runtime: rt, Image: "img",
		Ident: types.Identity{Kind: types.KindOsd, ID: "a"}, ClusterID: "c1",
		Flags: Flags{AllowPtrace: true, NetHost: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	run := strings.Join(vecs.Run, " ")
	if !strings.Contains(run, "--cap-add=SYS_PTRACE") {
		t.Error("expected SYS_PTRACE cap-add")
	}
}

func TestComposeCgroupSplitAboveThreshold(t *testing.T) {
	d := &types.Descriptor{Kind: types.KindMon, Entrypoint: "/usr/bin/ceph-mon"}
	rt := runtime.Runtime{Binary: "docker", Family: runtime.FamilyDocker, Version: runtime.Version{Major: 24, Minor: 0}}
	vecs, err := Compose(d, Options{
		Runtime: rt, Image: "img", Ident: types.Identity{Kind: types.KindMon, ID: "a"},
		ClusterID: "c1", DataDir: "/data/c1/mon.a", Flags: Flags{NetHost: true},
	})
	if err != nil {
		t.Fatal(err)
	}
	run := strings.Join(vecs.Run, " ")
	if !strings.Contains(run, "--cgroups=split") {
		t.Error("expected --cgroups=split for docker >= threshold")
	}
}

func TestParseUIDGID(t *testing.T) {
	uid, gid, err := ParseUIDGID("167 167\n")
	if err != nil {
		t.Fatal(err)
	}
	if uid != 167 || gid != 167 {
		t.Fatalf("got uid=%d gid=%d", uid, gid)
	}
	if _, _, err := ParseUIDGID("garbage"); err == nil {
		t.Fatal("expected error for malformed stat output")
	}
}
