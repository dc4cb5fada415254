package agentstore

import (
	"testing"

	"github.com/cephadmd/cephadmd/pkg/types"
)

func TestNextAckIncrementsAndPersists(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	a1, err := s.NextAck()
	if err != nil {
		t.Fatal(err)
	}
	a2, err := s.NextAck()
	if err != nil {
		t.Fatal(err)
	}
	if a2 != a1+1 {
		t.Fatalf("expected monotonic increment, got %d then %d", a1, a2)
	}
}

func TestPutGetDaemonsRoundTrip(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	want := []types.DaemonInfo{
		{Identity: types.Identity{Kind: types.KindMon, ID: "a"}, ClusterID: "abcd", State: types.StateDeployedRunning},
	}
	if err := s.PutDaemons("abcd", want); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDaemons("abcd")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Identity.ID != "a" {
		t.Fatalf("got %+v", got)
	}
}

func TestGetDaemonsEmptyClusterReturnsNil(t *testing.T) {
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	got, err := s.GetDaemons("never-seen")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("expected nil, got %+v", got)
	}
}
