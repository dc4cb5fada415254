package registry

import (
	"testing"

	"github.com/cephadmd/cephadmd/pkg/errs"
	"github.com/cephadmd/cephadmd/pkg/types"
)

func TestLookupUnknownKind(t *testing.T) {
	_, err := Lookup("bogus")
	if err == nil {
		t.Fatal("expected error for unknown kind")
	}
	var uk *errs.UnknownKind
	if !asUnknownKind(err, &uk) {
		t.Fatalf("expected *errs.UnknownKind, got %T", err)
	}
}

func asUnknownKind(err error, target **errs.UnknownKind) bool {
	uk, ok := err.(*errs.UnknownKind)
	if !ok {
		return false
	}
	*target = uk
	return true
}

func TestValidateMissingFiles(t *testing.T) {
	err := Validate(types.KindMon, &types.Config{Files: map[string]string{"config": "x"}})
	if err == nil {
		t.Fatal("expected InvalidConfig for missing keyring")
	}
	ic, ok := err.(*errs.InvalidConfig)
	if !ok {
		t.Fatalf("expected *errs.InvalidConfig, got %T", err)
	}
	if len(ic.Which) != 1 || ic.Which[0] != "keyring" {
		t.Fatalf("unexpected missing list: %v", ic.Which)
	}
}

func TestValidateAllRequiredPresent(t *testing.T) {
	err := Validate(types.KindMon, &types.Config{
		Files: map[string]string{"config": "x", "keyring": "y"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateMonitoringRequiresConfigJSONArgs(t *testing.T) {
	err := Validate(types.KindPrometheus, &types.Config{
		Files: map[string]string{"prometheus.yml": "x"},
	})
	if err == nil {
		t.Fatal("expected InvalidConfig for missing peers arg")
	}
	ic := err.(*errs.InvalidConfig)
	if len(ic.Which) != 1 || ic.Which[0] != "config-json:peers" {
		t.Fatalf("unexpected missing list: %v", ic.Which)
	}
}

func TestAgentRunsViaUnitOnly(t *testing.T) {
	d, err := Lookup(types.KindAgent)
	if err != nil {
		t.Fatal(err)
	}
	if !d.RunsViaUnitOnly {
		t.Fatal("expected agent kind to be RunsViaUnitOnly")
	}
}

func TestKindsSorted(t *testing.T) {
	ks := Kinds()
	for i := 1; i < len(ks); i++ {
		if ks[i-1] > ks[i] {
			t.Fatalf("kinds not sorted: %v", ks)
		}
	}
}
