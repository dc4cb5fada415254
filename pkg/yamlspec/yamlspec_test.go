package yamlspec

import "testing"

func TestParseMultiDocFlat(t *testing.T) {
	doc := `
service_type: mon
service_id: a
---
service_type: mgr
service_id: b
placement: label:mgr
`
	entries, err := Parse([]byte(doc))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries", len(entries))
	}
	if entries[0].ServiceType != "mon" || entries[0].ServiceID != "a" {
		t.Fatalf("entry 0 = %+v", entries[0])
	}
	if entries[1].Extra["placement"] != "label:mgr" {
		t.Fatalf("entry 1 extra = %+v", entries[1].Extra)
	}
}

func TestParseRejectsNestedMapping(t *testing.T) {
	doc := `
service_type: mon
spec:
  crush_location:
    host: foo
`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected rejection of nested mapping")
	}
}

func TestParseRejectsMissingServiceType(t *testing.T) {
	doc := `service_id: a`
	if _, err := Parse([]byte(doc)); err == nil {
		t.Fatal("expected rejection of missing service_type")
	}
}
