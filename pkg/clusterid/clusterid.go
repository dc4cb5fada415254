// Package clusterid generates and validates the UUID that namespaces every
// on-disk path, systemd unit, container name, and cgroup slice for one cluster
// (spec.md §3 "Cluster identifier").
package clusterid

import "github.com/google/uuid"

// New allocates a fresh, random cluster id.
func New() string {
	return uuid.New().String()
}

// Valid reports whether s parses as a UUID in any of the canonical forms.
func Valid(s string) bool {
	_, err := uuid.Parse(s)
	return err == nil
}

// Normalize parses and re-renders s in canonical lower-case hyphenated form, or
// returns an error if s isn't a UUID.
func Normalize(s string) (string, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
