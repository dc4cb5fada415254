package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cephadmd/cephadmd/pkg/config"
	"github.com/cephadmd/cephadmd/pkg/engine"
	"github.com/cephadmd/cephadmd/pkg/layout"
	"github.com/cephadmd/cephadmd/pkg/registry"
	"github.com/cephadmd/cephadmd/pkg/types"
)

// knownKinds is the set of directory-name prefixes discoverDaemons treats as
// daemon instance dirs, as opposed to the cluster's crash/ and removed/
// bookkeeping dirs (pkg/layout.CrashPostedDir, RemovedDir).
var knownKinds = func() map[string]bool {
	m := make(map[string]bool)
	for _, k := range registry.Kinds() {
		m[string(k)] = true
	}
	return m
}()

// discoverDaemons scans host.DataDir/clusterID for daemon instance dirs
// carrying a complete unit.* artifact set, parses each back into an
// Identity, and asks eng for its current state. Used by `ls` and
// `rm-cluster` to enumerate a cluster's daemons without requiring the agent
// to be running.
func discoverDaemons(ctx context.Context, host config.HostConfig, eng *engine.Engine, clusterID string) ([]types.DaemonInfo, error) {
	clusterDir := filepath.Join(host.DataDir, clusterID)
	entries, err := os.ReadDir(clusterDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var infos []types.DaemonInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		ident, ok := parseIdentDir(entry.Name())
		if !ok {
			continue
		}

		daemonDir := filepath.Join(clusterDir, entry.Name())
		has, err := layout.HasUnitArtifacts(daemonDir)
		if err != nil || !has {
			continue
		}

		image, _ := os.ReadFile(filepath.Join(daemonDir, "unit.image"))
		created := fileModTime(filepath.Join(daemonDir, "unit.created"))
		configured := fileModTime(filepath.Join(daemonDir, "unit.configured"))

		infos = append(infos, types.DaemonInfo{
			Identity:   ident,
			ClusterID:  clusterID,
			State:      eng.State(ctx, clusterID, ident),
			Image:      strings.TrimSpace(string(image)),
			Created:    created,
			Configured: configured,
		})
	}
	return infos, nil
}

// parseIdentDir parses a "<kind>.<id>" data dir name back into an Identity,
// the inverse of types.Identity.String.
func parseIdentDir(name string) (types.Identity, bool) {
	kind, id, ok := strings.Cut(name, ".")
	if !ok || !knownKinds[kind] {
		return types.Identity{}, false
	}
	return types.Identity{Kind: types.Kind(kind), ID: id}, true
}

func fileModTime(path string) time.Time {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}
	}
	return info.ModTime()
}
