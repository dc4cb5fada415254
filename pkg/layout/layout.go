// Package layout owns every on-disk filesystem state transition for one
// daemon's data dir: atomic file publication (write-temp-then-rename),
// directory creation with explicit ownership, and the well-known unit.*
// artifact set spec.md §3/§4.3 describes.
package layout

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Manager materializes and mutates daemon data dirs under one data root.
type Manager struct {
	DataRoot string
}

// New returns a layout Manager rooted at dataRoot.
func New(dataRoot string) *Manager {
	return &Manager{DataRoot: dataRoot}
}

// DaemonDir returns the data dir path for one daemon.
func (m *Manager) DaemonDir(clusterID, identName string) string {
	return filepath.Join(m.DataRoot, clusterID, identName)
}

// CrashPostedDir returns the always-present crash/posted dir for a cluster.
func (m *Manager) CrashPostedDir(clusterID string) string {
	return filepath.Join(m.DataRoot, clusterID, "crash", "posted")
}

// RemovedDir returns the backup dir for a cluster's dangerous-kind removals.
func (m *Manager) RemovedDir(clusterID string) string {
	return filepath.Join(m.DataRoot, clusterID, "removed")
}

// EnsureDir creates dir (and parents) with mode, then chowns and chmods it
// explicitly to defeat umask, matching spec.md §4.3's directory contract.
func EnsureDir(dir string, mode os.FileMode, uid, gid int) error {
	if err := os.MkdirAll(dir, mode); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}
	if uid >= 0 && gid >= 0 {
		if err := os.Chown(dir, uid, gid); err != nil {
			return fmt.Errorf("chown %s: %w", dir, err)
		}
	}
	if err := os.Chmod(dir, mode); err != nil {
		return fmt.Errorf("chmod %s: %w", dir, err)
	}
	return nil
}

// WriteFileAtomic writes data to path by first writing path+".new", fchmod'ing
// and fchown'ing it to the target mode/owner, then renaming it over path.
// Either path is left unchanged or becomes bit-identical to what was written
// to the ".new" file; the ".new" file never survives a successful call
// (spec.md §8's atomic-publication property).
func WriteFileAtomic(path string, data []byte, mode os.FileMode, uid, gid int) error {
	tmp := path + ".new"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := f.Chmod(mode); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("chmod %s: %w", tmp, err)
	}
	if uid >= 0 && gid >= 0 {
		if err := f.Chown(uid, gid); err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
			return fmt.Errorf("chown %s: %w", tmp, err)
		}
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

// UnitArtifacts are the contents of the five unit.run/stop/poststop/image/meta
// files that, with unit.created and unit.configured, are sufficient to
// (re)start a daemon without consulting the registry (spec.md GLOSSARY).
type UnitArtifacts struct {
	Run        string
	Stop       string
	Poststop   string
	Image      string
	MetaJSON   []byte
}

// WriteUnitArtifacts publishes unit.run/stop/poststop/image/meta atomically,
// and bumps unit.configured. unit.created is written only if it doesn't
// already exist, preserving the "set once, never overwritten" invariant.
func (m *Manager) WriteUnitArtifacts(daemonDir string, art UnitArtifacts, uid, gid int) error {
	if err := EnsureDir(daemonDir, 0o750, uid, gid); err != nil {
		return err
	}

	writes := []struct {
		name string
		data []byte
		mode os.FileMode
	}{
		{"unit.run", []byte(art.Run), 0o700},
		{"unit.stop", []byte(art.Stop), 0o700},
		{"unit.poststop", []byte(art.Poststop), 0o700},
		{"unit.image", []byte(art.Image), 0o600},
		{"unit.meta", art.MetaJSON, 0o600},
	}
	for _, w := range writes {
		if err := WriteFileAtomic(filepath.Join(daemonDir, w.name), w.data, w.mode, uid, gid); err != nil {
			return err
		}
	}

	createdPath := filepath.Join(daemonDir, "unit.created")
	if _, err := os.Stat(createdPath); os.IsNotExist(err) {
		if err := WriteFileAtomic(createdPath, []byte(time.Now().UTC().Format(time.RFC3339)), 0o600, uid, gid); err != nil {
			return err
		}
	}

	configuredPath := filepath.Join(daemonDir, "unit.configured")
	return WriteFileAtomic(configuredPath, []byte(time.Now().UTC().Format(time.RFC3339)), 0o600, uid, gid)
}

// HasUnitArtifacts reports whether the complete unit.* set is present and
// mutually consistent (unit.image's text appears in unit.run), per spec.md
// §4.3's all-or-nothing invariant.
func HasUnitArtifacts(daemonDir string) (bool, error) {
	names := []string{"unit.run", "unit.stop", "unit.poststop", "unit.image", "unit.meta"}
	present := 0
	for _, n := range names {
		if _, err := os.Stat(filepath.Join(daemonDir, n)); err == nil {
			present++
		}
	}
	if present == 0 {
		return false, nil
	}
	if present != len(names) {
		return false, fmt.Errorf("partial unit artifacts in %s: %d/%d present", daemonDir, present, len(names))
	}

	image, err := os.ReadFile(filepath.Join(daemonDir, "unit.image"))
	if err != nil {
		return false, err
	}
	run, err := os.ReadFile(filepath.Join(daemonDir, "unit.run"))
	if err != nil {
		return false, err
	}
	if !contains(run, image) {
		return false, fmt.Errorf("unit.image %q not referenced in unit.run", string(image))
	}
	return true, nil
}

func contains(haystack, needle []byte) bool {
	return len(needle) > 0 && indexOf(string(haystack), string(needle)) >= 0
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}

// WriteFiles materializes a daemon's config.Files map under dir, where each
// key may be an absolute path or a path relative to dir.
func WriteFiles(dir string, files map[string]string, uid, gid int) error {
	for name, content := range files {
		path := name
		if !filepath.IsAbs(name) {
			path = filepath.Join(dir, name)
		}
		if err := EnsureDir(filepath.Dir(path), 0o750, uid, gid); err != nil {
			return err
		}
		if err := WriteFileAtomic(path, []byte(content), 0o600, uid, gid); err != nil {
			return err
		}
	}
	return nil
}
