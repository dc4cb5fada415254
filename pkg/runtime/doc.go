// Package runtime identifies the configured container runtime CLI (docker
// family or podman) and its version, which the composer (pkg/composer) and
// the systemd collaborator (pkg/systemd) use to decide between a few
// runtime-specific command-line flags and unit directives.
package runtime
