/*
Package types defines the data model shared by every other package: daemon kinds,
descriptors, identities, structured per-daemon config, and the states the
deploy/adopt/remove engine and the agent reason about.

# Core types

  - Kind: the closed set of daemon kinds (mon, mgr, osd, rgw, agent, ...)
  - Identity: the (Kind, instance-id) pair that names one daemon within a cluster
  - Descriptor: the per-kind metadata the registry answers with
  - Config: the caller-supplied structured config blob for one daemon instance
  - DaemonState: the observed lifecycle state (absent, deployed-stopped/running/failed, removed-backup)
  - DaemonInfo: one row of `ls` output, and the agent's ls-gatherer cache value
  - RunVectors: the composer's run/stop/remove/exec argv output

Everything here is a plain value type; no package in this module mutates a
types.Descriptor or types.Config after construction.
*/
package types
