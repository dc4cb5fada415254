// Package metrics defines and registers this agent's Prometheus metrics:
// deploy/remove timings, gather/report cycle health, and exec'd
// collaborator durations. All metrics register at package init and are
// served from a loopback-only /metrics endpoint alongside the agentapi
// health surface.
package metrics
