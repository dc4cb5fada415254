// Package log provides the global structured logger used across cephadmd: a
// zerolog instance configured once via Init, plus WithComponent/WithCluster/
// WithDaemon helpers for attaching the fields every collaborator and the agent's
// workers tag their lines with.
package log
