// Package metrics exposes dispatcher activity as Prometheus collectors.
//
// A nil *Collector is valid and records nothing, so components can take one
// unconditionally.
package metrics
