// Package http serves the live state of a graph: a JSON snapshot, the plain
// status table, a server-sent event stream of snapshots and Prometheus metrics.
package http
