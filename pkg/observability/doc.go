/*
Package observability exposes the state of a running graph.

A Source produces Snapshots: the status line of every relay plus the liveness of
every model. Collector publishes snapshots as Prometheus metrics and Printer
renders them as the status table shown on the first interrupt.
*/
package observability
