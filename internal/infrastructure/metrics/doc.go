// Package metrics exposes tracker state and HTTP traffic to Prometheus.
package metrics
