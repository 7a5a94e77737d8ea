// Package metrics wires KineIntra components to Prometheus.
//
// SimulatorMetrics observes the simulator server; ClientCollector exports a
// client's link counters at scrape time.
package metrics
