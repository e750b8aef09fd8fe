// Package exporter moves entity state changes off the event loop and
// into everything that persists or mirrors them: the restore store, the
// state history, MQTT, InfluxDB, Prometheus and WebSocket clients.
//
// The state machine notifies listeners synchronously on the loop, so the
// Exporter only copies each event into a bounded queue. A single worker
// goroutine drains the queue and hands every event to each Sink in turn.
// A slow or failing sink delays the others but never the loop.
//
// Usage:
//
//	exp := exporter.New(1024, logger,
//	    exporter.NewRestoreSink(restore),
//	    exporter.NewHistorySink(history),
//	)
//	unlisten := exp.Attach(states)
//	defer unlisten()
//	go exp.Run(ctx)
package exporter
