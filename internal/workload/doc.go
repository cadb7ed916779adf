// Package workload provides the client side of a scenario run:
// canary keys for the data consistency check and optional traffic
// generation against the cluster data plane.
//
// Canary keys are written before any chaos is injected and read back
// during validation; traffic runs on an executor pool and records
// per-request latency.
package workload
