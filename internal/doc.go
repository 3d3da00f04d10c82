// Package pvwatch implements a telemetry monitor for a photovoltaic system.
//
// # Architecture
//
// The service is structured into several key packages:
//   - remote: FTP change-token probe and download, behind a circuit breaker
//   - snapshot: Archived and latest local copies of the telemetry file
//   - parser: CSV snapshot to reading conversion
//   - database: Append-only time series log (SQLite or PostgreSQL)
//   - ingest: One poll tick as an explicit state transition
//   - scheduler: Sequential, cancellable poll loop
//   - history: Read-only queries over the log and the latest snapshot
//   - api: HTTP query surface
//   - grpc: gRPC health service
//   - models: Shared data structures
//
// Key Features
//
//   - Change Detection:
//     The remote file is downloaded only when its modification time moves.
//     Servers without MDTM fall back to comparing content fingerprints.
//
//   - Durable History:
//     Every retrieved revision is archived; every parsed reading is appended
//     with a strictly increasing insertion timestamp.
//
//   - Queries:
//     Latest reading, trailing-window records, summary statistics and
//     single-metric series over windows of up to two years.
//
// Example Usage
//
//	pvwatch poll --iterations 3 --interval 30s
//	pvwatch stats --window 48
//	curl localhost:8080/api/v1/series?metric=live_power&window=6
//
// For more information about specific packages, see their respective
// documentation.
package pvwatch
