// Package main provides the entry point for rediskv-server.
//
// The server is a TCP key-value store speaking a subset of the Redis
// serialization protocol:
//
//   - PING, ECHO for connectivity checks
//   - SET (with PX/EX expiry), GET, KEYS for the keyspace
//   - CONFIG GET for the snapshot location
//
// Usage:
//
//	rediskv-server [flags]
//	rediskv-server --config /path/to/config.yaml
//	rediskv-server --dir /data --dbfilename dump.rdb
//
// On startup the server loads the RDB snapshot named by the storage
// configuration, then serves each client connection on its own
// goroutine. An optional Prometheus endpoint exposes runtime metrics.
package main
