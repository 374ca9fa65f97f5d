// Package main provides the entry point for rediskv-cli.
//
// The CLI tool sends single commands to a rediskv server:
//
//   - ping, echo for connectivity checks
//   - get, set (with --px/--ex expiry), keys for the keyspace
//   - config get for the server's snapshot location
//
// Usage:
//
//	rediskv-cli [command] [flags]
//	rediskv-cli --server localhost:6379 set greeting hello
//	rediskv-cli get greeting
package main
