// Package app composes the ledger client, feed cache and social service from
// configuration.
//
// Both binaries build on it: cmd/feedd serves the HTTP API over the composed
// service and cmd/feedctl runs one-shot queries against it.
package app
