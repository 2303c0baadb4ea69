// Package mysql persists reply outcomes. The SQL repository runs embedded
// migrations against MySQL; the memory repository keeps a JSON-lines file in
// the data directory for single-node deployments.
package mysql
