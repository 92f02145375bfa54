// Package mysql persists the transfer history. It ships a JSON-lines file
// implementation for single-node deployments and a MySQL implementation with
// embedded schema migrations.
package mysql
