// Package resource implements the cached, reconciled view of one backend
// table.
//
// A Resource answers List and Get from its TTL cache when the entry is fresh
// and from the backend otherwise. Mutations go to the backend first; only
// when the backend accepts them is every cached list and single-record entry
// of the table brought up to date in place. Lists are re-evaluated against
// their own query, so a record that stops matching a list leaves it and a
// record that starts matching joins it at its sorted position.
package resource
