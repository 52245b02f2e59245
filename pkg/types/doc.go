// Package types defines the resource records, filter specifications, query
// model, collaborator interfaces (Backend, KVStore, Feed, Session,
// FileStorage), and standard errors for the larder data layer.
package types
