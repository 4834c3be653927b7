// Package core provisions source connections: it resolves how a connection
// authenticates, validates fields against registered schemas, seals
// credentials through the vault and writes credential, connection,
// collection, sync and source connection in one unit of work.
//
// Storage, OAuth transport and job queues are reached only through the
// contracts in this package; adapters live in sibling packages.
package core
