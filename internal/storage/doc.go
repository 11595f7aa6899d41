// Package storage persists a node's local metadata that must survive a
// restart: today that's just its chosen NodeID (see vconfig.Settings.NodeID
// and cmd/vindexd's loadOrCreateNodeID). BoltStore is a single bbolt bucket
// exposing the Get/Put/Close that bookkeeping needs — nothing more, since
// nothing in this module calls anything richer.
//
// This package isn't involved in shard data: segments and translogs manage
// their own files directly (see internal/engine, internal/translog), and the
// replicated cluster state lives in internal/cluster's own, separate
// bbolt-backed Store.
package storage
