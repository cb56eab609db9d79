// Package spempe implements the synchronized-object registry and the sync
// engine that replicates master objects to per-client dummies over
// rigelnet.
package spempe

import "errors"

var (
	// ErrSyncIdTaken is returned by RegisterDummy when the requested SyncId
	// already has a live mapping.
	ErrSyncIdTaken = errors.New("spempe: sync id already registered")
	// ErrNotRegistered is returned by Unregister for an object the registry
	// doesn't know about.
	ErrNotRegistered = errors.New("spempe: not registered")
	// ErrUnknownSyncId is returned when an update RPC names a SyncId with
	// no local mapping -- dropped with a warning on the client, a protocol
	// violation on the server (see §4.D Failure).
	ErrUnknownSyncId = errors.New("spempe: unknown sync id")
	// ErrInvalidArgument flags a caller precondition violation.
	ErrInvalidArgument = errors.New("spempe: invalid argument")
)
