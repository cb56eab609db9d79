// Package gridgoblin implements the chunk-based world storage engine: cell
// model, in-RAM chunk index with active-area pinning and eviction, a
// background disk-IO spooler, and JSON-based chunk/world persistence.
package gridgoblin

import "errors"

var (
	ErrInvalidArgument    = errors.New("gridgoblin: invalid argument")
	ErrConfigMismatch     = errors.New("gridgoblin: stored contents config does not match requested config")
	ErrStorageNotFound    = errors.New("gridgoblin: storage directory does not exist")
	ErrStorageNotADir     = errors.New("gridgoblin: storage path exists but is not a directory")
	ErrBuildingBlockMismatch = errors.New("gridgoblin: on-disk buildingBlocks tag does not match configured mask")
	ErrMissingMember      = errors.New("gridgoblin: chunk file missing an expected member")
	ErrNullChunk          = errors.New("gridgoblin: operation not valid on a null chunk")
	ErrOutOfBounds        = errors.New("gridgoblin: cell coordinates out of bounds")
	ErrEditNotPermitted   = errors.New("gridgoblin: edit attempted without a valid edit permit")
	ErrRequestCancelled   = errors.New("gridgoblin: chunk request was cancelled")
	ErrSpoolerClosed      = errors.New("gridgoblin: spooler is closed")
)
