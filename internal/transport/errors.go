package transport

import "errors"

// ErrNotFound is returned by Client.FetchChunk when the peer has no local
// node holding the requested chunk hash (spec.md's NotFound error kind).
var ErrNotFound = errors.New("transport: chunk not found on peer")
