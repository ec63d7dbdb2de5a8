// Package vectorstore provides vector database backends for the chunk index.
//
// The flat in-memory scan in package index is the default search path. The
// stores here mirror a published snapshot into an external engine and answer
// the same nearest-neighbour query:
//
//   - chromem: embedded, persistent, pure Go (chromem-go)
//   - qdrant: remote server over native gRPC (qdrant go-client)
//
// Both report squared Euclidean distances so results are interchangeable
// with the flat scan.
package vectorstore
