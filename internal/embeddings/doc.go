// Package embeddings turns chunk and query text into dense vectors.
//
// Providers:
//   - fastembed: local ONNX models through fastembed-go (requires cgo)
//   - hugot: local ONNX models on the pure Go backend of hugot
//   - tei: a text-embeddings-inference server over HTTP
//   - openai: any OpenAI-compatible /embeddings endpoint via langchaingo
//   - hash: deterministic feature hashing, offline and model-free
//
// NewProvider selects one from config and wraps it with metrics and a
// per-call timeout.
package embeddings
