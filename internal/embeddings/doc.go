// Package embeddings turns text into vectors for the vector stores.
//
// NewProvider picks an implementation by name:
//
//   - fastembed: local ONNX models through fastembed-go (cgo builds only)
//   - tei: a HuggingFace text-embeddings-inference server over HTTP
//   - openai: any OpenAI-compatible embeddings API through langchaingo
//   - ollama: a local Ollama daemon through chromem-go
//
// Every provider reports its output size through Dimension, which the
// qdrant backend uses to size new collections. Providers built by
// NewProvider also record OpenTelemetry metrics for each call.
package embeddings
