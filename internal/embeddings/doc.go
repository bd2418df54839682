// Package embeddings provides embedding generation via multiple providers.
//
// Hosted models are reached through langchaingo clients: "openai" covers any
// OpenAI-compatible endpoint (including Gemini's compatibility API) and
// "ollama" covers a local Ollama server. "fastembed" runs ONNX models in
// process and needs a cgo build.
//
// Service wraps a Provider with batching, client-side rate limiting and
// OpenTelemetry metrics. Callers embed through a Service, never through a
// bare Provider.
package embeddings
