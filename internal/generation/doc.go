// Package generation sends assembled prompts to a hosted language model.
//
// Client speaks to any OpenAI-compatible chat endpoint (Gemini's
// compatibility API by default) or to Ollama through langchaingo. It makes
// exactly one upstream call per Generate; retries are the caller's decision.
package generation
