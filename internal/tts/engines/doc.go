// Package engines contains the speech synthesis providers.
// OpenAIProvider speaks to any OpenAI compatible HTTP endpoint,
// GoogleProvider to Google Cloud Text-to-Speech over gRPC, and MockProvider
// produces silence locally for tests and dry runs.
// Each one implements the Provider interface from the parent package.
package engines
