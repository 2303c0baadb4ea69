// Package llm contains adapters for invoking large language models. Every
// provider is reduced to a single system-prompt/user-prompt completion call so
// the reply pipeline can swap providers or substitute test doubles.
package llm
