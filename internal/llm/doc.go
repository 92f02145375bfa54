// Package llm defines the text generation boundary used to classify user
// requests and summarize wallet API responses. Providers live in the openai
// and pythonbridge subpackages.
package llm
