// Package llm provides LLM client implementations.
//
// The factory creates clients based on provider configuration.
// Currently supports Anthropic Claude.
package llm
