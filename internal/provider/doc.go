// Package provider provides an LLM provider abstraction layer for the
// runtime's orchestrator.
//
// This package implements a unified interface for different Large Language
// Model providers using the Eino framework. It supports Anthropic Claude and
// OpenAI (and OpenAI-compatible) chat models.
//
// # Core Components
//
//   - Provider: core interface every LLM provider implements
//   - Registry: manages and coordinates multiple providers
//   - CompletionRequest/CompletionStream: streaming chat completions
//   - Tool conversion utilities for function calling
//
// # Configuration
//
// Providers are discovered from environment variables (ANTHROPIC_API_KEY,
// OPENAI_API_KEY); an agent's RuntimeConfig.LLM section only tunes
// temperature and timeout, not provider selection — every agent shares the
// process-wide provider registry and selects a model via a "provider/model"
// string.
//
//	registry := NewRegistry()
//	registry.InitializeFromEnv(ctx)
//	model, err := registry.DefaultModel()
package provider
