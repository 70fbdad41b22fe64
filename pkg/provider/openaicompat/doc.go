// Package openaicompat is a completion client for OpenAI-compatible Chat
// Completions backends (OpenAI, vLLM, LiteLLM and friends). It handles
// request serialization, response parsing and error mapping. The Azure
// adapter reuses it with a different endpoint and auth header.
package openaicompat
