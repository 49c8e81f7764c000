// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package llm

import "log"

// Endpoint describes one upstream provider configuration.
type Endpoint struct {
	Name    string
	BaseURL string
	Model   string
}

// DefaultEndpoints lists the supported providers in rotation order.
// All four expose OpenAI-compatible chat completion APIs serving
// Llama 3.3 70B variants, so answers are interchangeable across them.
var DefaultEndpoints = []Endpoint{
	{Name: "cerebras", BaseURL: "https://api.cerebras.ai/v1", Model: "llama-3.3-70b"},
	{Name: "groq", BaseURL: "https://api.groq.com/openai/v1", Model: "llama-3.3-70b-specdec"},
	{Name: "fireworks", BaseURL: "https://api.fireworks.ai/inference/v1", Model: "accounts/fireworks/models/llama-v3p3-70b-instruct"},
	{Name: "sambanova", BaseURL: "https://api.sambanova.ai/v1", Model: "Meta-Llama-3.3-70B-Instruct"},
}

// BuildProviders creates the provider rotation from API keys, keyed by
// provider name. Providers without a key are left out of the rotation.
func BuildProviders(apiKeys map[string]string) []*Provider {
	providers := make([]*Provider, 0, len(DefaultEndpoints))
	for _, ep := range DefaultEndpoints {
		key := apiKeys[ep.Name]
		if key == "" {
			log.Printf("PROVIDER_SKIPPED | provider=%s reason=no_api_key", ep.Name)
			continue
		}
		client := NewClient(ep.Name, ep.BaseURL, key, ep.Model)
		providers = append(providers, NewProvider(ep.Name, client))
	}
	return providers
}
