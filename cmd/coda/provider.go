package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/Cyclone1070/coda/internal/config"
	"github.com/Cyclone1070/coda/internal/provider"
	"github.com/Cyclone1070/coda/internal/provider/gemini"
	"github.com/Cyclone1070/coda/internal/provider/gollm"
	"github.com/Cyclone1070/coda/internal/workflow/loop"
)

// modelLister is implemented by providers that can enumerate models.
type modelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// createRealProviderFactory builds the configured backend. Credentials are
// resolved on every attempt so a key exported after a failure is picked up.
func createRealProviderFactory(cfg *config.Config) loop.ProviderFactory {
	return func(ctx context.Context) (provider.Provider, error) {
		apiKey, err := provider.ResolveAPIKey(cfg.Provider, nil)
		if err != nil {
			return nil, err
		}

		if cfg.Provider.Name == "gemini" {
			client, err := gemini.NewClient(ctx, apiKey)
			if err != nil {
				return nil, fmt.Errorf("failed to create Gemini client: %w", err)
			}
			return gemini.New(client, cfg.Provider.Model), nil
		}

		adapter, err := gollm.New(gollm.Options{
			Provider:    cfg.Provider.Name,
			Model:       cfg.Provider.Model,
			APIKey:      apiKey,
			MaxTokens:   cfg.Orchestrator.MaxOutputTokens,
			Temperature: cfg.Orchestrator.Temperature,
		})
		if err != nil {
			return nil, err
		}
		return adapter, nil
	}
}

// memoize shares one provider between the engine and the model commands.
// Failures are not cached.
func memoize(factory loop.ProviderFactory) loop.ProviderFactory {
	var (
		mu   sync.Mutex
		prov provider.Provider
	)
	return func(ctx context.Context) (provider.Provider, error) {
		mu.Lock()
		defer mu.Unlock()
		if prov != nil {
			return prov, nil
		}
		p, err := factory(ctx)
		if err != nil {
			return nil, err
		}
		prov = p
		return prov, nil
	}
}
