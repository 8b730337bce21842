package main

import (
	"fmt"
	"io"
	"net/http"

	"github.com/guilhermeleaosoares/llm-council/internal/config"
	"github.com/guilhermeleaosoares/llm-council/internal/consensus"
	"github.com/guilhermeleaosoares/llm-council/internal/council"
	"github.com/guilhermeleaosoares/llm-council/internal/provider"
	"github.com/guilhermeleaosoares/llm-council/internal/registry"
	"github.com/guilhermeleaosoares/llm-council/internal/search"
	"github.com/guilhermeleaosoares/llm-council/internal/store"
)

// app is the fully wired council.
type app struct {
	cfg      *config.Config
	registry *registry.Registry
	client   *provider.Client
	voter    *consensus.Engine
	searcher *search.Searcher
	store    store.Store
	service  *council.Service
}

// newApp wires every component from the configuration.
func newApp(cfg *config.Config) (*app, error) {
	httpClient := &http.Client{}

	reg := registry.New(cfg.Council.Models, cfg.Council.KingModelID)
	client := provider.NewClient(provider.DefaultRegistry(httpClient, provider.MediaConfig{
		PollInterval: cfg.Council.Media.PollInterval,
		PollTimeout:  cfg.Council.Media.PollTimeout,
	}), httpClient)
	voter := consensus.New(client, cfg.ModelTimeout)
	searcher := search.New(cfg.SearchURL, httpClient, cfg.SearchCacheTTL)

	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	engine := council.NewEngine(client, voter, cfg.Council.Weighting, cfg.ModelTimeout)
	service := council.NewService(council.Deps{
		Store:  st,
		Models: reg,
		Engine: engine,
		Chat:   client,
		Media:  client,
		Search: searcher,
	}, council.Options{
		Combine:      cfg.Council.SynthesisMode == config.SynthesisCombine,
		TitleTimeout: cfg.TitleTimeout,
		MediaTimeout: cfg.Council.Media.JobTimeout(),
	})

	return &app{
		cfg:      cfg,
		registry: reg,
		client:   client,
		voter:    voter,
		searcher: searcher,
		store:    st,
		service:  service,
	}, nil
}

// Close waits for background work and releases the store.
func (a *app) Close() error {
	a.service.Wait()
	if c, ok := a.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
