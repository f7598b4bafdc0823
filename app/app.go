// App assembly - builds the controller and its stores from configuration.
// Shared by the CLI and the daemon so both wire the exact same stack.
package app

import (
	"context"
	"fmt"
	"log"

	"github.com/scrivenlab/scriven/agent"
	"github.com/scrivenlab/scriven/memory"
	"github.com/scrivenlab/scriven/pkg/config"
	"github.com/scrivenlab/scriven/pkg/llm"
	googleprovider "github.com/scrivenlab/scriven/pkg/llm/providers/google"
	openaiprovider "github.com/scrivenlab/scriven/pkg/llm/providers/openai"
	"github.com/scrivenlab/scriven/profile"
	"github.com/scrivenlab/scriven/storage"
	"github.com/scrivenlab/scriven/tools"
	"github.com/scrivenlab/scriven/workspace"
)

// App holds everything a front end needs, plus the handles to close
type App struct {
	Cfg        *config.Config
	Controller *agent.Controller
	Store      *storage.Storage
	Profiles   *profile.Store
	Index      *memory.VectorStore
	Workspace  *workspace.Client
}

// Build assembles the full stack from cfg. Optional pieces (workspace tools,
// the semantic index) are left out when their configuration is absent; the
// controller treats missing collaborators as degraded context, not errors.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := storage.New(cfg.Storage.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}

	profiles, err := profile.Open(cfg.Profile.Dir, cfg.Profile.MemoryMode)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("open profile store: %w", err)
	}

	a := &App{Cfg: cfg, Store: store, Profiles: profiles}

	// Semantic index needs an embedding key; without one the agent still
	// works, it just has no long-term recall
	if cfg.Memory.EmbeddingKey != "" {
		embedder, err := memory.NewOpenAIProvider(cfg.Memory.EmbeddingKey, cfg.Memory.EmbeddingModel, cfg.Memory.EmbeddingDim)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("embedding provider: %w", err)
		}
		index, err := memory.NewVectorStore(cfg.Memory.DBPath, embedder, memory.Config{
			MaxResults: cfg.Memory.MaxResults,
			MinScore:   cfg.Memory.MinScore,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open vector store: %w", err)
		}
		a.Index = index
	} else {
		log.Printf("[WARN] no embedding key configured, semantic recall disabled")
	}

	provider, err := buildProvider(ctx, cfg.Agent)
	if err != nil {
		a.Close()
		return nil, err
	}

	registry := tools.NewRegistry()
	a.Workspace = workspace.New(cfg.Workspace.BaseURL, cfg.Workspace.Token, cfg.Workspace.Timeout)
	tools.RegisterWorkspaceTools(registry, a.Workspace)
	if a.Index != nil {
		registry.Register(&tools.MemorySearchTool{Index: a.Index})
	}
	registry.Register(&tools.ProfileSaveTool{})

	summaryModel := cfg.Agent.SummaryModel
	if summaryModel == "" {
		summaryModel = cfg.Agent.Model
	}
	summarizer := agent.NewTurnSummarizer(provider, summaryModel)

	var index memory.SemanticIndex
	var recall agent.Recaller
	if a.Index != nil {
		index = a.Index
		recall = a.Index
	}
	sync := memory.NewSynchronizer(store, index, profiles, summarizer)

	a.Controller = agent.New(agent.Config{
		AgentConfig: cfg.Agent,
		Provider:    provider,
		Registry:    registry,
		Memory:      sync,
		History:     store,
		Recall:      recall,
		Profiles:    profiles,
	})
	return a, nil
}

func buildProvider(ctx context.Context, cfg config.AgentConfig) (llm.Provider, error) {
	pc := llm.Config{APIKey: cfg.APIKey, BaseURL: cfg.BaseURL, Model: cfg.Model}
	switch cfg.Provider {
	case "", "openai":
		return openaiprovider.New(pc), nil
	case "google":
		p, err := googleprovider.New(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}
}

// Close releases every store the app opened
func (a *App) Close() {
	if a.Index != nil {
		if err := a.Index.Close(); err != nil {
			log.Printf("[WARN] close vector store: %v", err)
		}
	}
	if a.Profiles != nil {
		if err := a.Profiles.Close(); err != nil {
			log.Printf("[WARN] close profile store: %v", err)
		}
	}
	if a.Store != nil {
		if err := a.Store.Close(); err != nil {
			log.Printf("[WARN] close history store: %v", err)
		}
	}
}
