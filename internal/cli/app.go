package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"autoqa/internal/answer"
	"autoqa/internal/config"
	"autoqa/internal/domain"
	"autoqa/internal/embedding"
	embedopenai "autoqa/internal/embedding/openai"
	llmopenai "autoqa/internal/llm/openai"
	"autoqa/internal/logger"
	"autoqa/internal/service"
	"autoqa/internal/store/memory"
	"autoqa/internal/store/sqlite"
	"autoqa/internal/threshold"
	"autoqa/internal/vectorstore"
	vectormem "autoqa/internal/vectorstore/memory"
	"autoqa/internal/vectorstore/qdrant"
)

// App holds the assembled components for one command invocation.
type App struct {
	Config  *config.AppConfig
	Service *service.RAGService
	closers []func() error
}

// Close releases the service and the stores.
func (a *App) Close() error {
	var errs []error
	if a.Service != nil {
		errs = append(errs, a.Service.Close())
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}

// buildApp assembles the service from cfg. Optional collaborators that fail
// to initialise are logged and left out; the service then runs on its local
// retrieval and extractive answers.
func buildApp(cfg *config.AppConfig) (*App, error) {
	app := &App{Config: cfg}

	var (
		docs domain.DocumentStore
		log  domain.InteractionLog
	)
	switch cfg.Storage.Type {
	case "sqlite":
		st, err := sqlite.Open(cfg.Storage.Path)
		if err != nil {
			return nil, fmt.Errorf("opening store: %w", err)
		}
		app.closers = append(app.closers, st.Close)
		docs, log = st, st
	case "memory":
		st := memory.New()
		docs, log = st, st
	default:
		return nil, fmt.Errorf("unknown store: %s", cfg.Storage.Type)
	}

	var emb embedding.Embedder
	switch cfg.Embedder.Type {
	case "none":
	case "openai":
		oc := cfg.Embedder.OpenAI
		client, err := embedopenai.NewClient(embedopenai.Config{
			BaseURL:    oc.BaseURL,
			APIKeyEnv:  oc.APIKeyEnv,
			Model:      oc.Model,
			Timeout:    time.Duration(oc.TimeoutSecs) * time.Second,
			MaxRetries: oc.MaxRetries,
		})
		if err != nil {
			logger.Warn("openai embedder disabled: %v", err)
		} else {
			emb = client
		}
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Embedder.Type)
	}

	var vectors vectorstore.Storage
	if emb != nil {
		switch cfg.VectorStore.Type {
		case "memory":
			vectors = vectormem.NewStorage()
		case "qdrant":
			qc := cfg.VectorStore.Qdrant
			vectors = qdrant.NewStorage(qdrant.Config{
				URL:        qc.URL,
				APIKey:     os.Getenv(qc.APIKeyEnv),
				Collection: qc.Collection,
				Timeout:    time.Duration(qc.TimeoutSecs) * time.Second,
			})
		default:
			return nil, fmt.Errorf("unknown vector store: %s", cfg.VectorStore.Type)
		}
	}

	var gen answer.Generator
	switch cfg.LLM.Type {
	case "none":
	case "openai":
		lc := cfg.LLM.OpenAI
		client, err := llmopenai.NewClient(llmopenai.Config{
			BaseURL:     lc.BaseURL,
			APIKeyEnv:   lc.APIKeyEnv,
			Model:       lc.Model,
			Temperature: lc.Temperature,
			Timeout:     time.Duration(lc.TimeoutSecs) * time.Second,
		})
		if err != nil {
			logger.Warn("llm disabled: %v", err)
		} else {
			gen = client
		}
	default:
		return nil, fmt.Errorf("unknown llm: %s", cfg.LLM.Type)
	}

	svc, err := service.New(service.Options{
		Documents:    docs,
		Interactions: log,
		Threshold:    threshold.New(cfg.ControllerConfig()),
		Composer:     answer.NewComposer(gen, cfg.Answer.ConfidenceThreshold, cfg.AnswerTimeout()),
		Embedder:     emb,
		Vectors:      vectors,
		TopK:         cfg.Retrieval.TopK,
		RebuildEvery: cfg.Retrieval.RebuildEvery,
		Crawler:      cfg.CrawlerSettings(),
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Service = svc
	return app, nil
}
