package app

import (
	"context"
	"fmt"
	"sync"

	"github.com/rentora-hq/extraction-gateway/internal/config"
	"github.com/rentora-hq/extraction-gateway/internal/dispatch"
	"github.com/rentora-hq/extraction-gateway/internal/extraction"
	"github.com/rentora-hq/extraction-gateway/internal/logger"
	"github.com/rentora-hq/extraction-gateway/internal/storage"
	"github.com/rentora-hq/extraction-gateway/internal/webhook"
	"github.com/rentora-hq/extraction-gateway/pkg/filestore"
	"github.com/rentora-hq/extraction-gateway/pkg/providers"
	"github.com/rentora-hq/extraction-gateway/pkg/publishers"
)

// Gateway wires together the record store, file store, provider adapter,
// lifecycle publishers, background dispatcher, and the webhook server. It owns
// their lifecycles.
type Gateway struct {
	cfg     *config.Config
	store   storage.Store
	queue   *dispatch.Queue
	service *extraction.Service
	server  *webhook.Server
	fanout  *publishers.Fanout
	log     logger.Logger
}

// NewGateway builds the gateway runtime from config files.
func NewGateway(ctx context.Context, cfg *config.Config, log logger.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	doctypes, err := providers.LoadDocTypes(cfg.DocTypesFile)
	if err != nil {
		return nil, fmt.Errorf("load document types: %w", err)
	}
	typeNames := make([]string, 0, len(doctypes.All()))
	for _, dt := range doctypes.All() {
		typeNames = append(typeNames, dt.Type)
	}
	log.InfoObj("document types loaded", "doctypes_meta", map[string]any{
		"count": len(typeNames),
		"types": typeNames,
	})

	provider, err := providers.NewKoncile(providers.KoncileConfig{
		BaseURL: cfg.KoncileAPIURL,
		APIKey:  cfg.KoncileAPIKey,
		Timeout: cfg.UploadTimeout,
	}, log)
	if err != nil {
		return nil, fmt.Errorf("init provider: %w", err)
	}

	files, err := filestore.NewStore(cfg.FileStoreType, cfg.FileStoreRoot)
	if err != nil {
		return nil, fmt.Errorf("init file store: %w", err)
	}

	store, err := storage.NewStore(cfg.StorageType, cfg.BBoltPath)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	log.InfoObj("storage initialized", "storage_config", map[string]any{
		"type": cfg.StorageType,
		"path": cfg.BBoltPath,
	})

	fanout, err := buildFanout(ctx, cfg, log)
	if err != nil {
		closeStore(store, log)
		return nil, err
	}

	// The queue handler closes over the service pointer assigned below, which
	// breaks the service -> dispatcher -> service cycle.
	var service *extraction.Service
	queue, err := dispatch.NewQueue(dispatch.Options{
		QueueSize: cfg.DispatchQueueSize,
		Workers:   cfg.DispatchWorkers,
		Attempts:  cfg.DispatchRetryAttempts,
		BaseDelay: cfg.DispatchRetryBase,
	}, func(ctx context.Context, id string) error {
		return service.Process(ctx, id)
	}, log)
	if err != nil {
		closeStore(store, log)
		return nil, fmt.Errorf("init dispatcher: %w", err)
	}

	service, err = extraction.NewService(store, files, provider, doctypes, queue, fanout, log)
	if err != nil {
		closeStore(store, log)
		return nil, fmt.Errorf("init extraction service: %w", err)
	}

	handler := webhook.NewKoncileHandler(service, webhook.KoncileHandlerConfig{
		Secret:     cfg.KoncileWebhookSecret,
		Production: cfg.Production(),
		Tolerance:  cfg.WebhookTolerance,
	}, log)
	server := webhook.NewServer(cfg.ListenAddress, handler, log)

	return &Gateway{
		cfg:     cfg,
		store:   store,
		queue:   queue,
		service: service,
		server:  server,
		fanout:  fanout,
		log:     log,
	}, nil
}

// Service exposes the extraction orchestrator for embedding callers.
func (g *Gateway) Service() *extraction.Service {
	return g.service
}

// Run serves webhooks and drains the dispatch queue until the context is
// cancelled.
func (g *Gateway) Run(ctx context.Context) error {
	if g == nil || g.service == nil {
		return fmt.Errorf("gateway is not initialized")
	}
	defer closeStore(g.store, g.log)
	defer g.queue.Close()

	fanoutSize := 0
	if g.fanout != nil {
		fanoutSize = g.fanout.Size()
	}
	g.log.InfoObj("gateway starting", "gateway_state", map[string]any{
		"listen_address":   g.cfg.ListenAddress,
		"dispatch_workers": g.cfg.DispatchWorkers,
		"publishers_count": fanoutSize,
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		g.queue.Run(ctx)
	}()

	err := g.server.Run(ctx)
	wg.Wait()

	g.log.InfoObj("gateway stopped", "reason", ctx.Err())
	return err
}

// buildFanout assembles the enabled lifecycle publishers. An empty registry is
// not fatal: records still progress, events just have no sink.
func buildFanout(ctx context.Context, cfg *config.Config, log logger.Logger) (*publishers.Fanout, error) {
	publisherReg, err := publishers.LoadRegistry(cfg.PublishersFile)
	if err != nil {
		return nil, fmt.Errorf("load publishers registry: %w", err)
	}

	enabled := publisherReg.Enabled()
	if len(enabled) == 0 {
		log.WarnObj("no publishers enabled; lifecycle events will be dropped", "publishers_file", cfg.PublishersFile)
		return nil, nil
	}

	pubClients, err := publishers.BuildAll(ctx, publishers.DefaultRegistry(), enabled, log)
	if err != nil {
		return nil, fmt.Errorf("build publishers: %w", err)
	}

	summaries := make([]map[string]string, 0, len(enabled))
	for _, pubCfg := range enabled {
		summaries = append(summaries, map[string]string{
			"id":   pubCfg.ID,
			"type": pubCfg.Type,
		})
	}
	log.InfoObj("publishers registry loaded", "publishers_meta", map[string]any{
		"count":      len(summaries),
		"publishers": summaries,
	})

	return publishers.NewFanout(pubClients), nil
}

func closeStore(store storage.Store, log logger.Logger) {
	if store == nil {
		return
	}
	if err := store.Close(); err != nil {
		log.ErrorObj("storage close failed", "error", err)
	}
}
