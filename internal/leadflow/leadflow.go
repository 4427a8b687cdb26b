package leadflow

import (
	"context"
	"fmt"
	"time"

	httpadapter "leadflow/internal/leadflow/adapter/http"
	"leadflow/internal/leadflow/adapter/persistence"
	"leadflow/internal/leadflow/config"
	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/leadflow/domain/service"
	"leadflow/internal/leadflow/usecase"
	"leadflow/internal/shared/eventbus"
	"leadflow/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
)

const journalProbeTimeout = 2 * time.Second

// LeadflowModule holds every component of the sales-pipeline backend.
type LeadflowModule struct {
	Config     *config.LeadflowConfig
	Store      *persistence.StoreHandle
	Repository *persistence.DocumentRepository
	// Journal is nil when Redis is not configured or not reachable.
	Journal  repository.EventJournal
	EventBus *eventbus.EventBus

	LeadUsecase     usecase.LeadUsecase
	ProjectUsecase  usecase.ProjectUsecase
	DemoUsecase     usecase.DemoUsecase
	StatusUsecase   usecase.StatusUsecase
	RealtimeUsecase usecase.RealtimeUsecase

	Logger logger.Logger
}

// NewLeadflowModule selects the document store, connects the optional journal
// and assembles the use cases. A nil cfg is loaded from the environment.
func NewLeadflowModule(ctx context.Context, cfg *config.LeadflowConfig, log logger.Logger) (*LeadflowModule, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log.Info("Initializing Leadflow module...")

	if cfg == nil {
		loaded, err := config.LoadConfig()
		if err != nil {
			log.Warnf("Failed to load Leadflow config from environment, using defaults: %v", err)
			loaded = config.DefaultConfig()
		}
		cfg = loaded
	}

	store := persistence.OpenDocumentStore(ctx, cfg.Database, log)
	repo := persistence.NewDocumentRepository(store.Store, persistence.UTCClock)
	journal := openJournal(ctx, cfg.Journal, log)

	bus := eventbus.NewEventBus(log)
	realtimeUC := usecase.NewRealtimeUsecase(log)

	m := &LeadflowModule{
		Config:          cfg,
		Store:           store,
		Repository:      repo,
		Journal:         journal,
		EventBus:        bus,
		LeadUsecase:     usecase.NewLeadUsecase(repo, service.NewPipelineService(), nil, log),
		ProjectUsecase:  usecase.NewProjectUsecase(repo, journal, log),
		DemoUsecase:     usecase.NewDemoUsecase(repo, cfg.Demo, nil, log),
		StatusUsecase:   usecase.NewStatusUsecase(store.Store, backendInfo(cfg, store)),
		RealtimeUsecase: realtimeUC,
		Logger:          log.WithComponent("leadflow"),
	}
	m.subscribe()

	m.Logger.WithFields(map[string]interface{}{
		"backend": store.Backend,
		"journal": journal != nil,
	}).Info("Leadflow module initialized")
	return m, nil
}

// openJournal returns nil when the journal is disabled or Redis does not answer.
func openJournal(ctx context.Context, cfg config.JournalConfig, log logger.Logger) repository.EventJournal {
	if !cfg.Enabled() {
		return nil
	}
	client := config.NewRedisClient(cfg)

	pingCtx, cancel := context.WithTimeout(ctx, journalProbeTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log.WithFields(map[string]interface{}{"addr": cfg.Addr}).
			Warnf("Redis unavailable, event journal disabled: %v", err)
		_ = client.Close()
		return nil
	}
	return persistence.NewRedisJournal(client, cfg.StreamPrefix, cfg.MaxLen, log)
}

func backendInfo(cfg *config.LeadflowConfig, store *persistence.StoreHandle) usecase.BackendInfo {
	return usecase.BackendInfo{
		Kind:          string(store.Backend),
		DatabaseName:  store.DatabaseName,
		URLConfigured: cfg.Database.URL != "",
		Persistent:    store.Persistent(),
	}
}

// subscribe routes every pipeline event to the observers of its project and,
// when enabled, to the journal.
func (m *LeadflowModule) subscribe() {
	for _, et := range model.PipelineEventTypes {
		m.EventBus.Subscribe(string(et), m.broadcast)
		if m.Journal != nil {
			m.EventBus.Subscribe(string(et), m.record)
		}
	}
}

func (m *LeadflowModule) broadcast(ctx context.Context, e eventbus.Event) error {
	event, err := pipelineEvent(e)
	if err != nil {
		return err
	}
	m.RealtimeUsecase.Broadcast(ctx, event.ProjectID, event.Message)
	return nil
}

func (m *LeadflowModule) record(ctx context.Context, e eventbus.Event) error {
	event, err := pipelineEvent(e)
	if err != nil {
		return err
	}
	return m.Journal.Append(ctx, event)
}

func pipelineEvent(e eventbus.Event) (model.PipelineEvent, error) {
	event, ok := e.Data().(model.PipelineEvent)
	if !ok {
		return model.PipelineEvent{}, fmt.Errorf("unexpected payload %T for event %s", e.Data(), e.Type())
	}
	return event, nil
}

// RegisterRoutes registers the websocket endpoint and the REST API.
func (m *LeadflowModule) RegisterRoutes(router fiber.Router) {
	wsHandler := httpadapter.NewWebSocketHandler(m.RealtimeUsecase, m.Config.Realtime.WebSocketPath, m.Config.Realtime.WriteTimeout, m.Logger)
	wsHandler.RegisterRoutes(router)

	httpHandler := httpadapter.NewHTTPHandler(m.LeadUsecase, m.ProjectUsecase, m.DemoUsecase, m.StatusUsecase, m.EventBus, m.Logger)
	httpHandler.RegisterRoutes(router)

	m.Logger.Info("Leadflow HTTP routes and WebSocket handler registered")
}

// HealthCheck pings the document store and the journal.
func (m *LeadflowModule) HealthCheck(ctx context.Context) error {
	if err := m.Store.Store.Ping(ctx); err != nil {
		return fmt.Errorf("%s store health check failed: %w", m.Store.Backend, err)
	}
	if m.Journal != nil {
		if err := m.Journal.Ping(ctx); err != nil {
			return fmt.Errorf("journal health check failed: %w", err)
		}
	}
	return nil
}

// Stop releases the store and journal connections.
func (m *LeadflowModule) Stop(ctx context.Context) error {
	m.Logger.Info("Stopping Leadflow module...")
	var errs []error
	if m.Journal != nil {
		if err := m.Journal.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close journal: %w", err))
		}
	}
	if err := m.Store.Store.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("stop errors: %v", errs)
	}
	m.Logger.Info("Leadflow module stopped")
	return nil
}
