package leadflow

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"sync"
	"testing"

	"leadflow/internal/leadflow/adapter/persistence"
	"leadflow/internal/leadflow/config"
	"leadflow/internal/leadflow/domain/model"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	mu     sync.Mutex
	events []interface{}
}

func (o *recordingObserver) ID() string { return "recorder" }

func (o *recordingObserver) Send(ctx context.Context, event interface{}) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return nil
}

func (o *recordingObserver) received() []interface{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]interface{}(nil), o.events...)
}

func newTestModule(t *testing.T) *LeadflowModule {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Demo.LeadCount = 4

	m, err := NewLeadflowModule(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Stop(context.Background()) })
	return m
}

func TestNewLeadflowModule_FallsBackToMemory(t *testing.T) {
	m := newTestModule(t)

	assert.Equal(t, persistence.BackendMemory, m.Store.Backend)
	assert.Nil(t, m.Journal)
	assert.NoError(t, m.HealthCheck(context.Background()))

	status := m.StatusUsecase.DatabaseStatus(context.Background())
	assert.Equal(t, "memory", status.StoreKind)
	assert.Equal(t, "not set", status.DatabaseURL)
}

func TestLeadflowModule_AdvanceReachesObservers(t *testing.T) {
	m := newTestModule(t)
	ctx := context.Background()

	app := fiber.New()
	m.RegisterRoutes(app)

	boot, err := m.DemoUsecase.Bootstrap(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, boot.Leads)
	lead := boot.Leads[0]

	watcher := &recordingObserver{}
	bystander := &recordingObserver{}
	require.NoError(t, m.RealtimeUsecase.Connect(ctx, boot.ProjectID, watcher))
	require.NoError(t, m.RealtimeUsecase.Connect(ctx, "some-other-project", bystander))

	resp, err := app.Test(httptest.NewRequest("POST", "/api/leads/"+lead.ID.Hex()+"/advance", nil), -1)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var updated model.Lead
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))

	events := watcher.received()
	require.Len(t, events, 1)
	msg, ok := events[0].(model.LeadAdvancedMessage)
	require.True(t, ok)
	assert.Equal(t, lead.ID.Hex(), msg.LeadID)
	assert.Equal(t, lead.CurrentStep, msg.From)
	assert.Equal(t, updated.CurrentStep, msg.To)
	assert.Empty(t, bystander.received())
}

func TestLeadflowModule_SubscribesEveryPipelineEvent(t *testing.T) {
	m := newTestModule(t)
	for _, et := range model.PipelineEventTypes {
		assert.Equal(t, 1, m.EventBus.GetSubscriberCount(string(et)), string(et))
	}
}
