package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"testing"
	"time"

	"leadflow/internal/leadflow"
	"leadflow/internal/leadflow/adapter/persistence"
	"leadflow/internal/leadflow/adapter/persistence/mongodb"
	"leadflow/internal/leadflow/config"
	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/usecase"
	"leadflow/internal/shared/logger"

	"github.com/fasthttp/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// pipelineServer is a full module listening on a loopback port.
type pipelineServer struct {
	module  *leadflow.LeadflowModule
	baseURL string
	wsURL   string
	client  *fasthttp.Client
}

// startPipelineServer builds the module against the MongoDB named by
// LEADFLOW_TEST_MONGODB_URI and, when LEADFLOW_TEST_REDIS_ADDR is set, a Redis
// journal. The test is skipped without MongoDB.
func startPipelineServer(t *testing.T) *pipelineServer {
	t.Helper()

	uri := os.Getenv("LEADFLOW_TEST_MONGODB_URI")
	if uri == "" {
		t.Skip("LEADFLOW_TEST_MONGODB_URI not set, skipping pipeline integration test")
	}

	cfg := config.DefaultConfig()
	cfg.Database.URL = uri
	cfg.Database.Name = "leadflow_it_" + primitive.NewObjectID().Hex()
	cfg.Demo.LeadCount = 8
	if addr := os.Getenv("LEADFLOW_TEST_REDIS_ADDR"); addr != "" {
		cfg.Journal.Addr = addr
		cfg.Journal.Database = 14
		cfg.Journal.StreamPrefix = "leadflow:it:" + primitive.NewObjectID().Hex() + ":"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	module, err := leadflow.NewLeadflowModule(ctx, cfg, logger.NewNopLogger())
	require.NoError(t, err)
	if module.Store.Backend != persistence.BackendMongoDB {
		_ = module.Stop(context.Background())
		t.Skipf("MongoDB not reachable: %v", module.Store.FallbackReason)
	}

	app := fiber.New()
	module.RegisterRoutes(app)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() { _ = app.Listener(ln) }()

	t.Cleanup(func() {
		cleanupCtx, cleanupCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cleanupCancel()
		_ = app.Shutdown()
		if store, ok := module.Store.Store.(*mongodb.DocumentStore); ok {
			_ = store.DropDatabase(cleanupCtx)
		}
		_ = module.Stop(cleanupCtx)
	})

	addr := ln.Addr().String()
	return &pipelineServer{
		module:  module,
		baseURL: "http://" + addr,
		wsURL:   "ws://" + addr + cfg.Realtime.WebSocketPath,
		client:  &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second},
	}
}

func (s *pipelineServer) call(t *testing.T, method, path string, body interface{}, out interface{}) int {
	t.Helper()

	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(s.baseURL + path)
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		req.Header.SetContentType(fiber.MIMEApplicationJSON)
		req.SetBody(raw)
	}

	require.NoError(t, s.client.Do(req, resp))
	if out != nil {
		require.NoError(t, json.Unmarshal(resp.Body(), out), string(resp.Body()))
	}
	return resp.StatusCode()
}

func (s *pipelineServer) observe(t *testing.T, projectID string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	conn, _, err := dialer.Dial(s.wsURL+"/"+projectID, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	var hello model.ConnectedMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, model.EventConnected, hello.Type)
	require.Equal(t, projectID, hello.ProjectID)
	return conn
}

func TestPipeline_PersistentBackend(t *testing.T) {
	srv := startPipelineServer(t)

	var boot usecase.DemoBootstrap
	require.Equal(t, fiber.StatusOK, srv.call(t, fiber.MethodGet, "/api/demo/bootstrap", nil, &boot))
	require.Len(t, boot.Leads, 8)

	var again usecase.DemoBootstrap
	require.Equal(t, fiber.StatusOK, srv.call(t, fiber.MethodGet, "/api/demo/bootstrap", nil, &again))
	assert.Equal(t, boot.ProjectID, again.ProjectID)

	var status usecase.DatabaseStatus
	require.Equal(t, fiber.StatusOK, srv.call(t, fiber.MethodGet, "/test", nil, &status))
	assert.Equal(t, "mongodb", status.StoreKind)
	assert.Equal(t, "connected", status.ConnectionStatus)
	assert.Subset(t, status.Collections, []string{model.CollectionProjects, model.CollectionUsers, model.CollectionLeads})
}

func TestPipeline_AdvanceRandomReachesObserverAndJournal(t *testing.T) {
	srv := startPipelineServer(t)

	var boot usecase.DemoBootstrap
	require.Equal(t, fiber.StatusOK, srv.call(t, fiber.MethodGet, "/api/demo/bootstrap", nil, &boot))
	conn := srv.observe(t, boot.ProjectID)

	var result struct {
		LeadID string     `json:"lead_id"`
		From   string     `json:"from"`
		To     string     `json:"to"`
		Lead   model.Lead `json:"lead"`
	}
	path := fmt.Sprintf("/api/projects/%s/advance-random", boot.ProjectID)
	require.Equal(t, fiber.StatusOK, srv.call(t, fiber.MethodPost, path, nil, &result))
	assert.Equal(t, result.To, result.Lead.CurrentStep)

	var msg model.LeadAdvancedMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, model.EventLeadAdvanced, msg.Type)
	assert.Equal(t, result.LeadID, msg.LeadID)
	assert.Equal(t, result.From, msg.From)
	assert.Equal(t, result.To, msg.To)

	var stored model.Lead
	require.Equal(t, fiber.StatusOK, srv.call(t, fiber.MethodGet, "/api/leads/"+result.LeadID, nil, &stored))
	assert.Equal(t, result.To, stored.CurrentStep)
	assert.Len(t, stored.History, len(result.Lead.History))

	if srv.module.Journal == nil {
		t.Log("LEADFLOW_TEST_REDIS_ADDR not set or unreachable, skipping journal assertions")
		return
	}

	var entries []model.JournalEntry
	require.Equal(t, fiber.StatusOK, srv.call(t, fiber.MethodGet, "/api/projects/"+boot.ProjectID+"/events?limit=5", nil, &entries))
	require.NotEmpty(t, entries)
	latest := entries[0]
	assert.Equal(t, model.EventLeadAdvanced, latest.Type)

	var journaled model.LeadAdvancedMessage
	require.NoError(t, json.Unmarshal(latest.Message, &journaled))
	assert.Equal(t, msg, journaled)
}
