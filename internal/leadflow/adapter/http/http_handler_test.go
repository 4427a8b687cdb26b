package http

import (
	"bytes"
	"context"
	"encoding/json"
	stdErrors "errors"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"leadflow/internal/leadflow/adapter/persistence"
	"leadflow/internal/leadflow/adapter/persistence/memory"
	"leadflow/internal/leadflow/config"
	"leadflow/internal/leadflow/domain/model"
	"leadflow/internal/leadflow/domain/repository"
	"leadflow/internal/leadflow/usecase"
	"leadflow/internal/shared/eventbus"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

var fixedNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

// eventRecorder collects every pipeline event published on the bus.
type eventRecorder struct {
	mu     sync.Mutex
	events []model.PipelineEvent
}

func (r *eventRecorder) handle(ctx context.Context, e eventbus.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e.Data().(model.PipelineEvent))
	return nil
}

func (r *eventRecorder) all() []model.PipelineEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.PipelineEvent(nil), r.events...)
}

type testServer struct {
	app    *fiber.App
	repo   *persistence.DocumentRepository
	events *eventRecorder
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memory.NewDocumentStore()
	repo := persistence.NewDocumentRepository(store, func() time.Time { return fixedNow })

	bus := eventbus.NewEventBus(nil)
	rec := &eventRecorder{}
	for _, et := range model.PipelineEventTypes {
		bus.Subscribe(string(et), rec.handle)
	}

	h := NewHTTPHandler(
		usecase.NewLeadUsecase(repo, nil, func(n int) int { return 0 }, nil),
		usecase.NewProjectUsecase(repo, nil, nil),
		usecase.NewDemoUsecase(repo, config.DemoConfig{ProjectName: "Demo", LeadCount: 6}, nil, nil),
		usecase.NewStatusUsecase(store, usecase.BackendInfo{Kind: "memory"}),
		bus,
		nil,
	)

	app := fiber.New()
	app.Use(RequestID())
	h.RegisterRoutes(app)
	return &testServer{app: app, repo: repo, events: rec}
}

func (s *testServer) do(t *testing.T, method, path string, body interface{}) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, out
}

func (s *testServer) seed(t *testing.T) (*model.Project, *model.Lead) {
	t.Helper()
	ctx := context.Background()
	pid, err := s.repo.CreateDocument(ctx, model.CollectionProjects, model.NewProject("Sales", []string{"New", "Qualified", "Closed"}, fixedNow))
	require.NoError(t, err)
	lid, err := s.repo.CreateDocument(ctx, model.CollectionLeads, model.NewLead("Ada", pid, "New", fixedNow))
	require.NoError(t, err)
	project, err := s.repo.GetProject(ctx, pid)
	require.NoError(t, err)
	lead, err := s.repo.GetLead(ctx, lid)
	require.NoError(t, err)
	return project, lead
}

func decode(t *testing.T, raw []byte, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v), string(raw))
}

func TestRoot(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/", nil)
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "Leadflow Backend Running", body["message"])
}

func TestRequestID_EchoesCallerID(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	resp, err := s.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "req-123", resp.Header.Get(RequestIDHeader))
}

func TestAdvanceLead(t *testing.T) {
	s := newTestServer(t)
	project, lead := s.seed(t)

	status, raw := s.do(t, "POST", "/api/leads/"+lead.ID.Hex()+"/advance", nil)
	require.Equal(t, 200, status, string(raw))

	var got model.Lead
	decode(t, raw, &got)
	assert.Equal(t, "Qualified", got.CurrentStep)
	assert.Len(t, got.History, 2)

	events := s.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, project.ID.Hex(), events[0].ProjectID)
	assert.Equal(t, model.LeadAdvancedMessage{
		Type:   model.EventLeadAdvanced,
		LeadID: lead.ID.Hex(),
		From:   "New",
		To:     "Qualified",
	}, events[0].Message)

	status, raw = s.do(t, "POST", "/api/leads/"+lead.ID.Hex()+"/advance", AdvanceLeadRequest{ToStep: "Closed"})
	require.Equal(t, 200, status, string(raw))
	decode(t, raw, &got)
	assert.Equal(t, "Closed", got.CurrentStep)
	assert.Equal(t, model.LeadStatusWon, got.Status)
}

func TestAdvanceLead_Errors(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		path    string
		status  int
		code    string
		message string
	}{
		{"malformed id", "/api/leads/xyz/advance", 400, "invalid_id", "Invalid ID format"},
		{"unknown lead", "/api/leads/" + primitive.NewObjectID().Hex() + "/advance", 404, "not_found", "Lead not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, raw := s.do(t, "POST", tt.path, nil)
			assert.Equal(t, tt.status, status)

			var body map[string]string
			decode(t, raw, &body)
			assert.Equal(t, tt.code, body["error"])
			assert.Equal(t, tt.message, body["message"])
		})
	}

	t.Run("orphaned lead", func(t *testing.T) {
		lid, err := s.repo.CreateDocument(context.Background(), model.CollectionLeads,
			model.NewLead("Orphan", primitive.NewObjectID().Hex(), "New", fixedNow))
		require.NoError(t, err)

		status, raw := s.do(t, "POST", "/api/leads/"+lid+"/advance", nil)
		assert.Equal(t, 400, status)
		var body map[string]string
		decode(t, raw, &body)
		assert.Equal(t, "invalid_reference", body["error"])
	})

	assert.Empty(t, s.events.all())
}

func TestCreateLead(t *testing.T) {
	s := newTestServer(t)
	project, _ := s.seed(t)

	status, raw := s.do(t, "POST", "/api/leads", usecase.CreateLeadRequest{
		Name:      "Grace",
		ProjectID: project.ID.Hex(),
		Source:    "Website",
	})
	require.Equal(t, 201, status, string(raw))

	var got model.Lead
	decode(t, raw, &got)
	assert.Equal(t, "New", got.CurrentStep)
	assert.Equal(t, "Website", got.Source)

	events := s.events.all()
	require.Len(t, events, 1)
	assert.Equal(t, model.EventLeadCreated, events[0].Type())

	status, _ = s.do(t, "POST", "/api/leads", usecase.CreateLeadRequest{ProjectID: project.ID.Hex()})
	assert.Equal(t, 400, status)

	status, _ = s.do(t, "POST", "/api/leads", map[string]interface{}{"name": 12})
	assert.Equal(t, 400, status)
}

func TestListLeads(t *testing.T) {
	s := newTestServer(t)
	project, _ := s.seed(t)
	s.seed(t)

	status, raw := s.do(t, "GET", "/api/leads?project_id="+project.ID.Hex(), nil)
	require.Equal(t, 200, status)
	var leads []model.Lead
	decode(t, raw, &leads)
	require.Len(t, leads, 1)
	assert.Equal(t, project.ID.Hex(), leads[0].ProjectID)

	status, raw = s.do(t, "GET", "/api/leads?limit=1", nil)
	require.Equal(t, 200, status)
	decode(t, raw, &leads)
	assert.Len(t, leads, 1)

	status, raw = s.do(t, "GET", "/api/leads", nil)
	require.Equal(t, 200, status)
	decode(t, raw, &leads)
	assert.Len(t, leads, 2)

	status, _ = s.do(t, "GET", "/api/leads?limit=-2", nil)
	assert.Equal(t, 400, status)
}

func TestGetLead(t *testing.T) {
	s := newTestServer(t)
	_, lead := s.seed(t)

	status, raw := s.do(t, "GET", "/api/leads/"+lead.ID.Hex(), nil)
	require.Equal(t, 200, status)
	var got model.Lead
	decode(t, raw, &got)
	assert.Equal(t, lead.ID, got.ID)

	status, _ = s.do(t, "GET", "/api/leads/"+primitive.NewObjectID().Hex(), nil)
	assert.Equal(t, 404, status)
}

func TestAssignLeadAndNotes(t *testing.T) {
	s := newTestServer(t)
	_, lead := s.seed(t)
	uid, err := s.repo.CreateDocument(context.Background(), model.CollectionUsers,
		model.NewUser("Sam", "sam@example.com", model.RoleSetter, fixedNow))
	require.NoError(t, err)

	status, raw := s.do(t, "POST", "/api/leads/"+lead.ID.Hex()+"/assign", AssignLeadRequest{UserID: uid})
	require.Equal(t, 200, status, string(raw))
	var got model.Lead
	decode(t, raw, &got)
	assert.Equal(t, uid, got.Assignee())

	status, raw = s.do(t, "POST", "/api/leads/"+lead.ID.Hex()+"/notes", usecase.AddNoteRequest{AuthorID: uid, Content: "Left a voicemail"})
	require.Equal(t, 201, status, string(raw))
	var note model.Note
	decode(t, raw, &note)
	assert.Equal(t, "Left a voicemail", note.Content)

	status, raw = s.do(t, "POST", "/api/leads/"+lead.ID.Hex()+"/assign", nil)
	require.Equal(t, 200, status, string(raw))
	decode(t, raw, &got)
	assert.Nil(t, got.AssignedTo)

	var types []model.EventType
	for _, e := range s.events.all() {
		types = append(types, e.Type())
	}
	assert.Equal(t, []model.EventType{model.EventLeadAssigned, model.EventLeadNoteAdded, model.EventLeadAssigned}, types)

	unassigned := s.events.all()[2].Message.(model.LeadAssignedMessage)
	assert.Nil(t, unassigned.AssignedTo)
}

func TestProjectRoutes(t *testing.T) {
	s := newTestServer(t)
	project, _ := s.seed(t)
	pid := project.ID.Hex()
	uid, err := s.repo.CreateDocument(context.Background(), model.CollectionUsers,
		model.NewUser("Alice", "alice@example.com", model.RoleAdmin, fixedNow))
	require.NoError(t, err)

	status, raw := s.do(t, "GET", "/api/projects", nil)
	require.Equal(t, 200, status)
	var projects []model.Project
	decode(t, raw, &projects)
	assert.Len(t, projects, 1)

	status, _ = s.do(t, "GET", "/api/projects/"+pid, nil)
	assert.Equal(t, 200, status)
	status, _ = s.do(t, "GET", "/api/projects/"+primitive.NewObjectID().Hex(), nil)
	assert.Equal(t, 404, status)

	status, _ = s.do(t, "POST", "/api/projects/"+pid+"/members", AddMemberRequest{})
	assert.Equal(t, 400, status)

	status, raw = s.do(t, "POST", "/api/projects/"+pid+"/members", AddMemberRequest{UserID: uid})
	require.Equal(t, 200, status, string(raw))
	var updated model.Project
	decode(t, raw, &updated)
	assert.Equal(t, []string{uid}, updated.Members)

	status, raw = s.do(t, "GET", "/api/projects/"+pid+"/members", nil)
	require.Equal(t, 200, status)
	var users []model.User
	decode(t, raw, &users)
	require.Len(t, users, 1)
	assert.Equal(t, "Alice", users[0].Name)

	status, raw = s.do(t, "GET", "/api/projects/"+pid+"/events", nil)
	require.Equal(t, 200, status)
	assert.JSONEq(t, `[]`, string(raw))
}

func TestAdvanceRandom(t *testing.T) {
	s := newTestServer(t)
	project, lead := s.seed(t)

	status, raw := s.do(t, "POST", "/api/projects/"+project.ID.Hex()+"/advance-random", nil)
	require.Equal(t, 200, status, string(raw))
	var body struct {
		LeadID string `json:"lead_id"`
		From   string `json:"from"`
		To     string `json:"to"`
	}
	decode(t, raw, &body)
	assert.Equal(t, lead.ID.Hex(), body.LeadID)
	assert.Equal(t, "New", body.From)
	assert.Equal(t, "Qualified", body.To)
	assert.Len(t, s.events.all(), 1)

	pid, err := s.repo.CreateDocument(context.Background(), model.CollectionProjects, model.NewProject("Empty", []string{"A"}, fixedNow))
	require.NoError(t, err)
	status, raw = s.do(t, "POST", "/api/projects/"+pid+"/advance-random", nil)
	assert.Equal(t, 404, status)
	var errBody map[string]string
	decode(t, raw, &errBody)
	assert.Equal(t, "No leads in project", errBody["message"])
}

func TestDemoBootstrapAndStatus(t *testing.T) {
	s := newTestServer(t)

	status, raw := s.do(t, "GET", "/api/demo/bootstrap", nil)
	require.Equal(t, 200, status, string(raw))
	var boot struct {
		ProjectID string       `json:"project_id"`
		Steps     []string     `json:"steps"`
		Users     []model.User `json:"users"`
		Leads     []model.Lead `json:"leads"`
	}
	decode(t, raw, &boot)
	assert.Equal(t, usecase.DemoSteps, boot.Steps)
	assert.Len(t, boot.Users, 4)
	assert.Len(t, boot.Leads, 6)

	status, raw = s.do(t, "GET", "/api/demo/bootstrap", nil)
	require.Equal(t, 200, status)
	var again struct {
		ProjectID string `json:"project_id"`
	}
	decode(t, raw, &again)
	assert.Equal(t, boot.ProjectID, again.ProjectID)

	status, raw = s.do(t, "GET", "/test", nil)
	require.Equal(t, 200, status)
	var dbStatus usecase.DatabaseStatus
	decode(t, raw, &dbStatus)
	assert.Equal(t, "running", dbStatus.Backend)
	assert.Equal(t, "in-memory", dbStatus.ConnectionStatus)
	assert.ElementsMatch(t, []string{model.CollectionLeads, model.CollectionProjects, model.CollectionUsers}, dbStatus.Collections)
}

type MockLeadUsecase struct {
	mock.Mock
	usecase.LeadUsecase
}

func (m *MockLeadUsecase) GetLead(ctx context.Context, leadID string) (*model.Lead, error) {
	args := m.Called(ctx, leadID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Lead), args.Error(1)
}

func (m *MockLeadUsecase) ListLeads(ctx context.Context, q repository.LeadQuery) ([]*model.Lead, error) {
	args := m.Called(ctx, q)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*model.Lead), args.Error(1)
}

func TestUnexpectedErrorsAre500(t *testing.T) {
	uc := new(MockLeadUsecase)
	uc.On("GetLead", mock.Anything, "abc").Return(nil, stdErrors.New("socket closed"))
	uc.On("ListLeads", mock.Anything, repository.LeadQuery{Status: model.LeadStatusWon, Limit: 3}).
		Return([]*model.Lead{}, nil)

	app := fiber.New()
	NewHTTPHandler(uc, nil, nil, nil, nil, nil).RegisterRoutes(app)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/leads/abc", nil))
	require.NoError(t, err)
	assert.Equal(t, 500, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "internal_error", body["error"])
	assert.Equal(t, "socket closed", body["message"])

	resp, err = app.Test(httptest.NewRequest("GET", "/api/leads?status=won&limit=3", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	uc.AssertExpectations(t)
}
