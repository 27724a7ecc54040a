// ABOUTME: Tests for the JSON route table
// ABOUTME: Exercises board, metrics, and filtered endpoints over httptest
package web

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breakhq/outreach/models"
	"github.com/breakhq/outreach/pipeline"
	"github.com/breakhq/outreach/remote"
	"github.com/breakhq/outreach/storage"
)

// stubRemote serves a fixed record set and accepts every mutation.
type stubRemote struct {
	records []models.Outreach
}

func (s *stubRemote) TryFetchRecords(context.Context) []models.Outreach {
	return s.records
}

func (s *stubRemote) CreateRecord(_ context.Context, payload remote.RecordPayload) (models.Outreach, error) {
	return models.Outreach{ID: "rec-new", Target: payload.Target}, nil
}

func (s *stubRemote) UpdateRecord(_ context.Context, id string, _ remote.RecordPayload) (models.Outreach, error) {
	return models.Outreach{ID: id}, nil
}

func (s *stubRemote) AddNote(_ context.Context, _, body string) (models.Note, error) {
	return models.Note{ID: "apinote-1", Body: body, CreatedAt: time.Now()}, nil
}

func (s *stubRemote) AddTask(_ context.Context, _ string, payload remote.TaskPayload) (models.Task, error) {
	return models.Task{ID: "apitask-1", Title: payload.Title, Status: models.TaskStatusOpen}, nil
}

func (s *stubRemote) UpdateTask(_ context.Context, taskID string, _ remote.TaskPatch) (models.Task, error) {
	return models.Task{ID: taskID}, nil
}

func (s *stubRemote) LinkGmailThread(context.Context, string, string) error { return nil }

func newTestServer(t *testing.T) (*Server, *pipeline.Engine) {
	t.Helper()
	now := time.Now()
	api := &stubRemote{records: []models.Outreach{
		{ID: "rec-1", Target: "Acme", Owner: "Sam", Stage: models.StageMeeting, EmailsSent: 3, EmailsReplies: 1, CreatedAt: now, UpdatedAt: now},
		{ID: "rec-2", Target: "Bolt", Stage: models.StageNotStarted, CreatedAt: now, UpdatedAt: now},
	}}
	store := storage.Open(storage.NewMemoryKV(), nil)
	engine := pipeline.New(store, api, nil)
	engine.LoadRecords(context.Background())
	return NewServer(engine, nil), engine
}

func getJSON(t *testing.T, h http.Handler, path string) map[string]json.RawMessage {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	return body
}

func TestBoardEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	body := getJSON(t, srv.Handler(), "/api/board")

	var board []struct {
		ID    string            `json:"id"`
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(body["board"], &board))
	require.Len(t, board, len(models.Stages))
	assert.Equal(t, models.StageNotStarted, board[0].ID)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)
	body := getJSON(t, srv.Handler(), "/api/metrics")

	var m pipeline.Metrics
	require.NoError(t, json.Unmarshal(body["metrics"], &m))
	assert.Equal(t, 1, m.TotalOutreach)
	assert.Equal(t, 33, m.ResponseRate)
}

func TestRecordsEndpointFilters(t *testing.T) {
	srv, _ := newTestServer(t)

	var records []pipeline.RecordView
	body := getJSON(t, srv.Handler(), "/api/records")
	require.NoError(t, json.Unmarshal(body["records"], &records))
	assert.Len(t, records, 2)

	body = getJSON(t, srv.Handler(), "/api/records?owner=Sam")
	records = nil
	require.NoError(t, json.Unmarshal(body["records"], &records))
	require.Len(t, records, 1)
	assert.Equal(t, "rec-1", records[0].ID)
}

func TestRecordsEndpointArchivedParam(t *testing.T) {
	srv, engine := newTestServer(t)
	engine.ArchiveOutreach("rec-2")

	var records []pipeline.RecordView
	body := getJSON(t, srv.Handler(), "/api/records")
	require.NoError(t, json.Unmarshal(body["records"], &records))
	assert.Len(t, records, 1)

	body = getJSON(t, srv.Handler(), "/api/records?archived=true")
	records = nil
	require.NoError(t, json.Unmarshal(body["records"], &records))
	assert.Len(t, records, 2)
}

func TestNotesEndpointScoping(t *testing.T) {
	srv, engine := newTestServer(t)
	_, err := engine.Ledger().AddNote(context.Background(), models.EntityDeal, "deal-1", "", "kickoff")
	require.NoError(t, err)
	_, err = engine.Ledger().AddNote(context.Background(), models.EntityOutreach, "rec-1", "", "pitched")
	require.NoError(t, err)

	var notes []models.Note
	body := getJSON(t, srv.Handler(), "/api/notes")
	require.NoError(t, json.Unmarshal(body["notes"], &notes))
	assert.Len(t, notes, 2)

	body = getJSON(t, srv.Handler(), "/api/notes?entityType=deal&entityId=deal-1")
	notes = nil
	require.NoError(t, json.Unmarshal(body["notes"], &notes))
	require.Len(t, notes, 1)
	assert.Equal(t, "kickoff", notes[0].Body)
}

func TestDealsAndCampaignsEndpoints(t *testing.T) {
	srv, engine := newTestServer(t)
	camp := engine.Campaigns().Create("Summer push", "Acme", "Sam")
	form := engine.NewDealContext("rec-1", "")
	form.CampaignID = camp.ID
	_, err := engine.SaveDeal(form, false)
	require.NoError(t, err)

	var deals []models.Deal
	body := getJSON(t, srv.Handler(), "/api/deals")
	require.NoError(t, json.Unmarshal(body["deals"], &deals))
	require.Len(t, deals, 1)
	assert.Equal(t, camp.ID, deals[0].CampaignID)

	var campsOut []models.Campaign
	body = getJSON(t, srv.Handler(), "/api/campaigns")
	require.NoError(t, json.Unmarshal(body["campaigns"], &campsOut))
	require.Len(t, campsOut, 1)
	assert.Equal(t, []string{deals[0].ID}, campsOut[0].LinkedDealIDs)
}
