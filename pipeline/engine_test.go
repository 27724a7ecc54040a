// ABOUTME: Tests for the conversion engine
// ABOUTME: Covers idempotent conversion, the derived deal lock, and deal side effects
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/breakhq/outreach/models"
	"github.com/breakhq/outreach/remote"
	"github.com/breakhq/outreach/storage"
)

// fakeRemote is a controllable in-memory stand-in for the records API.
type fakeRemote struct {
	mu      sync.Mutex
	records []models.Outreach

	failFetch  bool
	failCreate bool
	failUpdate bool
	failNotes  bool
	failTasks  bool
	failLink   bool

	createSeq int
	noteSeq   int
	taskSeq   int
	patches   []remote.RecordPayload
}

func (f *fakeRemote) TryFetchRecords(context.Context) []models.Outreach {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFetch {
		return nil
	}
	out := make([]models.Outreach, len(f.records))
	copy(out, f.records)
	return out
}

func (f *fakeRemote) CreateRecord(_ context.Context, payload remote.RecordPayload) (models.Outreach, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failCreate {
		return models.Outreach{}, errors.New("api down")
	}
	f.createSeq++
	now := time.Now()
	rec := models.Outreach{
		ID:        fmt.Sprintf("rec-%d", f.createSeq),
		Target:    payload.Target,
		Type:      payload.Type,
		Owner:     payload.Owner,
		Source:    payload.Source,
		Stage:     payload.Stage,
		Status:    payload.Status,
		Summary:   payload.Summary,
		CreatedAt: now,
		UpdatedAt: now,
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeRemote) UpdateRecord(_ context.Context, id string, patch remote.RecordPayload) (models.Outreach, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate {
		return models.Outreach{}, errors.New("api down")
	}
	f.patches = append(f.patches, patch)
	for i := range f.records {
		if f.records[i].ID != id {
			continue
		}
		r := &f.records[i]
		if patch.Target != "" {
			r.Target = patch.Target
		}
		if patch.Stage != "" {
			r.Stage = patch.Stage
		}
		if patch.Status != "" {
			r.Status = patch.Status
		}
		if patch.Owner != "" {
			r.Owner = patch.Owner
		}
		if patch.OpportunityRef != "" {
			r.OpportunityRef = patch.OpportunityRef
		}
		if patch.LastContact != nil {
			r.LastContact = patch.LastContact
		}
		r.UpdatedAt = time.Now()
		return *r, nil
	}
	return models.Outreach{ID: id}, nil
}

func (f *fakeRemote) AddNote(_ context.Context, recordID, body string) (models.Note, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNotes {
		return models.Note{}, errors.New("api down")
	}
	f.noteSeq++
	return models.Note{ID: fmt.Sprintf("apinote-%d", f.noteSeq), Body: body, CreatedAt: time.Now()}, nil
}

func (f *fakeRemote) AddTask(_ context.Context, recordID string, payload remote.TaskPayload) (models.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failTasks {
		return models.Task{}, errors.New("api down")
	}
	f.taskSeq++
	return models.Task{
		ID:       fmt.Sprintf("apitask-%d", f.taskSeq),
		Title:    payload.Title,
		DueDate:  payload.DueDate,
		Owner:    payload.Owner,
		Priority: payload.Priority,
		Status:   models.TaskStatusOpen,
	}, nil
}

func (f *fakeRemote) UpdateTask(_ context.Context, taskID string, patch remote.TaskPatch) (models.Task, error) {
	if f.failTasks {
		return models.Task{}, errors.New("api down")
	}
	task := models.Task{ID: taskID}
	if patch.Title != nil {
		task.Title = *patch.Title
	}
	if patch.Status != nil {
		task.Status = *patch.Status
	}
	return task, nil
}

func (f *fakeRemote) LinkGmailThread(context.Context, string, string) error {
	if f.failLink {
		return errors.New("api down")
	}
	return nil
}

func newTestEngine(t *testing.T) (*Engine, *fakeRemote) {
	t.Helper()
	api := &fakeRemote{}
	store := storage.Open(storage.NewMemoryKV(), nil)
	return New(store, api, nil), api
}

func seedRecord(t *testing.T, e *Engine, target string) models.Outreach {
	t.Helper()
	rec, err := e.CreateOutreach(context.Background(), remote.RecordPayload{Target: target}, false)
	require.NoError(t, err)
	return rec
}

func TestCreateOutreachDefaults(t *testing.T) {
	e, _ := newTestEngine(t)
	rec, err := e.CreateOutreach(context.Background(), remote.RecordPayload{Target: "  Acme  "}, true)
	require.NoError(t, err)

	assert.Equal(t, "Acme", rec.Target)
	assert.Equal(t, models.TypeBrand, rec.Type)
	assert.Equal(t, models.StageNotStarted, rec.Stage)
	assert.Equal(t, models.CommsNotStarted, rec.Status)
	assert.Equal(t, "Admin", rec.Owner)
	assert.True(t, e.Store().Draft(rec.ID))

	got, ok := e.Record(rec.ID)
	require.True(t, ok)
	assert.Equal(t, rec.ID, got.ID)
}

func TestCreateOutreachRequiresTarget(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.CreateOutreach(context.Background(), remote.RecordPayload{Target: "   "}, false)
	assert.Error(t, err)
}

func TestCreateOutreachFallsBackToLocal(t *testing.T) {
	e, api := newTestEngine(t)
	api.failCreate = true

	rec, err := e.CreateOutreach(context.Background(), remote.RecordPayload{Target: "Acme"}, false)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSavedLocally))
	assert.True(t, models.IsLocalID(rec.ID), "fallback records get local ids, got %s", rec.ID)

	got, ok := e.Record(rec.ID)
	require.True(t, ok, "the record exists despite the failed sync")
	assert.Equal(t, "Acme", got.Target)
}

func TestConvertToOpportunityIsIdempotent(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")

	first, err := e.ConvertToOpportunity(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme opportunity", first.Name)
	assert.Equal(t, models.OpportunityOpen, first.Status)
	assert.Equal(t, models.CommsAwaitingReply, first.CommsStatus)

	second, err := e.ConvertToOpportunity(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID, "repeat conversion returns the existing opportunity")
	assert.Len(t, e.Store().Opportunities(), 1)
}

func TestConvertCarriesRespondedStatus(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")
	require.NoError(t, e.SetStatus(context.Background(), rec.ID, models.CommsResponded))

	opp, err := e.ConvertToOpportunity(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommsResponded, opp.CommsStatus)
}

func TestConvertAfterArchiveCreatesFresh(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")

	first, err := e.ConvertToOpportunity(context.Background(), rec.ID)
	require.NoError(t, err)
	require.NoError(t, e.ArchiveOpportunity(first.ID))

	second, err := e.ConvertToOpportunity(context.Background(), rec.ID)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID, "archived opportunities do not satisfy idempotency")
}

func TestConvertUnknownRecord(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.ConvertToOpportunity(context.Background(), "nope")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLockedDerivedFromActiveDeals(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")
	assert.False(t, e.Locked(rec.ID))

	deal, err := e.SaveDeal(e.NewDealContext(rec.ID, ""), false)
	require.NoError(t, err)
	assert.True(t, e.Locked(rec.ID), "an active deal locks its outreach")

	err = e.SetStage(context.Background(), rec.ID, models.StageMeeting)
	assert.True(t, errors.Is(err, ErrOutreachLocked))
	err = e.SetStatus(context.Background(), rec.ID, models.CommsResponded)
	assert.True(t, errors.Is(err, ErrOutreachLocked))
	err = e.UpdateOutreach(context.Background(), rec.ID, remote.RecordPayload{Target: "Acme 2"}, false)
	assert.True(t, errors.Is(err, ErrOutreachLocked))

	require.NoError(t, e.ArchiveDeal(deal.ID))
	assert.False(t, e.Locked(rec.ID), "archiving the last referencing deal unlocks")
	require.NoError(t, e.SetStage(context.Background(), rec.ID, models.StageMeeting))

	require.NoError(t, e.RestoreDeal(deal.ID))
	assert.True(t, e.Locked(rec.ID), "restoring the deal re-locks")
}

func TestLockedIgnoresEmptyID(t *testing.T) {
	e, _ := newTestEngine(t)
	deal, err := e.SaveDeal(DealForm{}, true)
	require.NoError(t, err)
	assert.Empty(t, deal.OutreachID)
	assert.False(t, e.Locked(""), "unlinked deals never lock anything")
}

func TestSaveDealSideEffects(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")
	opp, err := e.ConvertToOpportunity(context.Background(), rec.ID)
	require.NoError(t, err)
	camp := e.Campaigns().Create("Summer push", "Acme", "Sam")

	form := e.NewDealContext("", opp.ID)
	form.CampaignID = camp.ID
	deal, err := e.SaveDeal(form, false)
	require.NoError(t, err)

	assert.Equal(t, "Open", deal.Status, "the opportunity cascade never touches the deal's own status")

	gotOpp, _ := e.Store().Opportunity(opp.ID)
	assert.Equal(t, models.OpportunityClosedWon, gotOpp.Status, "saving a linked deal closes the opportunity as won")

	gotCamp, _ := e.Campaigns().Campaign(camp.ID)
	assert.True(t, gotCamp.HasDeal(deal.ID))
}

func TestNewDealContextBackfillsOutreachFromOpportunity(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")
	opp, err := e.ConvertToOpportunity(context.Background(), rec.ID)
	require.NoError(t, err)

	form := e.NewDealContext("", opp.ID)
	assert.Equal(t, rec.ID, form.OutreachID, "the opportunity implies its outreach link")
	assert.Equal(t, opp.Name, form.Name)
	assert.False(t, form.NeedsConfirmation)

	deal, err := e.SaveDeal(form, false)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, deal.OutreachID)
	assert.True(t, e.Locked(rec.ID), "deals reached via opportunity still lock the outreach")
}

func TestSaveDealOrphanNeedsConfirmation(t *testing.T) {
	e, _ := newTestEngine(t)

	form := e.NewDealContext("", "")
	assert.True(t, form.NeedsConfirmation)
	assert.Equal(t, "New deal", form.Name)

	_, err := e.SaveDeal(form, false)
	assert.True(t, errors.Is(err, ErrConfirmationRequired))

	deal, err := e.SaveDeal(form, true)
	require.NoError(t, err)
	assert.Empty(t, deal.OutreachID)
	assert.Empty(t, deal.OpportunityID)
}

func TestSaveDealDefaultsName(t *testing.T) {
	e, _ := newTestEngine(t)
	deal, err := e.SaveDeal(DealForm{Name: "   "}, true)
	require.NoError(t, err)
	assert.Equal(t, "Untitled deal", deal.Name)
	assert.Equal(t, "Open", deal.Status)
	assert.Equal(t, models.CommsAwaitingReply, deal.CommsStatus)
}

func TestSaveOpportunityRequiresOutreachLink(t *testing.T) {
	e, _ := newTestEngine(t)
	_, err := e.SaveOpportunity(OpportunityForm{Name: "Floater"}, "")
	assert.True(t, errors.Is(err, ErrOutreachLinkRequired))
}

func TestSaveOpportunityEdit(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")
	opp, err := e.SaveOpportunity(OpportunityForm{OutreachID: rec.ID, Name: ""}, "")
	require.NoError(t, err)
	assert.Equal(t, "Untitled opportunity", opp.Name)

	edited, err := e.SaveOpportunity(OpportunityForm{OutreachID: rec.ID, Name: "Renamed", Value: "$5k"}, opp.ID)
	require.NoError(t, err)
	assert.Equal(t, opp.ID, edited.ID)
	assert.Equal(t, "Renamed", edited.Name)
	assert.Equal(t, "$5k", edited.Value)
	assert.Len(t, e.Store().Opportunities(), 1)
}

func TestSetDealCampaignMovesLink(t *testing.T) {
	e, _ := newTestEngine(t)
	first := e.Campaigns().Create("First", "", "")
	second := e.Campaigns().Create("Second", "", "")

	form := DealForm{Name: "Orphan", CampaignID: first.ID}
	deal, err := e.SaveDeal(form, true)
	require.NoError(t, err)

	require.NoError(t, e.SetDealCampaign(deal.ID, second.ID))

	gotFirst, _ := e.Campaigns().Campaign(first.ID)
	assert.False(t, gotFirst.HasDeal(deal.ID), "the previous campaign drops the deal id")
	gotSecond, _ := e.Campaigns().Campaign(second.ID)
	assert.True(t, gotSecond.HasDeal(deal.ID))

	gotDeal, _ := e.Store().Deal(deal.ID)
	assert.Equal(t, second.ID, gotDeal.CampaignID)
}

func TestSetDealCampaignSameIsNoop(t *testing.T) {
	e, _ := newTestEngine(t)
	camp := e.Campaigns().Create("Only", "", "")
	deal, err := e.SaveDeal(DealForm{CampaignID: camp.ID}, true)
	require.NoError(t, err)

	before, _ := e.Campaigns().Campaign(camp.ID)
	require.NoError(t, e.SetDealCampaign(deal.ID, camp.ID))
	after, _ := e.Campaigns().Campaign(camp.ID)
	assert.Equal(t, len(before.Activity), len(after.Activity), "reassigning the same campaign records nothing")
}

func TestSetDealCampaignClears(t *testing.T) {
	e, _ := newTestEngine(t)
	camp := e.Campaigns().Create("Only", "", "")
	deal, err := e.SaveDeal(DealForm{CampaignID: camp.ID}, true)
	require.NoError(t, err)

	require.NoError(t, e.SetDealCampaign(deal.ID, ""))
	gotCamp, _ := e.Campaigns().Campaign(camp.ID)
	assert.False(t, gotCamp.HasDeal(deal.ID))
	gotDeal, _ := e.Store().Deal(deal.ID)
	assert.Empty(t, gotDeal.CampaignID)
}

func TestSetStageValidation(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")

	err := e.SetStage(context.Background(), rec.ID, "negotiation")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "unknown stage"))

	require.NoError(t, e.SetStage(context.Background(), rec.ID, models.StageMeeting))
	got, _ := e.Record(rec.ID)
	assert.Equal(t, models.StageMeeting, got.Stage)
	require.NotNil(t, got.LastContact, "a successful stage move bumps last contact")
}

func TestSetStageAppliesLocallyOnFailure(t *testing.T) {
	e, api := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")
	api.failUpdate = true

	require.NoError(t, e.SetStage(context.Background(), rec.ID, models.StageFollowUp))
	got, _ := e.Record(rec.ID)
	assert.Equal(t, models.StageFollowUp, got.Stage)
	assert.Nil(t, got.LastContact, "last contact only moves when the server accepted")
}

func TestUpdateOutreachAppliesLocallyOnFailure(t *testing.T) {
	e, api := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")
	api.failUpdate = true

	require.NoError(t, e.UpdateOutreach(context.Background(), rec.ID, remote.RecordPayload{Target: "Acme Corp"}, false))
	got, _ := e.Record(rec.ID)
	assert.Equal(t, "Acme Corp", got.Target)
}

func TestArchiveRestoreOutreachRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")
	before, _ := e.Record(rec.ID)

	e.ArchiveOutreach(rec.ID)
	assert.True(t, e.Store().OutreachArchived(rec.ID))
	during, _ := e.Record(rec.ID)
	assert.Equal(t, before, during, "archival never touches the record itself")

	e.RestoreOutreach(rec.ID)
	assert.False(t, e.Store().OutreachArchived(rec.ID))
	after, _ := e.Record(rec.ID)
	assert.Equal(t, before, after)
}

func TestArchiveRestoreDealRoundTrip(t *testing.T) {
	e, _ := newTestEngine(t)
	deal, err := e.SaveDeal(DealForm{Name: "Orphan"}, true)
	require.NoError(t, err)

	require.NoError(t, e.ArchiveDeal(deal.ID))
	archived, _ := e.Store().Deal(deal.ID)
	require.NotNil(t, archived.ArchivedAt)
	assert.Equal(t, deal.UpdatedAt.Unix(), archived.UpdatedAt.Unix(), "archiving only sets the archive timestamp")

	require.NoError(t, e.RestoreDeal(deal.ID))
	restored, _ := e.Store().Deal(deal.ID)
	assert.Nil(t, restored.ArchivedAt)
	restored.ArchivedAt = deal.ArchivedAt
	assert.Equal(t, deal, restored, "restore returns the deal to its pre-archive state")
}

func TestLogTouchpoint(t *testing.T) {
	e, _ := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")

	require.NoError(t, e.LogTouchpoint(context.Background(), rec.ID, "left a voicemail"))

	notes := e.Ledger().NotesFor(models.EntityOutreach, rec.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, "left a voicemail", notes[0].Body)

	got, _ := e.Record(rec.ID)
	require.NotNil(t, got.LastContact)
}

func TestLogTouchpointRejectsEmpty(t *testing.T) {
	e, _ := newTestEngine(t)
	assert.Error(t, e.LogTouchpoint(context.Background(), "rec-1", "  "))
}

func TestLinkThread(t *testing.T) {
	e, api := newTestEngine(t)
	rec := seedRecord(t, e, "Acme")

	require.NoError(t, e.LinkThread(context.Background(), rec.ID, "thread-9"))
	got, _ := e.Record(rec.ID)
	assert.Equal(t, "thread-9", got.GmailThreadID)

	api.failLink = true
	assert.Error(t, e.LinkThread(context.Background(), rec.ID, "thread-10"))
	got, _ = e.Record(rec.ID)
	assert.Equal(t, "thread-9", got.GmailThreadID, "a failed link leaves the old thread in place")
}

func TestLoadRecordsStripsEmbeddedNotes(t *testing.T) {
	e, api := newTestEngine(t)
	api.records = []models.Outreach{
		{
			ID:     "rec-1",
			Target: "Acme",
			Notes:  []models.Note{{ID: "apinote-1", Body: "embedded"}},
			Tasks:  []models.Task{{ID: "apitask-1", Title: "embedded"}},
		},
	}

	e.LoadRecords(context.Background())

	rec, ok := e.Record("rec-1")
	require.True(t, ok)
	assert.Nil(t, rec.Notes, "notes live in the ledger, not on the record")
	assert.Nil(t, rec.Tasks)

	assert.Len(t, e.Ledger().NotesFor(models.EntityOutreach, "rec-1"), 1)
	assert.Len(t, e.Ledger().TasksFor(models.EntityOutreach, "rec-1"), 1)
}

func TestFullPipelineScenario(t *testing.T) {
	e, _ := newTestEngine(t)
	ctx := context.Background()

	rec, err := e.CreateOutreach(ctx, remote.RecordPayload{Target: "Acme", Owner: "Sam"}, false)
	require.NoError(t, err)

	require.NoError(t, e.SetStage(ctx, rec.ID, models.StageInitialEmail))
	require.NoError(t, e.SetStatus(ctx, rec.ID, models.CommsResponded))
	require.NoError(t, e.SetStage(ctx, rec.ID, models.StageMeeting))

	opp, err := e.ConvertToOpportunity(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, models.CommsResponded, opp.CommsStatus)

	camp := e.Campaigns().Create("Summer push", "Acme", "Sam")
	form := e.NewDealContext(rec.ID, opp.ID)
	require.False(t, form.NeedsConfirmation)
	form.CampaignID = camp.ID
	form.Value = "$10k"

	deal, err := e.SaveDeal(form, false)
	require.NoError(t, err)

	// Every side effect in one pass
	assert.True(t, e.Locked(rec.ID))
	gotOpp, _ := e.Store().Opportunity(opp.ID)
	assert.Equal(t, models.OpportunityClosedWon, gotOpp.Status)
	gotCamp, _ := e.Campaigns().Campaign(camp.ID)
	assert.True(t, gotCamp.HasDeal(deal.ID))

	err = e.SetStage(ctx, rec.ID, models.StageClosedWon)
	assert.True(t, errors.Is(err, ErrOutreachLocked))

	require.NoError(t, e.ArchiveDeal(deal.ID))
	assert.False(t, e.Locked(rec.ID))
	require.NoError(t, e.SetStage(ctx, rec.ID, models.StageClosedWon))
}
