// ABOUTME: Conversion engine mediating the Outreach -> Opportunity -> Deal progression
// ABOUTME: Enforces the derived lock, idempotent conversion, and side effects on deal save
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/breakhq/outreach/campaigns"
	"github.com/breakhq/outreach/ledger"
	"github.com/breakhq/outreach/models"
	"github.com/breakhq/outreach/remote"
	"github.com/breakhq/outreach/storage"
)

var (
	// ErrNotFound is returned when the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrOutreachLocked is returned when a non-archived deal references the
	// outreach: its stage, status, and parent record are read-only until the
	// deal is archived.
	ErrOutreachLocked = errors.New("outreach has been converted to a deal and is read-only")
	// ErrConfirmationRequired is returned when saving a deal with no outreach
	// or opportunity link without an explicit confirmation.
	ErrConfirmationRequired = errors.New("deal has no outreach link, confirmation required")
	// ErrOutreachLinkRequired is returned when saving an opportunity without
	// its mandatory outreach link.
	ErrOutreachLinkRequired = errors.New("opportunities must be linked to an outreach record")
	// ErrSavedLocally wraps a remote create failure after the record has been
	// kept in local state with a fallback id. Non-fatal: the record exists.
	ErrSavedLocally = errors.New("record saved locally only")
)

// Remote is the records API surface the engine consumes.
type Remote interface {
	TryFetchRecords(ctx context.Context) []models.Outreach
	CreateRecord(ctx context.Context, payload remote.RecordPayload) (models.Outreach, error)
	UpdateRecord(ctx context.Context, id string, patch remote.RecordPayload) (models.Outreach, error)
	LinkGmailThread(ctx context.Context, recordID, threadID string) error
	ledger.API
}

// Engine owns the in-memory outreach records plus the local stores, and
// mediates every pipeline mutation. In-memory state is applied first; the
// remote call either confirms it or is logged and left to diverge.
type Engine struct {
	store     *storage.Store
	api       Remote
	log       *logrus.Logger
	ledger    *ledger.Ledger
	campaigns *campaigns.Ledger

	mu      sync.Mutex
	records []models.Outreach
}

func New(store *storage.Store, api Remote, log *logrus.Logger) *Engine {
	if log == nil {
		log = logrus.New()
	}
	return &Engine{
		store:     store,
		api:       api,
		log:       log,
		ledger:    ledger.New(store, api, log),
		campaigns: campaigns.New(store, log),
	}
}

// Ledger exposes the note/task ledger.
func (e *Engine) Ledger() *ledger.Ledger {
	return e.ledger
}

// Campaigns exposes the campaign linkage ledger.
func (e *Engine) Campaigns() *campaigns.Ledger {
	return e.campaigns
}

// Store exposes the local entity store.
func (e *Engine) Store() *storage.Store {
	return e.store
}

// LoadRecords refreshes the in-memory outreach records from the API and
// rebuilds the ledger's server-backed note and task collections. A failed
// fetch looks identical to an empty account.
func (e *Engine) LoadRecords(ctx context.Context) {
	records := e.api.TryFetchRecords(ctx)
	e.ledger.SetFromRecords(records)
	for i := range records {
		records[i].Notes = nil
		records[i].Tasks = nil
	}
	e.mu.Lock()
	e.records = records
	e.mu.Unlock()
}

// Records returns a copy of the in-memory outreach records.
func (e *Engine) Records() []models.Outreach {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.Outreach, len(e.records))
	copy(out, e.records)
	return out
}

// Record returns the outreach record with the given id.
func (e *Engine) Record(id string) (models.Outreach, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, r := range e.records {
		if r.ID == id {
			return r, true
		}
	}
	return models.Outreach{}, false
}

// Locked reports whether any non-archived deal references the outreach id.
// There is no stored lock flag; archiving the last referencing deal unlocks
// the outreach again.
func (e *Engine) Locked(outreachID string) bool {
	if outreachID == "" {
		return false
	}
	for _, d := range e.store.Deals() {
		if !d.Archived() && d.OutreachID == outreachID {
			return true
		}
	}
	return false
}

// CreateOutreach creates a record server-side. When the API rejects or is
// unreachable the record is kept anyway under a local fallback id and the
// returned error wraps ErrSavedLocally; callers should surface a warning and
// carry on.
func (e *Engine) CreateOutreach(ctx context.Context, payload remote.RecordPayload, draft bool) (models.Outreach, error) {
	payload.Target = strings.TrimSpace(payload.Target)
	if payload.Target == "" {
		return models.Outreach{}, fmt.Errorf("outreach target is required")
	}
	if payload.Type == "" {
		payload.Type = models.TypeBrand
	}
	if payload.Stage == "" {
		payload.Stage = models.StageNotStarted
	}
	if payload.Status == "" {
		payload.Status = models.CommsNotStarted
	}
	if payload.Owner == "" {
		payload.Owner = "Admin"
	}
	if payload.Source == "" {
		payload.Source = "Manual"
	}

	rec, err := e.api.CreateRecord(ctx, payload)
	if err != nil {
		e.log.WithError(err).Warn("outreach create failed, keeping record locally")
		now := time.Now()
		rec = models.Outreach{
			ID:           models.MintID("local"),
			Target:       payload.Target,
			Type:         payload.Type,
			Contact:      payload.Contact,
			ContactEmail: payload.ContactEmail,
			Link:         payload.Link,
			Owner:        payload.Owner,
			Source:       payload.Source,
			Stage:        payload.Stage,
			Status:       payload.Status,
			Summary:      payload.Summary,
			Reminder:     payload.Reminder,
			ThreadURL:    payload.ThreadURL,
			LastContact:  payload.LastContact,
			NextFollowUp: payload.NextFollowUp,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		e.prependRecord(rec)
		e.store.SetDraft(rec.ID, draft)
		return rec, fmt.Errorf("%w: %v", ErrSavedLocally, err)
	}

	e.prependRecord(rec)
	e.store.SetDraft(rec.ID, draft)
	return rec, nil
}

// UpdateOutreach edits a record. Blocked while the outreach is locked. A
// failed remote patch is applied to in-memory state anyway; the views stay
// consistent even if the server now disagrees.
func (e *Engine) UpdateOutreach(ctx context.Context, id string, payload remote.RecordPayload, draft bool) error {
	if _, ok := e.Record(id); !ok {
		return ErrNotFound
	}
	if e.Locked(id) {
		return ErrOutreachLocked
	}

	updated, err := e.api.UpdateRecord(ctx, id, payload)
	if err != nil {
		e.log.WithError(err).Error("failed to update outreach record, applying locally")
		e.patchRecord(id, payload)
		e.store.SetDraft(id, draft)
		return nil
	}

	e.replaceRecord(updated)
	e.store.SetDraft(id, draft)
	return nil
}

// SetStage moves an outreach record to a stage. Any stage can follow any
// other; the only guard is the derived deal lock. On success the server also
// gets a lastContact bump; on failure only the stage is applied locally.
func (e *Engine) SetStage(ctx context.Context, id, stage string) error {
	if !models.ValidStage(stage) {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if _, ok := e.Record(id); !ok {
		return ErrNotFound
	}
	if e.Locked(id) {
		return ErrOutreachLocked
	}

	now := time.Now()
	if _, err := e.api.UpdateRecord(ctx, id, remote.RecordPayload{Stage: stage, LastContact: &now}); err != nil {
		e.log.WithError(err).Error("failed to set stage, applying locally")
		e.mutateRecord(id, func(r *models.Outreach) {
			r.Stage = stage
		})
		return nil
	}

	e.mutateRecord(id, func(r *models.Outreach) {
		r.Stage = stage
		r.LastContact = &now
	})
	return nil
}

// SetStatus changes the comms status of an outreach record, with the same
// lock guard and optimistic fallback as SetStage.
func (e *Engine) SetStatus(ctx context.Context, id, status string) error {
	if _, ok := e.Record(id); !ok {
		return ErrNotFound
	}
	if e.Locked(id) {
		return ErrOutreachLocked
	}

	if _, err := e.api.UpdateRecord(ctx, id, remote.RecordPayload{Status: status}); err != nil {
		e.log.WithError(err).Error("failed to set status, applying locally")
	}
	e.mutateRecord(id, func(r *models.Outreach) {
		r.Status = status
	})
	return nil
}

// LogTouchpoint adds a summary note to a record and bumps its lastContact.
func (e *Engine) LogTouchpoint(ctx context.Context, recordID, summary string) error {
	if strings.TrimSpace(summary) == "" {
		return fmt.Errorf("touchpoint summary is empty")
	}
	if _, err := e.ledger.AddNote(ctx, models.EntityOutreach, recordID, "", summary); err != nil {
		return err
	}
	now := time.Now()
	if _, err := e.api.UpdateRecord(ctx, recordID, remote.RecordPayload{LastContact: &now}); err != nil {
		e.log.WithError(err).Error("failed to bump last contact")
		return nil
	}
	e.mutateRecord(recordID, func(r *models.Outreach) {
		r.LastContact = &now
	})
	return nil
}

// LinkThread associates a Gmail thread with a record.
func (e *Engine) LinkThread(ctx context.Context, recordID, threadID string) error {
	if _, ok := e.Record(recordID); !ok {
		return ErrNotFound
	}
	if err := e.api.LinkGmailThread(ctx, recordID, threadID); err != nil {
		return err
	}
	e.mutateRecord(recordID, func(r *models.Outreach) {
		r.GmailThreadID = threadID
	})
	return nil
}

// ArchiveOutreach adds the record to the archived id set. Soft and
// reversible; the record itself is untouched.
func (e *Engine) ArchiveOutreach(id string) {
	e.store.ArchiveOutreach(id)
}

// RestoreOutreach removes the record from the archived id set.
func (e *Engine) RestoreOutreach(id string) {
	e.store.RestoreOutreach(id)
}

// ConvertToOpportunity promotes an outreach record. If an active opportunity
// already references the record it is returned as-is, so converting twice
// never duplicates. The server is told about the opportunityRef on a
// best-effort basis; local state is the source of truth.
func (e *Engine) ConvertToOpportunity(ctx context.Context, outreachID string) (models.Opportunity, error) {
	rec, ok := e.Record(outreachID)
	if !ok {
		return models.Opportunity{}, ErrNotFound
	}

	for _, opp := range e.store.Opportunities() {
		if opp.OutreachID == outreachID && !opp.Archived() {
			return opp, nil
		}
	}

	now := time.Now()
	comms := models.CommsAwaitingReply
	if rec.Status == models.CommsResponded {
		comms = models.CommsResponded
	}
	created := models.Opportunity{
		ID:          models.MintID("opp"),
		OutreachID:  outreachID,
		Name:        fmt.Sprintf("%s opportunity", rec.Target),
		Status:      models.OpportunityOpen,
		ThreadURL:   rec.ThreadURL,
		CommsStatus: comms,
		LastContact: rec.LastContact,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	e.store.PrependOpportunity(created)

	if _, err := e.api.UpdateRecord(ctx, outreachID, remote.RecordPayload{OpportunityRef: created.ID}); err != nil {
		// Best-effort notify; local state wins
		e.log.WithError(err).Debug("failed to record opportunity ref on outreach")
	}

	return created, nil
}

// OpportunityForm carries the editable opportunity fields.
type OpportunityForm struct {
	OutreachID    string
	Name          string
	Value         string
	ExpectedClose *time.Time
	Status        string
	Notes         string
	ThreadURL     string
	CommsStatus   string
	LastContact   *time.Time
}

// SaveOpportunity creates an opportunity, or edits one when editingID is
// non-empty. The outreach link is mandatory and immutable.
func (e *Engine) SaveOpportunity(form OpportunityForm, editingID string) (models.Opportunity, error) {
	if form.OutreachID == "" {
		return models.Opportunity{}, ErrOutreachLinkRequired
	}
	name := strings.TrimSpace(form.Name)
	if name == "" {
		name = "Untitled opportunity"
	}
	status := form.Status
	if status == "" {
		status = models.OpportunityOpen
	}
	comms := form.CommsStatus
	if comms == "" {
		comms = models.CommsAwaitingReply
	}

	if editingID != "" {
		ok := e.store.UpdateOpportunity(editingID, func(o *models.Opportunity) {
			o.Name = name
			o.Value = form.Value
			o.ExpectedClose = form.ExpectedClose
			o.Status = status
			o.Notes = form.Notes
			o.ThreadURL = form.ThreadURL
			o.CommsStatus = comms
			o.LastContact = form.LastContact
			o.UpdatedAt = time.Now()
		})
		if !ok {
			return models.Opportunity{}, ErrNotFound
		}
		opp, _ := e.store.Opportunity(editingID)
		return opp, nil
	}

	now := time.Now()
	created := models.Opportunity{
		ID:            models.MintID("opp"),
		OutreachID:    form.OutreachID,
		Name:          name,
		Value:         form.Value,
		ExpectedClose: form.ExpectedClose,
		Status:        status,
		Notes:         form.Notes,
		ThreadURL:     form.ThreadURL,
		CommsStatus:   comms,
		LastContact:   form.LastContact,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	e.store.PrependOpportunity(created)
	return created, nil
}

// UpdateOpportunityStatus sets an opportunity's status. Status changes never
// cascade back to the parent outreach.
func (e *Engine) UpdateOpportunityStatus(opportunityID, status string) error {
	ok := e.store.UpdateOpportunity(opportunityID, func(o *models.Opportunity) {
		o.Status = status
		o.UpdatedAt = time.Now()
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

// ArchiveOpportunity soft-archives an opportunity.
func (e *Engine) ArchiveOpportunity(opportunityID string) error {
	now := time.Now()
	ok := e.store.UpdateOpportunity(opportunityID, func(o *models.Opportunity) {
		o.ArchivedAt = &now
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

// RestoreOpportunity clears an opportunity's archive flag.
func (e *Engine) RestoreOpportunity(opportunityID string) error {
	ok := e.store.UpdateOpportunity(opportunityID, func(o *models.Opportunity) {
		o.ArchivedAt = nil
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

// DealForm carries the deal-creation fields.
type DealForm struct {
	OutreachID    string
	OpportunityID string
	CampaignID    string
	Name          string
	Value         string
	Status        string
	Notes         string
	ThreadURL     string
	CommsStatus   string
	LastContact   *time.Time
	// NeedsConfirmation is set by NewDealContext when the deal would have no
	// pipeline link; SaveDeal then demands the confirmed flag.
	NeedsConfirmation bool
}

// NewDealContext prefills a deal form from whichever of outreach and
// opportunity is supplied. An opportunity implies its outreach link. When
// neither is supplied the form is flagged for explicit confirmation.
func (e *Engine) NewDealContext(outreachID, opportunityID string) DealForm {
	var rec *models.Outreach
	if outreachID != "" {
		if r, ok := e.Record(outreachID); ok {
			rec = &r
		}
	}
	var opp *models.Opportunity
	if opportunityID != "" {
		if o, ok := e.store.Opportunity(opportunityID); ok {
			opp = &o
			if outreachID == "" {
				outreachID = o.OutreachID
				if r, ok := e.Record(outreachID); ok {
					rec = &r
				}
			}
		}
	}

	form := DealForm{
		OutreachID:    outreachID,
		OpportunityID: opportunityID,
		Name:          "New deal",
		Status:        "Open",
		CommsStatus:   models.CommsAwaitingReply,
	}
	if rec != nil {
		form.Name = fmt.Sprintf("%s deal", rec.Target)
		form.ThreadURL = rec.ThreadURL
		form.LastContact = rec.LastContact
		if rec.Status == models.CommsResponded {
			form.CommsStatus = models.CommsResponded
		}
	}
	if opp != nil {
		if opp.Name != "" {
			form.Name = opp.Name
		}
		form.Value = opp.Value
		if opp.ThreadURL != "" {
			form.ThreadURL = opp.ThreadURL
		}
		if opp.CommsStatus != "" {
			form.CommsStatus = opp.CommsStatus
		}
		if opp.LastContact != nil {
			form.LastContact = opp.LastContact
		}
	}
	form.NeedsConfirmation = form.OutreachID == "" && form.OpportunityID == ""
	return form
}

// SaveDeal creates the deal and applies its side effects: a linked
// opportunity is forced to Closed Won and a linked campaign gains the deal
// id. The deal's own status is untouched by either. There is no stored lock
// flag; the deal's existence is what locks the outreach.
func (e *Engine) SaveDeal(form DealForm, confirmed bool) (models.Deal, error) {
	if form.OutreachID == "" && form.OpportunityID == "" && !confirmed {
		return models.Deal{}, ErrConfirmationRequired
	}
	name := strings.TrimSpace(form.Name)
	if name == "" {
		name = "Untitled deal"
	}
	status := form.Status
	if status == "" {
		status = "Open"
	}
	comms := form.CommsStatus
	if comms == "" {
		comms = models.CommsAwaitingReply
	}

	now := time.Now()
	created := models.Deal{
		ID:            models.MintID("deal"),
		OutreachID:    form.OutreachID,
		OpportunityID: form.OpportunityID,
		CampaignID:    form.CampaignID,
		Name:          name,
		Value:         form.Value,
		Status:        status,
		Notes:         form.Notes,
		ThreadURL:     form.ThreadURL,
		CommsStatus:   comms,
		LastContact:   form.LastContact,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	e.store.PrependDeal(created)

	if created.CampaignID != "" {
		if err := e.campaigns.Link(created.CampaignID, created.ID, created.Name); err != nil {
			e.log.WithError(err).Warn("failed to link deal to campaign")
		}
	}
	if created.OpportunityID != "" {
		if err := e.UpdateOpportunityStatus(created.OpportunityID, models.OpportunityClosedWon); err != nil {
			e.log.WithError(err).Warn("failed to close linked opportunity")
		}
	}

	return created, nil
}

// SetDealCampaign reassigns a deal's campaign. No-op when unchanged;
// otherwise the previous campaign is unlinked before the next is linked, so
// no campaign retains a stale deal id.
func (e *Engine) SetDealCampaign(dealID, campaignID string) error {
	deal, ok := e.store.Deal(dealID)
	if !ok {
		return ErrNotFound
	}
	previous := deal.CampaignID
	next := campaignID
	if previous == next {
		return nil
	}

	e.store.UpdateDeal(dealID, func(d *models.Deal) {
		d.CampaignID = next
		d.UpdatedAt = time.Now()
	})

	if previous != "" {
		if err := e.campaigns.Unlink(previous, dealID); err != nil {
			e.log.WithError(err).Warn("failed to unlink deal from previous campaign")
		}
	}
	if next != "" {
		if err := e.campaigns.Link(next, dealID, deal.Name); err != nil {
			e.log.WithError(err).Warn("failed to link deal to campaign")
		}
	}
	return nil
}

// ArchiveDeal soft-archives a deal. If it was the last active deal
// referencing an outreach, that outreach unlocks.
func (e *Engine) ArchiveDeal(dealID string) error {
	now := time.Now()
	ok := e.store.UpdateDeal(dealID, func(d *models.Deal) {
		d.ArchivedAt = &now
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

// RestoreDeal clears a deal's archive flag, re-locking its outreach if any.
func (e *Engine) RestoreDeal(dealID string) error {
	ok := e.store.UpdateDeal(dealID, func(d *models.Deal) {
		d.ArchivedAt = nil
	})
	if !ok {
		return ErrNotFound
	}
	return nil
}

func (e *Engine) prependRecord(rec models.Outreach) {
	e.mu.Lock()
	e.records = append([]models.Outreach{rec}, e.records...)
	e.mu.Unlock()
}

func (e *Engine) replaceRecord(rec models.Outreach) {
	e.mu.Lock()
	for i := range e.records {
		if e.records[i].ID == rec.ID {
			rec.Notes = nil
			rec.Tasks = nil
			e.records[i] = rec
			break
		}
	}
	e.mu.Unlock()
}

func (e *Engine) mutateRecord(id string, fn func(*models.Outreach)) {
	e.mu.Lock()
	for i := range e.records {
		if e.records[i].ID == id {
			fn(&e.records[i])
			break
		}
	}
	e.mu.Unlock()
}

func (e *Engine) patchRecord(id string, p remote.RecordPayload) {
	e.mutateRecord(id, func(r *models.Outreach) {
		if p.Target != "" {
			r.Target = p.Target
		}
		if p.Type != "" {
			r.Type = p.Type
		}
		if p.Contact != "" {
			r.Contact = p.Contact
		}
		if p.ContactEmail != "" {
			r.ContactEmail = p.ContactEmail
		}
		if p.Link != "" {
			r.Link = p.Link
		}
		if p.Owner != "" {
			r.Owner = p.Owner
		}
		if p.Source != "" {
			r.Source = p.Source
		}
		if p.Stage != "" {
			r.Stage = p.Stage
		}
		if p.Status != "" {
			r.Status = p.Status
		}
		if p.Summary != "" {
			r.Summary = p.Summary
		}
		if p.Reminder != "" {
			r.Reminder = p.Reminder
		}
		if p.ThreadURL != "" {
			r.ThreadURL = p.ThreadURL
		}
		if p.EmailsSent != nil {
			r.EmailsSent = *p.EmailsSent
		}
		if p.EmailsReplies != nil {
			r.EmailsReplies = *p.EmailsReplies
		}
		if p.LastContact != nil {
			r.LastContact = p.LastContact
		}
		if p.NextFollowUp != nil {
			r.NextFollowUp = p.NextFollowUp
		}
		r.UpdatedAt = time.Now()
	})
}
