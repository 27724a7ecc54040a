// ABOUTME: Local entity store holding the client-scoped pipeline collections
// ABOUTME: Every mutation rewrites the whole collection; write failures are swallowed
package storage

import (
	"encoding/json"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/breakhq/outreach/models"
)

// Storage keys, one per collection. The names carry over from the admin
// console's browser-storage layout so exported data stays portable.
const (
	KeyArchivedOutreachIDs = "break_admin_outreach_archived_outreach_ids_v1"
	KeyOutreachProfiles    = "break_admin_outreach_profiles_v1"
	KeyOutreachDrafts      = "break_admin_outreach_drafts_v1"
	KeyOpportunities       = "break_admin_outreach_opportunities_v1"
	KeyDeals               = "break_admin_outreach_deals_v1"
	KeyLocalNotes          = "break_admin_outreach_local_notes_v1"
	KeyLocalTasks          = "break_admin_outreach_local_tasks_v1"
	KeyNoteEdits           = "break_admin_outreach_note_edits_v1"
	KeyCampaigns           = "break_admin_crm_campaigns_v1"
)

// Store owns the client-local pipeline collections. In-memory state is the
// source of truth for readers; persistence is attempted after every mutation
// and failures are logged and otherwise ignored, so readers always see the
// latest write attempt even when the backend is unavailable.
type Store struct {
	kv  KV
	log *logrus.Logger

	mu            sync.Mutex
	archivedIDs   []string
	profiles      map[string]models.OutreachProfile
	drafts        map[string]bool
	opportunities []models.Opportunity
	deals         []models.Deal
	localNotes    []models.Note
	localTasks    []models.Task
	noteEdits     map[string]models.NoteEdit
	campaigns     []models.Campaign
}

// Open loads every collection from kv. Malformed or missing data yields an
// empty collection, never an error.
func Open(kv KV, log *logrus.Logger) *Store {
	if log == nil {
		log = logrus.New()
	}
	s := &Store{
		kv:        kv,
		log:       log,
		profiles:  make(map[string]models.OutreachProfile),
		drafts:    make(map[string]bool),
		noteEdits: make(map[string]models.NoteEdit),
	}
	s.read(KeyArchivedOutreachIDs, &s.archivedIDs)
	s.read(KeyOutreachProfiles, &s.profiles)
	s.read(KeyOutreachDrafts, &s.drafts)
	s.read(KeyOpportunities, &s.opportunities)
	s.read(KeyDeals, &s.deals)
	s.read(KeyLocalNotes, &s.localNotes)
	s.read(KeyLocalTasks, &s.localTasks)
	s.read(KeyNoteEdits, &s.noteEdits)
	s.read(KeyCampaigns, &s.campaigns)
	if s.profiles == nil {
		s.profiles = make(map[string]models.OutreachProfile)
	}
	if s.drafts == nil {
		s.drafts = make(map[string]bool)
	}
	if s.noteEdits == nil {
		s.noteEdits = make(map[string]models.NoteEdit)
	}
	return s
}

func (s *Store) read(key string, dst interface{}) {
	raw, err := s.kv.Get(key)
	if err != nil || len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		// Corrupt data degrades to an empty collection
		s.log.WithField("key", key).WithError(err).Warn("discarding malformed collection")
	}
}

func (s *Store) persist(key string, value interface{}) {
	raw, err := json.Marshal(value)
	if err != nil {
		s.log.WithField("key", key).WithError(err).Warn("failed to serialize collection")
		return
	}
	if err := s.kv.Set(key, raw); err != nil {
		s.log.WithField("key", key).WithError(err).Warn("failed to persist collection")
	}
}

// Close closes the underlying KV backend.
func (s *Store) Close() error {
	return s.kv.Close()
}

// ArchivedOutreachIDs returns a copy of the archived outreach id set.
func (s *Store) ArchivedOutreachIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.archivedIDs))
	copy(out, s.archivedIDs)
	return out
}

// OutreachArchived reports whether the outreach id is in the archived set.
func (s *Store) OutreachArchived(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.archivedIDs {
		if a == id {
			return true
		}
	}
	return false
}

// ArchiveOutreach adds the id to the archived set. Adding twice is a no-op.
func (s *Store) ArchiveOutreach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.archivedIDs {
		if a == id {
			return
		}
	}
	s.archivedIDs = append([]string{id}, s.archivedIDs...)
	s.persist(KeyArchivedOutreachIDs, s.archivedIDs)
}

// RestoreOutreach removes the id from the archived set.
func (s *Store) RestoreOutreach(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.archivedIDs[:0]
	for _, a := range s.archivedIDs {
		if a != id {
			kept = append(kept, a)
		}
	}
	s.archivedIDs = kept
	s.persist(KeyArchivedOutreachIDs, s.archivedIDs)
}

// Profile returns the profile overlay for an outreach id, if present.
func (s *Store) Profile(outreachID string) (models.OutreachProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[outreachID]
	return p, ok
}

// SetProfile stores the profile overlay for an outreach id.
func (s *Store) SetProfile(outreachID string, p models.OutreachProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[outreachID] = p
	s.persist(KeyOutreachProfiles, s.profiles)
}

// Draft reports the draft flag for an outreach id.
func (s *Store) Draft(outreachID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.drafts[outreachID]
}

// SetDraft stores the draft flag for an outreach id.
func (s *Store) SetDraft(outreachID string, draft bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drafts[outreachID] = draft
	s.persist(KeyOutreachDrafts, s.drafts)
}

// Opportunities returns a copy of the opportunity collection.
func (s *Store) Opportunities() []models.Opportunity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Opportunity, len(s.opportunities))
	copy(out, s.opportunities)
	return out
}

// Opportunity returns the opportunity with the given id.
func (s *Store) Opportunity(id string) (models.Opportunity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.opportunities {
		if o.ID == id {
			return o, true
		}
	}
	return models.Opportunity{}, false
}

// PrependOpportunity inserts an opportunity at the head of the collection.
func (s *Store) PrependOpportunity(o models.Opportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opportunities = append([]models.Opportunity{o}, s.opportunities...)
	s.persist(KeyOpportunities, s.opportunities)
}

// UpdateOpportunity applies fn to the opportunity with the given id and
// persists the collection. Returns false when no opportunity matches.
func (s *Store) UpdateOpportunity(id string, fn func(*models.Opportunity)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.opportunities {
		if s.opportunities[i].ID == id {
			fn(&s.opportunities[i])
			s.persist(KeyOpportunities, s.opportunities)
			return true
		}
	}
	return false
}

// Deals returns a copy of the deal collection.
func (s *Store) Deals() []models.Deal {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Deal, len(s.deals))
	copy(out, s.deals)
	return out
}

// Deal returns the deal with the given id.
func (s *Store) Deal(id string) (models.Deal, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.deals {
		if d.ID == id {
			return d, true
		}
	}
	return models.Deal{}, false
}

// PrependDeal inserts a deal at the head of the collection.
func (s *Store) PrependDeal(d models.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deals = append([]models.Deal{d}, s.deals...)
	s.persist(KeyDeals, s.deals)
}

// UpdateDeal applies fn to the deal with the given id and persists the
// collection. Returns false when no deal matches.
func (s *Store) UpdateDeal(id string, fn func(*models.Deal)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.deals {
		if s.deals[i].ID == id {
			fn(&s.deals[i])
			s.persist(KeyDeals, s.deals)
			return true
		}
	}
	return false
}

// LocalNotes returns a copy of the locally-created note collection.
func (s *Store) LocalNotes() []models.Note {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Note, len(s.localNotes))
	copy(out, s.localNotes)
	return out
}

// PrependLocalNote inserts a note at the head of the local collection.
func (s *Store) PrependLocalNote(n models.Note) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localNotes = append([]models.Note{n}, s.localNotes...)
	s.persist(KeyLocalNotes, s.localNotes)
}

// UpdateLocalNote applies fn to the local note with the given id and persists
// the collection. Returns false when no note matches.
func (s *Store) UpdateLocalNote(id string, fn func(*models.Note)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.localNotes {
		if s.localNotes[i].ID == id {
			fn(&s.localNotes[i])
			s.persist(KeyLocalNotes, s.localNotes)
			return true
		}
	}
	return false
}

// LocalTasks returns a copy of the locally-created task collection.
func (s *Store) LocalTasks() []models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Task, len(s.localTasks))
	copy(out, s.localTasks)
	return out
}

// PrependLocalTask inserts a task at the head of the local collection.
func (s *Store) PrependLocalTask(t models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.localTasks = append([]models.Task{t}, s.localTasks...)
	s.persist(KeyLocalTasks, s.localTasks)
}

// UpdateLocalTask applies fn to the local task with the given id and persists
// the collection. Returns false when no task matches.
func (s *Store) UpdateLocalTask(id string, fn func(*models.Task)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.localTasks {
		if s.localTasks[i].ID == id {
			fn(&s.localTasks[i])
			s.persist(KeyLocalTasks, s.localTasks)
			return true
		}
	}
	return false
}

// NoteEdit returns the edit overlay for a server-backed note id.
func (s *Store) NoteEdit(noteID string) (models.NoteEdit, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.noteEdits[noteID]
	return e, ok
}

// SetNoteEdit stores the edit overlay for a server-backed note id.
func (s *Store) SetNoteEdit(noteID string, e models.NoteEdit) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.noteEdits[noteID] = e
	s.persist(KeyNoteEdits, s.noteEdits)
}

// Campaigns returns a copy of the campaign collection.
func (s *Store) Campaigns() []models.Campaign {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Campaign, len(s.campaigns))
	copy(out, s.campaigns)
	return out
}

// Campaign returns the campaign with the given id.
func (s *Store) Campaign(id string) (models.Campaign, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.campaigns {
		if c.ID == id {
			return c, true
		}
	}
	return models.Campaign{}, false
}

// PrependCampaign inserts a campaign at the head of the collection.
func (s *Store) PrependCampaign(c models.Campaign) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.campaigns = append([]models.Campaign{c}, s.campaigns...)
	s.persist(KeyCampaigns, s.campaigns)
}

// UpdateCampaign applies fn to the campaign with the given id and persists the
// collection. Returns false when no campaign matches.
func (s *Store) UpdateCampaign(id string, fn func(*models.Campaign)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.campaigns {
		if s.campaigns[i].ID == id {
			fn(&s.campaigns[i])
			s.persist(KeyCampaigns, s.campaigns)
			return true
		}
	}
	return false
}
