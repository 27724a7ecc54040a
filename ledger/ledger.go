// ABOUTME: Unified note and task ledger merging server-backed and local entities
// ABOUTME: Tracks edits to immutable server notes through a local overlay
package ledger

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/breakhq/outreach/models"
	"github.com/breakhq/outreach/remote"
	"github.com/breakhq/outreach/storage"
)

// API is the slice of the records API the ledger needs for outreach-bound
// notes and tasks.
type API interface {
	AddNote(ctx context.Context, recordID, body string) (models.Note, error)
	AddTask(ctx context.Context, recordID string, payload remote.TaskPayload) (models.Task, error)
	UpdateTask(ctx context.Context, taskID string, patch remote.TaskPatch) (models.Task, error)
}

// Ledger presents one ordered view over api-sourced and local-sourced notes
// and tasks. Server notes are immutable; their edits live in the store's
// note-edit overlay and never touch the note itself.
type Ledger struct {
	store *storage.Store
	api   API
	log   *logrus.Logger

	mu       sync.Mutex
	apiNotes []models.Note
	apiTasks []models.Task
}

func New(store *storage.Store, api API, log *logrus.Logger) *Ledger {
	if log == nil {
		log = logrus.New()
	}
	return &Ledger{store: store, api: api, log: log}
}

// SetFromRecords replaces the api-sourced collections with the notes and
// tasks embedded in fetched outreach records.
func (l *Ledger) SetFromRecords(records []models.Outreach) {
	var notes []models.Note
	var tasks []models.Task
	for _, rec := range records {
		for _, n := range rec.Notes {
			n.EntityType = models.EntityOutreach
			n.EntityID = rec.ID
			n.OutreachID = rec.ID
			n.Source = models.SourceAPI
			if n.CreatedAt.IsZero() {
				n.CreatedAt = time.Now()
			}
			notes = append(notes, n)
		}
		for _, t := range rec.Tasks {
			t.EntityType = models.EntityOutreach
			t.EntityID = rec.ID
			t.OutreachID = rec.ID
			t.Source = models.SourceAPI
			tasks = append(tasks, t)
		}
	}
	l.mu.Lock()
	l.apiNotes = notes
	l.apiTasks = tasks
	l.mu.Unlock()
}

// AddNote attaches a note to an entity. Outreach notes go through the records
// API and the error is surfaced, not retried; anything else is local-only.
func (l *Ledger) AddNote(ctx context.Context, entityType, entityID, author, body string) (models.Note, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Note{}, fmt.Errorf("note body is empty")
	}
	if entityID == "" {
		return models.Note{}, fmt.Errorf("note entity id is empty")
	}

	if entityType == models.EntityOutreach {
		note, err := l.api.AddNote(ctx, entityID, body)
		if err != nil {
			l.log.WithError(err).Error("failed to add note")
			return models.Note{}, err
		}
		note.EntityType = models.EntityOutreach
		note.EntityID = entityID
		note.OutreachID = entityID
		note.Source = models.SourceAPI
		if note.CreatedAt.IsZero() {
			note.CreatedAt = time.Now()
		}
		l.mu.Lock()
		l.apiNotes = append([]models.Note{note}, l.apiNotes...)
		l.mu.Unlock()
		return note, nil
	}

	note := models.Note{
		ID:         models.MintID("note"),
		EntityType: entityType,
		EntityID:   entityID,
		Author:     authorOrAdmin(author),
		Body:       body,
		Source:     models.SourceLocal,
		CreatedAt:  time.Now(),
	}
	l.store.PrependLocalNote(note)
	return note, nil
}

// AddTask attaches a task to an entity. Outreach tasks go through the records
// API; anything else is local-only.
func (l *Ledger) AddTask(ctx context.Context, entityType, entityID, title string, dueDate *time.Time, owner, priority string) (models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Task{}, fmt.Errorf("task title is empty")
	}
	if entityID == "" {
		return models.Task{}, fmt.Errorf("task entity id is empty")
	}
	if priority == "" {
		priority = models.PriorityMedium
	}

	if entityType == models.EntityOutreach {
		task, err := l.api.AddTask(ctx, entityID, remote.TaskPayload{
			Title:    title,
			DueDate:  dueDate,
			Owner:    authorOrAdmin(owner),
			Priority: priority,
		})
		if err != nil {
			l.log.WithError(err).Error("failed to add task")
			return models.Task{}, err
		}
		task.EntityType = models.EntityOutreach
		task.EntityID = entityID
		task.OutreachID = entityID
		task.Source = models.SourceAPI
		l.mu.Lock()
		l.apiTasks = append([]models.Task{task}, l.apiTasks...)
		l.mu.Unlock()
		return task, nil
	}

	now := time.Now()
	task := models.Task{
		ID:         models.MintID("task"),
		EntityType: entityType,
		EntityID:   entityID,
		Title:      title,
		DueDate:    dueDate,
		Owner:      authorOrAdmin(owner),
		Priority:   priority,
		Status:     models.TaskStatusOpen,
		Source:     models.SourceLocal,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	l.store.PrependLocalTask(task)
	return task, nil
}

// ToggleTask flips a task between Done and Open. API tasks only change after
// the server accepts the patch; local tasks change immediately.
func (l *Ledger) ToggleTask(ctx context.Context, taskID string) error {
	l.mu.Lock()
	var apiTask *models.Task
	for i := range l.apiTasks {
		if l.apiTasks[i].ID == taskID {
			apiTask = &l.apiTasks[i]
			break
		}
	}
	l.mu.Unlock()

	if apiTask != nil {
		next := models.TaskStatusDone
		if apiTask.Status == models.TaskStatusDone {
			next = models.TaskStatusOpen
		}
		if _, err := l.api.UpdateTask(ctx, taskID, remote.TaskPatch{Status: &next}); err != nil {
			l.log.WithError(err).Error("failed to update task")
			return err
		}
		l.mu.Lock()
		for i := range l.apiTasks {
			if l.apiTasks[i].ID == taskID {
				l.apiTasks[i].Status = next
			}
		}
		l.mu.Unlock()
		return nil
	}

	ok := l.store.UpdateLocalTask(taskID, func(t *models.Task) {
		if t.Status == models.TaskStatusDone {
			t.Status = models.TaskStatusOpen
		} else {
			t.Status = models.TaskStatusDone
		}
		t.UpdatedAt = time.Now()
	})
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	return nil
}

// TaskUpdate carries the editable task fields.
type TaskUpdate struct {
	Title    string
	DueDate  *time.Time
	Owner    string
	Priority string
	Status   string
}

// UpdateTask edits a task. API tasks are patched server-side and the update
// is applied locally even when the patch fails; local tasks mutate directly.
func (l *Ledger) UpdateTask(ctx context.Context, taskID string, updates TaskUpdate) error {
	updates.Title = strings.TrimSpace(updates.Title)
	if updates.Title == "" {
		return fmt.Errorf("task title is empty")
	}
	if updates.Owner == "" {
		updates.Owner = "Admin"
	}
	if updates.Priority == "" {
		updates.Priority = models.PriorityMedium
	}
	if updates.Status == "" {
		updates.Status = models.TaskStatusOpen
	}

	l.mu.Lock()
	isAPI := false
	for i := range l.apiTasks {
		if l.apiTasks[i].ID == taskID {
			isAPI = true
			break
		}
	}
	l.mu.Unlock()

	if isAPI {
		patch := remote.TaskPatch{
			Title:    &updates.Title,
			DueDate:  updates.DueDate,
			Owner:    &updates.Owner,
			Priority: &updates.Priority,
			Status:   &updates.Status,
		}
		updated, err := l.api.UpdateTask(ctx, taskID, patch)
		if err != nil {
			l.log.WithError(err).Error("failed to update task, applying locally")
		}
		l.mu.Lock()
		for i := range l.apiTasks {
			if l.apiTasks[i].ID != taskID {
				continue
			}
			if err == nil {
				updated.EntityType = l.apiTasks[i].EntityType
				updated.EntityID = l.apiTasks[i].EntityID
				updated.OutreachID = l.apiTasks[i].OutreachID
				updated.Source = models.SourceAPI
				l.apiTasks[i] = updated
			} else {
				l.apiTasks[i].Title = updates.Title
				l.apiTasks[i].DueDate = updates.DueDate
				l.apiTasks[i].Owner = updates.Owner
				l.apiTasks[i].Priority = updates.Priority
				l.apiTasks[i].Status = updates.Status
			}
		}
		l.mu.Unlock()
		return nil
	}

	ok := l.store.UpdateLocalTask(taskID, func(t *models.Task) {
		t.Title = updates.Title
		t.DueDate = updates.DueDate
		t.Owner = updates.Owner
		t.Priority = updates.Priority
		t.Status = updates.Status
		t.UpdatedAt = time.Now()
	})
	if !ok {
		return fmt.Errorf("task %s not found", taskID)
	}
	return nil
}

// EditNote records a new body for a note. Server-backed notes keep their
// original body; the edit lands in the overlay with the superseded body
// prepended to history. Local notes mutate in place with the same history
// shape.
func (l *Ledger) EditNote(noteID, newBody string) error {
	newBody = strings.TrimSpace(newBody)
	if newBody == "" {
		return fmt.Errorf("note body is empty")
	}

	l.mu.Lock()
	var apiNote *models.Note
	for i := range l.apiNotes {
		if l.apiNotes[i].ID == noteID {
			apiNote = &l.apiNotes[i]
			break
		}
	}
	l.mu.Unlock()

	now := time.Now()
	if apiNote != nil {
		previous := apiNote.Body
		var history []models.NoteRevision
		if edit, ok := l.store.NoteEdit(noteID); ok {
			previous = edit.CurrentBody
			history = edit.History
		}
		l.store.SetNoteEdit(noteID, models.NoteEdit{
			CurrentBody: newBody,
			EditedAt:    now,
			History:     append([]models.NoteRevision{{Body: previous, EditedAt: now}}, history...),
		})
		return nil
	}

	ok := l.store.UpdateLocalNote(noteID, func(n *models.Note) {
		n.History = append([]models.NoteRevision{{Body: n.Body, EditedAt: now}}, n.History...)
		n.Body = newBody
		n.EditedAt = &now
	})
	if !ok {
		return fmt.Errorf("note %s not found", noteID)
	}
	return nil
}

// EffectiveBody resolves the display text for a note, consulting the edit
// overlay before the note's own body.
func (l *Ledger) EffectiveBody(note models.Note) string {
	if note.Source == models.SourceAPI {
		if edit, ok := l.store.NoteEdit(note.ID); ok {
			return edit.CurrentBody
		}
	}
	return note.Body
}

// EditHistory returns the overlay entry for a server-backed note id.
func (l *Ledger) EditHistory(noteID string) (models.NoteEdit, bool) {
	return l.store.NoteEdit(noteID)
}

// Notes returns the merged note list, local entries concatenated before api
// entries, sorted by createdAt descending.
func (l *Ledger) Notes() []models.Note {
	l.mu.Lock()
	api := make([]models.Note, len(l.apiNotes))
	copy(api, l.apiNotes)
	l.mu.Unlock()

	merged := append(l.store.LocalNotes(), api...)
	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})
	return merged
}

// Tasks returns the merged task list, local entries concatenated before api
// entries, sorted by dueDate ascending with missing due dates last.
func (l *Ledger) Tasks() []models.Task {
	l.mu.Lock()
	api := make([]models.Task, len(l.apiTasks))
	copy(api, l.apiTasks)
	l.mu.Unlock()

	merged := append(l.store.LocalTasks(), api...)
	sort.SliceStable(merged, func(i, j int) bool {
		return dueKey(merged[i].DueDate) < dueKey(merged[j].DueDate)
	})
	return merged
}

// NotesFor filters the merged note list to one entity.
func (l *Ledger) NotesFor(entityType, entityID string) []models.Note {
	var out []models.Note
	for _, n := range l.Notes() {
		if n.EntityType == entityType && n.EntityID == entityID {
			out = append(out, n)
		}
	}
	return out
}

// TasksFor filters the merged task list to one entity.
func (l *Ledger) TasksFor(entityType, entityID string) []models.Task {
	var out []models.Task
	for _, t := range l.Tasks() {
		if t.EntityType == entityType && t.EntityID == entityID {
			out = append(out, t)
		}
	}
	return out
}

// Task returns a task from either collection.
func (l *Ledger) Task(taskID string) (models.Task, bool) {
	l.mu.Lock()
	for _, t := range l.apiTasks {
		if t.ID == taskID {
			l.mu.Unlock()
			return t, true
		}
	}
	l.mu.Unlock()
	for _, t := range l.store.LocalTasks() {
		if t.ID == taskID {
			return t, true
		}
	}
	return models.Task{}, false
}

// Note returns a note from either collection.
func (l *Ledger) Note(noteID string) (models.Note, bool) {
	l.mu.Lock()
	for _, n := range l.apiNotes {
		if n.ID == noteID {
			l.mu.Unlock()
			return n, true
		}
	}
	l.mu.Unlock()
	for _, n := range l.store.LocalNotes() {
		if n.ID == noteID {
			return n, true
		}
	}
	return models.Note{}, false
}

func dueKey(t *time.Time) int64 {
	if t == nil || t.IsZero() {
		// Missing due dates sort last
		return int64(1) << 62
	}
	return t.UnixMilli()
}

func authorOrAdmin(s string) string {
	if strings.TrimSpace(s) == "" {
		return "Admin"
	}
	return s
}
