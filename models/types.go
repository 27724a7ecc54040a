// ABOUTME: Data models for the outreach pipeline entities
// ABOUTME: Defines Outreach, Opportunity, Deal, Note, Task, and Campaign structs
package models

import (
	"time"
)

// Outreach is a prospective brand or creator contact record. It is the only
// entity synced to the records API; everything downstream is client-scoped.
type Outreach struct {
	ID             string     `json:"id"`
	Target         string     `json:"target"`
	Type           string     `json:"type"`
	Contact        string     `json:"contact,omitempty"`
	ContactEmail   string     `json:"contactEmail,omitempty"`
	Link           string     `json:"link,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	Source         string     `json:"source,omitempty"`
	Stage          string     `json:"stage"`
	Status         string     `json:"status"`
	Summary        string     `json:"summary,omitempty"`
	Reminder       string     `json:"reminder,omitempty"`
	ThreadURL      string     `json:"threadUrl,omitempty"`
	GmailThreadID  string     `json:"gmailThreadId,omitempty"`
	OpportunityRef string     `json:"opportunityRef,omitempty"`
	EmailsSent     int        `json:"emailsSent"`
	EmailsReplies  int        `json:"emailsReplies"`
	LastContact    *time.Time `json:"lastContact,omitempty"`
	NextFollowUp   *time.Time `json:"nextFollowUp,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	Notes          []Note     `json:"notes,omitempty"`
	Tasks          []Task     `json:"tasks,omitempty"`
}

// Opportunity is a qualified follow-on to exactly one outreach record.
// OutreachID is set at creation and never changed.
type Opportunity struct {
	ID            string     `json:"id"`
	OutreachID    string     `json:"outreachId"`
	Name          string     `json:"name"`
	Value         string     `json:"value,omitempty"`
	ExpectedClose *time.Time `json:"expectedClose,omitempty"`
	Status        string     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	ThreadURL     string     `json:"threadUrl,omitempty"`
	CommsStatus   string     `json:"commsStatus,omitempty"`
	LastContact   *time.Time `json:"lastContact,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
}

// Deal is the terminal pipeline entity. All links are optional; a deal with no
// outreach or opportunity link loses traceability by explicit user choice.
type Deal struct {
	ID            string     `json:"id"`
	OutreachID    string     `json:"outreachId,omitempty"`
	OpportunityID string     `json:"opportunityId,omitempty"`
	CampaignID    string     `json:"campaignId,omitempty"`
	Name          string     `json:"name"`
	Value         string     `json:"value,omitempty"`
	Status        string     `json:"status"`
	Notes         string     `json:"notes,omitempty"`
	ThreadURL     string     `json:"threadUrl,omitempty"`
	CommsStatus   string     `json:"commsStatus,omitempty"`
	LastContact   *time.Time `json:"lastContact,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
	UpdatedAt     time.Time  `json:"updatedAt"`
	ArchivedAt    *time.Time `json:"archivedAt,omitempty"`
}

// Note is attached to exactly one entity via (EntityType, EntityID).
// Server-backed notes (SourceAPI) are immutable at the API; their edits live
// in the NoteEdit overlay instead.
type Note struct {
	ID         string         `json:"id"`
	EntityType string         `json:"entityType"`
	EntityID   string         `json:"entityId"`
	OutreachID string         `json:"outreachId,omitempty"`
	Author     string         `json:"author,omitempty"`
	Body       string         `json:"body"`
	Source     string         `json:"source"`
	CreatedAt  time.Time      `json:"createdAt"`
	EditedAt   *time.Time     `json:"editedAt,omitempty"`
	History    []NoteRevision `json:"history,omitempty"`
}

// NoteRevision is a single superseded note body.
type NoteRevision struct {
	Body     string    `json:"body"`
	EditedAt time.Time `json:"editedAt"`
}

// NoteEdit is the local-only overlay tracking edits to a server-backed note.
// History is prepended on every edit, most recent first. The underlying note
// is never mutated.
type NoteEdit struct {
	CurrentBody string         `json:"currentBody"`
	EditedAt    time.Time      `json:"editedAt"`
	History     []NoteRevision `json:"history"`
}

type Task struct {
	ID         string     `json:"id"`
	EntityType string     `json:"entityType"`
	EntityID   string     `json:"entityId"`
	OutreachID string     `json:"outreachId,omitempty"`
	Title      string     `json:"title"`
	DueDate    *time.Time `json:"dueDate,omitempty"`
	Owner      string     `json:"owner,omitempty"`
	Priority   string     `json:"priority,omitempty"`
	Status     string     `json:"status"`
	Source     string     `json:"source"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`
}

// Campaign is externally managed except for LinkedDealIDs and Activity, which
// only the campaign linkage ledger mutates.
type Campaign struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Brand          string          `json:"brand,omitempty"`
	Status         string          `json:"status,omitempty"`
	Owner          string          `json:"owner,omitempty"`
	LinkedDealIDs  []string        `json:"linkedDealIds"`
	Activity       []ActivityEntry `json:"activity,omitempty"`
	LastActivityAt *time.Time      `json:"lastActivityAt,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ActivityEntry is a human-readable campaign feed line, display only.
type ActivityEntry struct {
	At    time.Time `json:"at"`
	Label string    `json:"label"`
}

// OutreachProfile is a client-side overlay of social handles per outreach id.
type OutreachProfile struct {
	Platforms []PlatformHandle `json:"platforms,omitempty"`
	Bio       string           `json:"bio,omitempty"`
}

type PlatformHandle struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle,omitempty"`
}

// Outreach target types.
const (
	TypeBrand   = "Brand"
	TypeCreator = "Creator"
)

// Outreach pipeline stages, in board order.
const (
	StageNotStarted   = "not-started"
	StageResearched   = "researched"
	StageInitialEmail = "initial-email"
	StageFollowUp     = "follow-up"
	StageConversation = "conversation"
	StageMeeting      = "meeting"
	StageClosedWon    = "closed-won"
	StageClosedLost   = "closed-lost"
)

// StageInfo pairs a stage id with its board label.
type StageInfo struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Stages lists all pipeline stages in board order.
var Stages = []StageInfo{
	{ID: StageNotStarted, Label: "Not Started"},
	{ID: StageResearched, Label: "Researched"},
	{ID: StageInitialEmail, Label: "Initial Email Sent"},
	{ID: StageFollowUp, Label: "Follow-Up Sent"},
	{ID: StageConversation, Label: "In Conversation"},
	{ID: StageMeeting, Label: "Meeting Booked"},
	{ID: StageClosedWon, Label: "Closed Won"},
	{ID: StageClosedLost, Label: "Closed Lost"},
}

// ValidStage reports whether id names a known pipeline stage.
func ValidStage(id string) bool {
	for _, s := range Stages {
		if s.ID == id {
			return true
		}
	}
	return false
}

// Comms statuses shared by outreach, opportunities, and deals.
const (
	CommsNotStarted    = "Not started"
	CommsAwaitingReply = "Awaiting reply"
	CommsResponded     = "Responded"
	CommsNoResponse    = "No response"
)

// Opportunity statuses.
const (
	OpportunityOpen       = "Open"
	OpportunityClosedWon  = "Closed Won"
	OpportunityClosedLost = "Closed Lost"
)

// Task statuses.
const (
	TaskStatusOpen       = "Open"
	TaskStatusQueued     = "Queued"
	TaskStatusInProgress = "In progress"
	TaskStatusDone       = "Done"
)

// Task priorities.
const (
	PriorityHigh   = "High"
	PriorityMedium = "Medium"
	PriorityLow    = "Low"
)

// Entity kinds notes and tasks attach to.
const (
	EntityOutreach    = "outreach"
	EntityOpportunity = "opportunity"
	EntityDeal        = "deal"
)

// Note and task provenance.
const (
	SourceAPI   = "api"
	SourceLocal = "local"
)

// IsOverdue returns true if the task is past its due date and not done.
func (t *Task) IsOverdue() bool {
	if t.Status == TaskStatusDone {
		return false
	}
	if t.DueDate == nil {
		return false
	}
	return time.Now().After(*t.DueDate)
}

// IsDueSoon returns true if the task is due within the given number of days.
func (t *Task) IsDueSoon(days int) bool {
	if t.Status == TaskStatusDone {
		return false
	}
	if t.DueDate == nil {
		return false
	}
	now := time.Now()
	threshold := now.Add(time.Duration(days) * 24 * time.Hour)
	return t.DueDate.Before(threshold) && t.DueDate.After(now)
}

// Archived reports whether the opportunity is soft-archived.
func (o *Opportunity) Archived() bool {
	return o.ArchivedAt != nil
}

// Archived reports whether the deal is soft-archived.
func (d *Deal) Archived() bool {
	return d.ArchivedAt != nil
}

// HasDeal reports whether any campaign deal link matches dealID.
func (c *Campaign) HasDeal(dealID string) bool {
	for _, id := range c.LinkedDealIDs {
		if id == dealID {
			return true
		}
	}
	return false
}
