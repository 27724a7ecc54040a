// ABOUTME: Read-side projections over the pipeline state
// ABOUTME: Derives the stage board, response/conversion metrics, and filtered views
package pipeline

import (
	"sort"
	"strings"
	"time"

	"github.com/breakhq/outreach/models"
)

// Filters scope the derived views. Zero values mean "everything": RangeDays 0
// is all time, Owner "" or "All" is all owners.
type Filters struct {
	RangeDays    int
	Owner        string
	ShowArchived bool
}

// RecordView decorates an outreach record with its client-side overlays.
type RecordView struct {
	models.Outreach
	Profile  *models.OutreachProfile `json:"profile,omitempty"`
	IsDraft  bool                    `json:"isDraft"`
	Archived bool                    `json:"archived"`
	Locked   bool                    `json:"locked"`
}

// StageColumn is one board column with its visible records.
type StageColumn struct {
	models.StageInfo
	Items []RecordView `json:"items"`
}

// Metrics summarizes the visible slice of the pipeline.
type Metrics struct {
	TotalOutreach     int `json:"totalOutreach"`
	ResponseRate      int `json:"responseRate"`
	MeetingConversion int `json:"meetingConversion"`
	ClosedWon         int `json:"closedWon"`
	ClosedLost        int `json:"closedLost"`
}

// VisibleRecords applies the archive, owner, and date-range filters and
// decorates each record with its profile and draft overlays.
func (e *Engine) VisibleRecords(f Filters) []RecordView {
	var out []RecordView
	for _, rec := range e.Records() {
		archived := e.store.OutreachArchived(rec.ID)
		if archived && !f.ShowArchived {
			continue
		}
		if !ownerMatches(f.Owner, rec.Owner) {
			continue
		}
		anchor := firstTime(rec.LastContact, &rec.UpdatedAt, &rec.CreatedAt)
		if !withinRange(anchor, f.RangeDays) {
			continue
		}
		view := RecordView{
			Outreach: rec,
			IsDraft:  e.store.Draft(rec.ID),
			Archived: archived,
			Locked:   e.Locked(rec.ID),
		}
		if p, ok := e.store.Profile(rec.ID); ok {
			view.Profile = &p
		}
		out = append(out, view)
	}
	return out
}

// VisibleOpportunities filters opportunities; the owner filter follows the
// linked outreach record.
func (e *Engine) VisibleOpportunities(f Filters) []models.Opportunity {
	var out []models.Opportunity
	for _, opp := range e.store.Opportunities() {
		if opp.Archived() && !f.ShowArchived {
			continue
		}
		if !e.linkedOwnerMatches(f.Owner, opp.OutreachID) {
			continue
		}
		anchor := firstTime(&opp.UpdatedAt, &opp.CreatedAt, opp.ExpectedClose)
		if !withinRange(anchor, f.RangeDays) {
			continue
		}
		out = append(out, opp)
	}
	return out
}

// VisibleDeals filters deals; the owner filter follows the linked outreach
// record.
func (e *Engine) VisibleDeals(f Filters) []models.Deal {
	var out []models.Deal
	for _, deal := range e.store.Deals() {
		if deal.Archived() && !f.ShowArchived {
			continue
		}
		if !e.linkedOwnerMatches(f.Owner, deal.OutreachID) {
			continue
		}
		anchor := firstTime(&deal.UpdatedAt, &deal.CreatedAt)
		if !withinRange(anchor, f.RangeDays) {
			continue
		}
		out = append(out, deal)
	}
	return out
}

// Board groups the visible records into stage columns in board order.
func (e *Engine) Board(f Filters) []StageColumn {
	records := e.VisibleRecords(f)
	columns := make([]StageColumn, 0, len(models.Stages))
	for _, stage := range models.Stages {
		col := StageColumn{StageInfo: stage}
		for _, rec := range records {
			if rec.Stage == stage.ID {
				col.Items = append(col.Items, rec)
			}
		}
		columns = append(columns, col)
	}
	return columns
}

// MetricsFor computes the headline numbers for the visible slice: response
// rate is replies over sends, meeting conversion is meeting-stage records
// over records with any email activity, and won/lost counts come from
// opportunity outcomes.
func (e *Engine) MetricsFor(f Filters) Metrics {
	records := e.VisibleRecords(f)
	var sends, replies, active, meetings int
	for _, rec := range records {
		sends += rec.EmailsSent
		replies += rec.EmailsReplies
		if rec.EmailsSent > 0 {
			active++
		}
		if rec.Stage == models.StageMeeting {
			meetings++
		}
	}

	var won, lost int
	for _, opp := range e.VisibleOpportunities(f) {
		switch opp.Status {
		case models.OpportunityClosedWon:
			won++
		case models.OpportunityClosedLost:
			lost++
		}
	}

	m := Metrics{
		TotalOutreach: active,
		ClosedWon:     won,
		ClosedLost:    lost,
	}
	if sends > 0 {
		m.ResponseRate = int(float64(replies)/float64(sends)*100 + 0.5)
	}
	if active > 0 {
		m.MeetingConversion = int(float64(meetings)/float64(active)*100 + 0.5)
	}
	return m
}

// OwnerOptions lists the distinct record owners, sorted, with missing owners
// grouped under Unassigned.
func (e *Engine) OwnerOptions() []string {
	seen := make(map[string]bool)
	for _, rec := range e.Records() {
		owner := rec.Owner
		if owner == "" {
			owner = "Unassigned"
		}
		seen[owner] = true
	}
	owners := make([]string, 0, len(seen))
	for owner := range seen {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners
}

func (e *Engine) linkedOwnerMatches(filter, outreachID string) bool {
	if filter == "" || filter == "All" {
		return true
	}
	owner := "Unassigned"
	if rec, ok := e.Record(outreachID); ok && rec.Owner != "" {
		owner = rec.Owner
	}
	return owner == strings.TrimSpace(filter)
}

func ownerMatches(filter, owner string) bool {
	filter = strings.TrimSpace(filter)
	if filter == "" || filter == "All" {
		return true
	}
	if owner == "" {
		owner = "Unassigned"
	}
	return owner == filter
}

func withinRange(t *time.Time, rangeDays int) bool {
	if rangeDays <= 0 {
		return true
	}
	if t == nil || t.IsZero() {
		return false
	}
	return time.Since(*t) <= time.Duration(rangeDays)*24*time.Hour
}

func firstTime(candidates ...*time.Time) *time.Time {
	for _, c := range candidates {
		if c != nil && !c.IsZero() {
			return c
		}
	}
	return nil
}
