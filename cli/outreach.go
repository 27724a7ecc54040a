// ABOUTME: Outreach record CLI commands
// ABOUTME: Create, edit, stage, archive, and thread-link outreach records
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/breakhq/outreach/models"
	"github.com/breakhq/outreach/pipeline"
	"github.com/breakhq/outreach/remote"
)

// AddOutreachCommand creates a new outreach record. When the server rejects
// the create the record is kept locally and a warning is printed.
func AddOutreachCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("add-outreach", flag.ExitOnError)
	target := fs.String("target", "", "Target brand or creator name (required)")
	kind := fs.String("type", models.TypeBrand, "Target type (Brand or Creator)")
	contact := fs.String("contact", "", "Contact name and role")
	email := fs.String("email", "", "Contact email")
	link := fs.String("link", "", "Reference link")
	owner := fs.String("owner", "Admin", "Record owner")
	source := fs.String("source", "Manual", "Lead source")
	stage := fs.String("stage", models.StageNotStarted, "Pipeline stage")
	summary := fs.String("summary", "", "Free-text summary")
	draft := fs.Bool("draft", false, "Mark the record as a draft")
	_ = fs.Parse(args)

	if *target == "" {
		return fmt.Errorf("--target is required")
	}

	rec, err := engine.CreateOutreach(ctx, remote.RecordPayload{
		Target:       *target,
		Type:         *kind,
		Contact:      *contact,
		ContactEmail: *email,
		Link:         *link,
		Owner:        *owner,
		Source:       *source,
		Stage:        *stage,
		Summary:      *summary,
	}, *draft)
	if err != nil {
		if errors.Is(err, pipeline.ErrSavedLocally) {
			fmt.Printf("Warning: record could not be saved to the server; tracking it locally as %s\n", rec.ID)
			return nil
		}
		return err
	}

	fmt.Printf("Created outreach %s (%s)\n", rec.ID, rec.Target)
	return nil
}

// EditOutreachCommand updates fields on an existing record. Only the flags
// you pass are changed; everything else is left alone.
func EditOutreachCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("edit-outreach", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	target := fs.String("target", "", "Target brand or creator name")
	contact := fs.String("contact", "", "Contact name and role")
	email := fs.String("email", "", "Contact email")
	link := fs.String("link", "", "Reference link")
	owner := fs.String("owner", "", "Record owner")
	summary := fs.String("summary", "", "Free-text summary")
	draft := fs.Bool("draft", false, "Mark the record as a draft")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	return engine.UpdateOutreach(ctx, *id, remote.RecordPayload{
		Target:       *target,
		Contact:      *contact,
		ContactEmail: *email,
		Link:         *link,
		Owner:        *owner,
		Summary:      *summary,
	}, *draft)
}

// SetStageCommand moves a record to a new pipeline stage.
func SetStageCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("set-stage", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	stage := fs.String("stage", "", "New stage (required)")
	_ = fs.Parse(args)

	if *id == "" || *stage == "" {
		return fmt.Errorf("--id and --stage are required")
	}
	if err := engine.SetStage(ctx, *id, *stage); err != nil {
		return err
	}
	fmt.Printf("Moved %s to %s\n", *id, *stage)
	return nil
}

// SetStatusCommand changes a record's comms status.
func SetStatusCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("set-status", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	status := fs.String("status", "", "New comms status (required)")
	_ = fs.Parse(args)

	if *id == "" || *status == "" {
		return fmt.Errorf("--id and --status are required")
	}
	if err := engine.SetStatus(ctx, *id, *status); err != nil {
		return err
	}
	fmt.Printf("Set %s status to %s\n", *id, *status)
	return nil
}

// ArchiveOutreachCommand soft-archives a record.
func ArchiveOutreachCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("archive-outreach", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	engine.ArchiveOutreach(*id)
	fmt.Printf("Archived %s (restore with restore-outreach)\n", *id)
	return nil
}

// RestoreOutreachCommand restores an archived record.
func RestoreOutreachCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("restore-outreach", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	engine.RestoreOutreach(*id)
	fmt.Printf("Restored %s\n", *id)
	return nil
}

// SetProfileCommand stores the social-handle overlay for a record. Platforms
// are given as platform=handle pairs, e.g. --platform instagram=@acme.
func SetProfileCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("set-profile", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	bio := fs.String("bio", "", "Short bio line")
	var pairs multiFlag
	fs.Var(&pairs, "platform", "platform=handle pair (repeatable)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	profile := models.OutreachProfile{Bio: *bio}
	for _, pair := range pairs {
		platform, handle, _ := strings.Cut(pair, "=")
		if platform == "" {
			return fmt.Errorf("bad platform pair %q, want platform=handle", pair)
		}
		profile.Platforms = append(profile.Platforms, models.PlatformHandle{Platform: platform, Handle: handle})
	}
	engine.Store().SetProfile(*id, profile)
	fmt.Printf("Saved profile for %s\n", *id)
	return nil
}

type multiFlag []string

func (m *multiFlag) String() string { return strings.Join(*m, ",") }

func (m *multiFlag) Set(v string) error {
	*m = append(*m, v)
	return nil
}

// TouchpointCommand logs a contact summary against a record.
func TouchpointCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("touchpoint", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	summary := fs.String("summary", "", "What happened (required)")
	_ = fs.Parse(args)

	if *id == "" || *summary == "" {
		return fmt.Errorf("--id and --summary are required")
	}
	if err := engine.LogTouchpoint(ctx, *id, *summary); err != nil {
		return err
	}
	fmt.Printf("Logged touchpoint on %s\n", *id)
	return nil
}

// LinkThreadCommand associates a Gmail thread with a record.
func LinkThreadCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("link-thread", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	thread := fs.String("thread", "", "Gmail thread id (required)")
	_ = fs.Parse(args)

	if *id == "" || *thread == "" {
		return fmt.Errorf("--id and --thread are required")
	}
	if err := engine.LinkThread(ctx, *id, *thread); err != nil {
		return err
	}
	fmt.Printf("Linked thread %s to %s\n", *thread, *id)
	return nil
}

func parseDue(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return &t, nil
		}
	}
	return nil, fmt.Errorf("unrecognized date %q", raw)
}
