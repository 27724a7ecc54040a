// ABOUTME: Note and task CLI commands backed by the activity ledger
// ABOUTME: Add, edit, toggle, and list notes and tasks across entities
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/breakhq/outreach/models"
	"github.com/breakhq/outreach/pipeline"
)

// AddNoteCommand attaches a note to an outreach record, opportunity, or deal.
func AddNoteCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("add-note", flag.ExitOnError)
	entityType := fs.String("entity", models.EntityOutreach, "Entity type (outreach, opportunity, deal)")
	entityID := fs.String("id", "", "Entity id (required)")
	author := fs.String("author", "Admin", "Note author")
	body := fs.String("body", "", "Note body (required)")
	_ = fs.Parse(args)

	if *entityID == "" || *body == "" {
		return fmt.Errorf("--id and --body are required")
	}
	note, err := engine.Ledger().AddNote(ctx, *entityType, *entityID, *author, *body)
	if err != nil {
		return err
	}
	fmt.Printf("Added note %s\n", note.ID)
	return nil
}

// EditNoteCommand rewrites a note's body. Server notes keep their original
// body and gain a local edit overlay with history.
func EditNoteCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("edit-note", flag.ExitOnError)
	id := fs.String("id", "", "Note id (required)")
	body := fs.String("body", "", "New body (required)")
	_ = fs.Parse(args)

	if *id == "" || *body == "" {
		return fmt.Errorf("--id and --body are required")
	}
	if err := engine.Ledger().EditNote(*id, *body); err != nil {
		return err
	}
	fmt.Printf("Edited note %s\n", *id)
	return nil
}

// NotesCommand lists notes, optionally scoped to one entity.
func NotesCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("notes", flag.ExitOnError)
	entityType := fs.String("entity", "", "Entity type filter")
	entityID := fs.String("id", "", "Entity id filter")
	_ = fs.Parse(args)

	led := engine.Ledger()
	notes := led.Notes()
	if *entityType != "" && *entityID != "" {
		notes = led.NotesFor(*entityType, *entityID)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Entity", "Author", "Source", "Body"})
	for _, note := range notes {
		t.AppendRow(table.Row{
			note.ID,
			fmt.Sprintf("%s/%s", note.EntityType, note.EntityID),
			note.Author, note.Source, led.EffectiveBody(note),
		})
	}
	t.Render()
	return nil
}

// AddTaskCommand creates a follow-up task against an entity.
func AddTaskCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("add-task", flag.ExitOnError)
	entityType := fs.String("entity", models.EntityOutreach, "Entity type (outreach, opportunity, deal)")
	entityID := fs.String("id", "", "Entity id (required)")
	title := fs.String("title", "", "Task title (required)")
	due := fs.String("due", "", "Due date (RFC3339 or YYYY-MM-DD)")
	owner := fs.String("owner", "Admin", "Task owner")
	priority := fs.String("priority", models.PriorityMedium, "Task priority")
	_ = fs.Parse(args)

	if *entityID == "" || *title == "" {
		return fmt.Errorf("--id and --title are required")
	}
	dueDate, err := parseDue(*due)
	if err != nil {
		return err
	}
	task, err := engine.Ledger().AddTask(ctx, *entityType, *entityID, *title, dueDate, *owner, *priority)
	if err != nil {
		return err
	}
	fmt.Printf("Added task %s\n", task.ID)
	return nil
}

// ToggleTaskCommand flips a task between done and open.
func ToggleTaskCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("toggle-task", flag.ExitOnError)
	id := fs.String("id", "", "Task id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if err := engine.Ledger().ToggleTask(ctx, *id); err != nil {
		return err
	}
	task, ok := engine.Ledger().Task(*id)
	if ok {
		fmt.Printf("Task %s is now %s\n", task.ID, task.Status)
	}
	return nil
}

// TasksCommand lists tasks sorted by due date, optionally scoped to an entity.
func TasksCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	entityType := fs.String("entity", "", "Entity type filter")
	entityID := fs.String("id", "", "Entity id filter")
	_ = fs.Parse(args)

	led := engine.Ledger()
	tasks := led.Tasks()
	if *entityType != "" && *entityID != "" {
		tasks = led.TasksFor(*entityType, *entityID)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Entity", "Title", "Due", "Owner", "Priority", "Status"})
	for _, task := range tasks {
		due := ""
		if task.DueDate != nil {
			due = task.DueDate.Format("2006-01-02")
			if task.IsOverdue() {
				due += " (overdue)"
			} else if task.IsDueSoon(3) {
				due += " (soon)"
			}
		}
		t.AppendRow(table.Row{
			task.ID,
			fmt.Sprintf("%s/%s", task.EntityType, task.EntityID),
			task.Title, due, task.Owner, task.Priority, task.Status,
		})
	}
	t.Render()
	return nil
}
