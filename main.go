// ABOUTME: Entry point for the outreach pipeline console
// ABOUTME: Routes CLI commands and the local JSON server from one binary
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/breakhq/outreach/cli"
	"github.com/breakhq/outreach/pipeline"
	"github.com/breakhq/outreach/remote"
	"github.com/breakhq/outreach/web"
)

const version = "0.1.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	port := flag.Int("port", 4100, "Port for the serve command")

	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("outreach version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if *verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg := cli.LoadConfig()
	store := cli.OpenStore(cfg, log)
	defer store.Close()

	api := remote.NewClient(cfg.APIBase, cfg.APIToken, log)
	engine := pipeline.New(store, api, log)

	ctx := context.Background()
	engine.LoadRecords(ctx)

	command := args[0]
	commandArgs := args[1:]

	var err error
	switch command {
	case "serve":
		err = web.NewServer(engine, log).Start(*port)

	// Outreach commands
	case "add-outreach":
		err = cli.AddOutreachCommand(ctx, engine, commandArgs)
	case "edit-outreach":
		err = cli.EditOutreachCommand(ctx, engine, commandArgs)
	case "set-stage":
		err = cli.SetStageCommand(ctx, engine, commandArgs)
	case "set-status":
		err = cli.SetStatusCommand(ctx, engine, commandArgs)
	case "archive-outreach":
		err = cli.ArchiveOutreachCommand(engine, commandArgs)
	case "restore-outreach":
		err = cli.RestoreOutreachCommand(engine, commandArgs)
	case "set-profile":
		err = cli.SetProfileCommand(engine, commandArgs)
	case "touchpoint":
		err = cli.TouchpointCommand(ctx, engine, commandArgs)
	case "link-thread":
		err = cli.LinkThreadCommand(ctx, engine, commandArgs)

	// Views
	case "pipeline":
		err = cli.PipelineCommand(engine, commandArgs)
	case "records":
		err = cli.RecordsCommand(engine, commandArgs)
	case "metrics":
		err = cli.MetricsCommand(engine, commandArgs)
	case "opportunities":
		err = cli.OpportunitiesCommand(engine, commandArgs)
	case "deals":
		err = cli.DealsCommand(engine, commandArgs)

	// Conversion commands
	case "convert":
		err = cli.ConvertCommand(ctx, engine, commandArgs)
	case "add-opportunity":
		err = cli.AddOpportunityCommand(engine, commandArgs)
	case "opportunity-status":
		err = cli.OpportunityStatusCommand(engine, commandArgs)
	case "archive-opportunity":
		err = cli.ArchiveOpportunityCommand(engine, commandArgs)
	case "restore-opportunity":
		err = cli.RestoreOpportunityCommand(engine, commandArgs)
	case "add-deal":
		err = cli.AddDealCommand(engine, commandArgs)
	case "archive-deal":
		err = cli.ArchiveDealCommand(engine, commandArgs)
	case "restore-deal":
		err = cli.RestoreDealCommand(engine, commandArgs)
	case "set-campaign":
		err = cli.SetCampaignCommand(engine, commandArgs)

	// Campaign commands
	case "add-campaign":
		err = cli.AddCampaignCommand(engine, commandArgs)
	case "campaigns":
		err = cli.CampaignsCommand(engine, commandArgs)

	// Notes and tasks
	case "add-note":
		err = cli.AddNoteCommand(ctx, engine, commandArgs)
	case "edit-note":
		err = cli.EditNoteCommand(engine, commandArgs)
	case "notes":
		err = cli.NotesCommand(engine, commandArgs)
	case "add-task":
		err = cli.AddTaskCommand(ctx, engine, commandArgs)
	case "toggle-task":
		err = cli.ToggleTaskCommand(ctx, engine, commandArgs)
	case "tasks":
		err = cli.TasksCommand(engine, commandArgs)

	default:
		fmt.Printf("Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func printUsage() {
	fmt.Println(`Usage: outreach [flags] <command> [command flags]

Global flags:
  -version        Show version and exit
  -verbose        Enable debug logging
  -port <n>       Port for the serve command (default 4100)

Server:
  serve                       Start the local JSON API

Outreach:
  add-outreach                Create an outreach record
  edit-outreach               Edit an outreach record
  set-stage                   Move a record to a pipeline stage
  set-status                  Set a record's comms status
  archive-outreach            Soft-archive a record
  restore-outreach            Restore an archived record
  set-profile                 Save social handles for a record
  touchpoint                  Log a contact summary
  link-thread                 Link a Gmail thread

Views:
  pipeline                    Stage board
  records                     Outreach record list
  metrics                     Headline numbers
  opportunities               Opportunity list
  deals                       Deal list

Conversion:
  convert                     Promote outreach to an opportunity
  add-opportunity             Create or edit an opportunity by hand
  opportunity-status          Set an opportunity's status
  archive-opportunity         Soft-archive an opportunity
  restore-opportunity         Restore an archived opportunity
  add-deal                    Create a deal (use --force for unlinked deals)
  archive-deal                Soft-archive a deal
  restore-deal                Restore an archived deal
  set-campaign                Move a deal between campaigns

Campaigns:
  add-campaign                Create a campaign
  campaigns                   List campaigns (--activity for the feed)

Notes and tasks:
  add-note                    Attach a note to an entity
  edit-note                   Edit a note (server notes get an overlay)
  notes                       List notes
  add-task                    Create a follow-up task
  toggle-task                 Flip a task between done and open
  tasks                       List tasks by due date

Environment:
  OUTREACH_API_BASE           Upstream API base URL
  OUTREACH_API_TOKEN          Bearer token for the upstream API
  OUTREACH_DATA_DIR           Local data directory
  OUTREACH_STORE              badger (default), sqlite, or memory`)
}
