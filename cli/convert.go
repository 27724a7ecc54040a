// ABOUTME: Conversion CLI commands for opportunities and deals
// ABOUTME: Drives convert, deal save, archive/restore, and campaign assignment
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/breakhq/outreach/pipeline"
)

// ConvertCommand promotes an outreach record to an opportunity. Converting a
// record that already has an active opportunity just prints the existing one.
func ConvertCommand(ctx context.Context, engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("convert", flag.ExitOnError)
	id := fs.String("id", "", "Outreach record id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	opp, err := engine.ConvertToOpportunity(ctx, *id)
	if err != nil {
		return err
	}
	fmt.Printf("Opportunity %s (%s)\n", opp.ID, opp.Name)
	return nil
}

// AddOpportunityCommand creates an opportunity by hand, or edits an existing
// one when --edit is given. The outreach link is mandatory on create.
func AddOpportunityCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("add-opportunity", flag.ExitOnError)
	outreachID := fs.String("outreach", "", "Linked outreach record id")
	editID := fs.String("edit", "", "Existing opportunity id to edit")
	name := fs.String("name", "", "Opportunity name")
	value := fs.String("value", "", "Expected value")
	status := fs.String("status", "", "Opportunity status")
	notes := fs.String("notes", "", "Free-text notes")
	thread := fs.String("thread", "", "Gmail thread URL")
	comms := fs.String("comms", "", "Comms status")
	close := fs.String("close", "", "Expected close date (YYYY-MM-DD)")
	_ = fs.Parse(args)

	expectedClose, err := parseDue(*close)
	if err != nil {
		return err
	}
	form := pipeline.OpportunityForm{
		OutreachID:    *outreachID,
		Name:          *name,
		Value:         *value,
		ExpectedClose: expectedClose,
		Status:        *status,
		Notes:         *notes,
		ThreadURL:     *thread,
		CommsStatus:   *comms,
	}
	if *editID != "" {
		if existing, ok := engine.Store().Opportunity(*editID); ok {
			form.OutreachID = existing.OutreachID
		}
	}
	opp, err := engine.SaveOpportunity(form, *editID)
	if err != nil {
		if errors.Is(err, pipeline.ErrOutreachLinkRequired) {
			return fmt.Errorf("--outreach is required: every opportunity links back to an outreach record")
		}
		return err
	}
	fmt.Printf("Saved opportunity %s (%s)\n", opp.ID, opp.Name)
	return nil
}

// AddDealCommand converts to a deal. Without --force a deal that has neither
// an outreach nor an opportunity link is refused.
func AddDealCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("add-deal", flag.ExitOnError)
	outreachID := fs.String("outreach", "", "Linked outreach record id")
	opportunityID := fs.String("opportunity", "", "Linked opportunity id")
	campaignID := fs.String("campaign", "", "Campaign to link the deal to")
	name := fs.String("name", "", "Deal name")
	value := fs.String("value", "", "Deal value")
	status := fs.String("status", "", "Deal status")
	notes := fs.String("notes", "", "Deal notes")
	force := fs.Bool("force", false, "Create the deal even with no pipeline link")
	_ = fs.Parse(args)

	form := engine.NewDealContext(*outreachID, *opportunityID)
	if *name != "" {
		form.Name = *name
	}
	if *value != "" {
		form.Value = *value
	}
	if *status != "" {
		form.Status = *status
	}
	form.Notes = *notes
	form.CampaignID = *campaignID

	deal, err := engine.SaveDeal(form, *force)
	if err != nil {
		if errors.Is(err, pipeline.ErrConfirmationRequired) {
			return fmt.Errorf("this deal is not linked to outreach; re-run with --force to continue")
		}
		return err
	}
	fmt.Printf("Created deal %s (%s)\n", deal.ID, deal.Name)
	if deal.OutreachID != "" {
		fmt.Printf("Outreach %s is now locked while the deal is active\n", deal.OutreachID)
	}
	return nil
}

// OpportunitiesCommand lists visible opportunities.
func OpportunitiesCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("opportunities", flag.ExitOnError)
	filters := parseFilters(fs, args)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Outreach", "Value", "Status", "Archived"})
	for _, opp := range engine.VisibleOpportunities(filters) {
		t.AppendRow(table.Row{opp.ID, opp.Name, opp.OutreachID, opp.Value, opp.Status, opp.Archived()})
	}
	t.Render()
	return nil
}

// DealsCommand lists visible deals.
func DealsCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("deals", flag.ExitOnError)
	filters := parseFilters(fs, args)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Outreach", "Opportunity", "Campaign", "Value", "Status", "Archived"})
	for _, deal := range engine.VisibleDeals(filters) {
		t.AppendRow(table.Row{
			deal.ID, deal.Name, deal.OutreachID, deal.OpportunityID,
			deal.CampaignID, deal.Value, deal.Status, deal.Archived(),
		})
	}
	t.Render()
	return nil
}

// OpportunityStatusCommand sets an opportunity's status.
func OpportunityStatusCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("opportunity-status", flag.ExitOnError)
	id := fs.String("id", "", "Opportunity id (required)")
	status := fs.String("status", "", "New status (required)")
	_ = fs.Parse(args)

	if *id == "" || *status == "" {
		return fmt.Errorf("--id and --status are required")
	}
	if err := engine.UpdateOpportunityStatus(*id, *status); err != nil {
		return err
	}
	fmt.Printf("Opportunity %s is now %s\n", *id, *status)
	return nil
}

// ArchiveOpportunityCommand soft-archives an opportunity.
func ArchiveOpportunityCommand(engine *pipeline.Engine, args []string) error {
	return archiveRestore(args, "archive-opportunity", engine.ArchiveOpportunity, "Archived opportunity %s\n")
}

// RestoreOpportunityCommand restores an archived opportunity.
func RestoreOpportunityCommand(engine *pipeline.Engine, args []string) error {
	return archiveRestore(args, "restore-opportunity", engine.RestoreOpportunity, "Restored opportunity %s\n")
}

// ArchiveDealCommand soft-archives a deal, unlocking its outreach if it was
// the last active reference.
func ArchiveDealCommand(engine *pipeline.Engine, args []string) error {
	return archiveRestore(args, "archive-deal", engine.ArchiveDeal, "Archived deal %s\n")
}

// RestoreDealCommand restores an archived deal.
func RestoreDealCommand(engine *pipeline.Engine, args []string) error {
	return archiveRestore(args, "restore-deal", engine.RestoreDeal, "Restored deal %s\n")
}

// SetCampaignCommand reassigns a deal's campaign; pass an empty --campaign to
// clear it.
func SetCampaignCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("set-campaign", flag.ExitOnError)
	dealID := fs.String("deal", "", "Deal id (required)")
	campaignID := fs.String("campaign", "", "Campaign id (empty clears the link)")
	_ = fs.Parse(args)

	if *dealID == "" {
		return fmt.Errorf("--deal is required")
	}
	if err := engine.SetDealCampaign(*dealID, *campaignID); err != nil {
		return err
	}
	if *campaignID == "" {
		fmt.Printf("Cleared campaign link on deal %s\n", *dealID)
	} else {
		fmt.Printf("Linked deal %s to campaign %s\n", *dealID, *campaignID)
	}
	return nil
}

func archiveRestore(args []string, name string, op func(string) error, okFormat string) error {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	id := fs.String("id", "", "Entity id (required)")
	_ = fs.Parse(args)

	if *id == "" {
		return fmt.Errorf("--id is required")
	}
	if err := op(*id); err != nil {
		return err
	}
	fmt.Printf(okFormat, *id)
	return nil
}
