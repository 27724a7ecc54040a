// ABOUTME: Campaign CLI commands
// ABOUTME: Create and list campaigns with their linked deals and activity
package cli

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/breakhq/outreach/pipeline"
)

// AddCampaignCommand creates a campaign shell that deals can link into.
func AddCampaignCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("add-campaign", flag.ExitOnError)
	name := fs.String("name", "", "Campaign name (required)")
	brand := fs.String("brand", "", "Brand the campaign belongs to")
	owner := fs.String("owner", "Admin", "Campaign owner")
	_ = fs.Parse(args)

	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	c := engine.Campaigns().Create(*name, *brand, *owner)
	fmt.Printf("Created campaign %s (%s)\n", c.ID, c.Name)
	return nil
}

// CampaignsCommand lists campaigns with their deal links.
func CampaignsCommand(engine *pipeline.Engine, args []string) error {
	fs := flag.NewFlagSet("campaigns", flag.ExitOnError)
	showActivity := fs.Bool("activity", false, "Include the activity feed")
	_ = fs.Parse(args)

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Brand", "Owner", "Deals"})
	for _, c := range engine.Campaigns().Campaigns() {
		t.AppendRow(table.Row{c.ID, c.Name, c.Brand, c.Owner, strings.Join(c.LinkedDealIDs, ", ")})
	}
	t.Render()

	if *showActivity {
		for _, c := range engine.Campaigns().Campaigns() {
			fmt.Printf("\n%s:\n", c.Name)
			for _, entry := range c.Activity {
				fmt.Printf("  %s  %s\n", entry.At.Format("2006-01-02 15:04"), entry.Label)
			}
		}
	}
	return nil
}
