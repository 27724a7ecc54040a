// ABOUTME: Campaign linkage ledger keeping deal links and activity feeds consistent
// ABOUTME: Only this package mutates Campaign.LinkedDealIDs and Campaign.Activity
package campaigns

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/breakhq/outreach/models"
	"github.com/breakhq/outreach/storage"
)

// Ledger owns the local campaign collection. Campaigns are otherwise managed
// elsewhere; this ledger only touches deal links and the activity feed.
type Ledger struct {
	store *storage.Store
	log   *logrus.Logger
}

func New(store *storage.Store, log *logrus.Logger) *Ledger {
	if log == nil {
		log = logrus.New()
	}
	return &Ledger{store: store, log: log}
}

// Campaigns returns a copy of the campaign collection.
func (l *Ledger) Campaigns() []models.Campaign {
	return l.store.Campaigns()
}

// Campaign returns the campaign with the given id.
func (l *Ledger) Campaign(id string) (models.Campaign, bool) {
	return l.store.Campaign(id)
}

// Create adds a campaign with an empty deal link set and a creation activity
// entry.
func (l *Ledger) Create(name, brand, owner string) models.Campaign {
	now := time.Now()
	c := models.Campaign{
		ID:            uuid.NewString(),
		Name:          name,
		Brand:         brand,
		Owner:         owner,
		Status:        "Active",
		LinkedDealIDs: []string{},
		Activity: []models.ActivityEntry{
			{At: now, Label: "Campaign created"},
		},
		LastActivityAt: &now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	l.store.PrependCampaign(c)
	return c
}

// Link adds a deal id to the campaign's link set. Linking an already-linked
// deal does not duplicate the id but still records activity.
func (l *Ledger) Link(campaignID, dealID, dealLabel string) error {
	label := "Deal added"
	if dealLabel != "" {
		label = fmt.Sprintf("Deal added: %s", dealLabel)
	}
	now := time.Now()
	ok := l.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
		if !c.HasDeal(dealID) {
			c.LinkedDealIDs = append(c.LinkedDealIDs, dealID)
		}
		c.Activity = append([]models.ActivityEntry{{At: now, Label: label}}, c.Activity...)
		c.LastActivityAt = &now
		c.UpdatedAt = now
	})
	if !ok {
		return fmt.Errorf("campaign %s not found", campaignID)
	}
	return nil
}

// Unlink removes a deal id from the campaign's link set.
func (l *Ledger) Unlink(campaignID, dealID string) error {
	ok := l.store.UpdateCampaign(campaignID, func(c *models.Campaign) {
		kept := c.LinkedDealIDs[:0]
		for _, id := range c.LinkedDealIDs {
			if id != dealID {
				kept = append(kept, id)
			}
		}
		c.LinkedDealIDs = kept
		c.UpdatedAt = time.Now()
	})
	if !ok {
		return fmt.Errorf("campaign %s not found", campaignID)
	}
	return nil
}
