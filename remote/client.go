// ABOUTME: REST client for the server-synced outreach records API
// ABOUTME: Fetches degrade silently to empty; mutations return errors for the caller to handle
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/breakhq/outreach/models"
)

// Client talks to the outreach records API. Reads and writes deliberately do
// not share error handling: TryFetchRecords never fails and callers cannot
// distinguish an empty list from a failed fetch, while every mutation returns
// an error and the call site decides the fallback.
type Client struct {
	base  string
	token string
	fetch *retryablehttp.Client
	write *retryablehttp.Client
	log   *logrus.Logger
}

// NewClient builds a client for the API at baseURL. Fetches retry a couple of
// times; mutations are attempted exactly once.
func NewClient(baseURL, token string, log *logrus.Logger) *Client {
	if log == nil {
		log = logrus.New()
	}

	fetch := retryablehttp.NewClient()
	fetch.RetryMax = 2
	fetch.HTTPClient.Timeout = 15 * time.Second
	fetch.Logger = nil

	write := retryablehttp.NewClient()
	write.RetryMax = 0
	write.HTTPClient.Timeout = 15 * time.Second
	write.Logger = nil

	return &Client{
		base:  baseURL,
		token: token,
		fetch: fetch,
		write: write,
		log:   log,
	}
}

// RecordPayload is the create body and, with zero fields omitted, the patch
// body for an outreach record.
type RecordPayload struct {
	Target         string     `json:"target,omitempty"`
	Type           string     `json:"type,omitempty"`
	Contact        string     `json:"contact,omitempty"`
	ContactEmail   string     `json:"contactEmail,omitempty"`
	Link           string     `json:"link,omitempty"`
	Owner          string     `json:"owner,omitempty"`
	Source         string     `json:"source,omitempty"`
	Stage          string     `json:"stage,omitempty"`
	Status         string     `json:"status,omitempty"`
	Summary        string     `json:"summary,omitempty"`
	Reminder       string     `json:"reminder,omitempty"`
	ThreadURL      string     `json:"threadUrl,omitempty"`
	OpportunityRef string     `json:"opportunityRef,omitempty"`
	EmailsSent     *int       `json:"emailsSent,omitempty"`
	EmailsReplies  *int       `json:"emailsReplies,omitempty"`
	LastContact    *time.Time `json:"lastContact,omitempty"`
	NextFollowUp   *time.Time `json:"nextFollowUp,omitempty"`
}

// TaskPayload is the create body for an outreach task.
type TaskPayload struct {
	Title    string     `json:"title"`
	DueDate  *time.Time `json:"dueDate,omitempty"`
	Owner    string     `json:"owner,omitempty"`
	Priority string     `json:"priority,omitempty"`
}

// TaskPatch is the partial update body for an outreach task.
type TaskPatch struct {
	Title    *string    `json:"title,omitempty"`
	DueDate  *time.Time `json:"dueDate,omitempty"`
	Owner    *string    `json:"owner,omitempty"`
	Priority *string    `json:"priority,omitempty"`
	Status   *string    `json:"status,omitempty"`
}

type recordsEnvelope struct {
	Records []models.Outreach `json:"records"`
}

type recordEnvelope struct {
	Record models.Outreach `json:"record"`
}

type noteEnvelope struct {
	Note models.Note `json:"note"`
}

type taskEnvelope struct {
	Task models.Task `json:"task"`
}

// TryFetchRecords lists all outreach records. Any failure (network, non-2xx,
// bad JSON) degrades to an empty slice.
func (c *Client) TryFetchRecords(ctx context.Context) []models.Outreach {
	var env recordsEnvelope
	if err := c.do(ctx, c.fetch, http.MethodGet, "/api/outreach/records", nil, &env); err != nil {
		c.log.WithError(err).Warn("outreach fetch failed, treating as empty")
		return nil
	}
	return env.Records
}

// CreateRecord creates an outreach record server-side.
func (c *Client) CreateRecord(ctx context.Context, payload RecordPayload) (models.Outreach, error) {
	var env recordEnvelope
	if err := c.do(ctx, c.write, http.MethodPost, "/api/outreach/records", payload, &env); err != nil {
		return models.Outreach{}, fmt.Errorf("create outreach record: %w", err)
	}
	return env.Record, nil
}

// UpdateRecord applies a partial update to an outreach record.
func (c *Client) UpdateRecord(ctx context.Context, id string, patch RecordPayload) (models.Outreach, error) {
	var env recordEnvelope
	if err := c.do(ctx, c.write, http.MethodPatch, "/api/outreach/records/"+id, patch, &env); err != nil {
		return models.Outreach{}, fmt.Errorf("update outreach record %s: %w", id, err)
	}
	return env.Record, nil
}

// AddNote attaches a note to an outreach record.
func (c *Client) AddNote(ctx context.Context, recordID, body string) (models.Note, error) {
	var env noteEnvelope
	in := map[string]string{"body": body}
	if err := c.do(ctx, c.write, http.MethodPost, "/api/outreach/records/"+recordID+"/notes", in, &env); err != nil {
		return models.Note{}, fmt.Errorf("add outreach note: %w", err)
	}
	return env.Note, nil
}

// AddTask attaches a task to an outreach record.
func (c *Client) AddTask(ctx context.Context, recordID string, payload TaskPayload) (models.Task, error) {
	var env taskEnvelope
	if err := c.do(ctx, c.write, http.MethodPost, "/api/outreach/records/"+recordID+"/tasks", payload, &env); err != nil {
		return models.Task{}, fmt.Errorf("add outreach task: %w", err)
	}
	return env.Task, nil
}

// UpdateTask applies a partial update to an outreach task.
func (c *Client) UpdateTask(ctx context.Context, taskID string, patch TaskPatch) (models.Task, error) {
	var env taskEnvelope
	if err := c.do(ctx, c.write, http.MethodPatch, "/api/outreach/tasks/"+taskID, patch, &env); err != nil {
		return models.Task{}, fmt.Errorf("update outreach task %s: %w", taskID, err)
	}
	return env.Task, nil
}

// LinkGmailThread associates a Gmail thread with an outreach record.
func (c *Client) LinkGmailThread(ctx context.Context, recordID, threadID string) error {
	in := map[string]string{"gmailThreadId": threadID}
	if err := c.do(ctx, c.write, http.MethodPost, "/api/outreach/records/"+recordID+"/link-gmail-thread", in, nil); err != nil {
		return fmt.Errorf("link gmail thread: %w", err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, hc *retryablehttp.Client, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := gjson.GetBytes(raw, "error").String()
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("%s %s: %s", method, path, msg)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: decode response: %w", method, path, err)
	}
	return nil
}
