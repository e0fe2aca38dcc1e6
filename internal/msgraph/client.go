package msgraph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/christopherklint97/meetr/internal/calendar"
	"github.com/christopherklint97/meetr/internal/draft"
)

const (
	graphBaseURL = "https://graph.microsoft.com/v1.0"
	maxRetries   = 3
)

// Client is a Microsoft Graph API client for calendar and draft operations.
type Client struct {
	auth          *Auth
	baseURL       string
	loc           *time.Location
	httpClient    *http.Client
	retryInterval time.Duration
	logger        *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at another Graph endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithRetryInterval sets the initial backoff between retries.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// NewClient creates a new Graph API client. Entry times are converted to loc.
func NewClient(auth *Auth, loc *time.Location, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if loc == nil {
		loc = time.Local
	}
	c := &Client{
		auth:    auth,
		baseURL: graphBaseURL,
		loc:     loc,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		retryInterval: time.Second,
		logger:        logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// calendarViewResponse represents the Graph API calendarView response.
type calendarViewResponse struct {
	Value    []graphEvent `json:"value"`
	NextLink string       `json:"@odata.nextLink"`
}

type graphEvent struct {
	ID             string          `json:"id"`
	ICalUID        string          `json:"iCalUId"`
	Subject        string          `json:"subject"`
	Start          graphDateTime   `json:"start"`
	End            graphDateTime   `json:"end"`
	IsCancelled    bool            `json:"isCancelled"`
	IsAllDay       bool            `json:"isAllDay"`
	Sensitivity    string          `json:"sensitivity"`
	ShowAs         string          `json:"showAs"`
	ResponseStatus *graphResponse  `json:"responseStatus"`
	Organizer      *graphRecipient `json:"organizer"`
}

type graphDateTime struct {
	DateTime string `json:"dateTime"`
	TimeZone string `json:"timeZone"`
}

type graphResponse struct {
	Response string `json:"response"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name,omitempty"`
	Address string `json:"address"`
}

// FetchEntries retrieves calendar entries starting in [from, to).
// Cancelled, all-day and other excluded items are returned as well; the
// caller's filters decide what counts.
func (c *Client) FetchEntries(ctx context.Context, from, to time.Time) ([]calendar.Entry, error) {
	token, err := c.auth.EnsureValidToken(ctx)
	if err != nil {
		return nil, err
	}

	params := url.Values{
		"startDateTime": {from.UTC().Format("2006-01-02T15:04:05")},
		"endDateTime":   {to.UTC().Format("2006-01-02T15:04:05")},
		"$select":       {"id,iCalUId,subject,start,end,isCancelled,isAllDay,sensitivity,showAs,responseStatus,organizer"},
		"$top":          {"100"},
		"$orderby":      {"start/dateTime"},
	}

	requestURL := c.baseURL + "/me/calendarView?" + params.Encode()
	var all []calendar.Entry

	for requestURL != "" {
		entries, nextLink, err := c.fetchPage(ctx, token, requestURL)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.Start.Before(from) && e.Start.Before(to) {
				all = append(all, e)
			}
		}
		requestURL = nextLink
	}

	c.logger.Debug("graph calendar entries fetched", "count", len(all))
	return all, nil
}

func (c *Client) fetchPage(ctx context.Context, token, requestURL string) ([]calendar.Entry, string, error) {
	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Prefer", "outlook.timezone=\"UTC\"")
		return req, nil
	})
	if err != nil {
		return nil, "", err
	}

	var viewResp calendarViewResponse
	if err := json.Unmarshal(body, &viewResp); err != nil {
		return nil, "", fmt.Errorf("parsing graph response: %w", err)
	}

	var entries []calendar.Entry
	for _, ge := range viewResp.Value {
		startTime, err := parseGraphDateTime(ge.Start)
		if err != nil {
			c.logger.Debug("skipping event with unparseable start time", "subject", ge.Subject, "error", err)
			continue
		}
		endTime, err := parseGraphDateTime(ge.End)
		if err != nil {
			c.logger.Debug("skipping event with unparseable end time", "subject", ge.Subject, "error", err)
			continue
		}
		entries = append(entries, c.toEntry(ge, startTime, endTime))
	}

	return entries, viewResp.NextLink, nil
}

func (c *Client) toEntry(ge graphEvent, start, end time.Time) calendar.Entry {
	e := calendar.Entry{
		Subject:     ge.Subject,
		Start:       start.In(c.loc),
		End:         end.In(c.loc),
		IsAllDay:    ge.IsAllDay,
		IsCancelled: ge.IsCancelled,
		StableID:    calendar.StableIDOf(ge.ICalUID, ge.ID),
	}

	switch ge.Sensitivity {
	case "personal":
		e.Sensitivity = calendar.SensitivityPersonal
	case "private":
		e.Sensitivity = calendar.SensitivityPrivate
	case "confidential":
		e.Sensitivity = calendar.SensitivityConfidential
	}

	switch ge.ShowAs {
	case "free":
		e.BusyStatus = calendar.BusyFree
	case "tentative":
		e.BusyStatus = calendar.BusyTentative
	case "busy":
		e.BusyStatus = calendar.BusyBusy
	case "oof":
		e.BusyStatus = calendar.BusyOutOfOffice
	case "workingElsewhere":
		e.BusyStatus = calendar.BusyWorkingElsewhere
	}

	if ge.ResponseStatus != nil {
		switch ge.ResponseStatus.Response {
		case "organizer":
			e.Response = calendar.ResponseOrganizer
		case "accepted":
			e.Response = calendar.ResponseAccepted
		case "tentativelyAccepted":
			e.Response = calendar.ResponseTentative
		case "declined":
			e.Response = calendar.ResponseDeclined
		case "notResponded":
			e.Response = calendar.ResponseNotResponded
		}
	}

	if ge.Organizer != nil {
		e.OrganizerName = ge.Organizer.EmailAddress.Name
		e.OrganizerEmail = ge.Organizer.EmailAddress.Address
	}
	return e
}

type draftRequest struct {
	Subject      string           `json:"subject"`
	Body         draftBody        `json:"body"`
	ToRecipients []graphRecipient `json:"toRecipients"`
}

type draftBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// CreateDraft saves msg in the user's Drafts folder. It never sends.
func (c *Client) CreateDraft(ctx context.Context, msg draft.Message) (string, error) {
	token, err := c.auth.EnsureValidToken(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(draftRequest{
		Subject: msg.Subject,
		Body:    draftBody{ContentType: "Text", Content: msg.Body},
		ToRecipients: []graphRecipient{
			{EmailAddress: graphEmailAddress{Address: msg.To}},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling draft: %w", err)
	}

	body, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/me/messages", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("parsing draft response: %w", err)
	}
	c.logger.Info("draft email created", "to", msg.To, "id", created.ID)
	return created.ID, nil
}

// do sends the request built by newReq, retrying transport errors, 429 and
// 5xx responses with exponential backoff. Other non-2xx statuses fail
// immediately.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error)) ([]byte, error) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = c.retryInterval
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, maxRetries), ctx)

	var body []byte
	op := func() error {
		req, err := newReq()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("creating graph request: %w", err))
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("graph API request failed: %w", err)
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("reading graph response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("graph API returned status %d", resp.StatusCode)
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return backoff.Permanent(fmt.Errorf("graph API error (status %d): %s", resp.StatusCode, truncateStr(string(data), 200)))
		}
		body = data
		return nil
	}

	notify := func(err error, wait time.Duration) {
		c.logger.Debug("graph API retrying", "error", err, "wait", wait)
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, err
	}
	return body, nil
}

func parseGraphDateTime(gdt graphDateTime) (time.Time, error) {
	// When we request Prefer: outlook.timezone="UTC", times come back in UTC.
	// The dateTime field is in format "2006-01-02T15:04:05.0000000"
	loc := time.UTC
	if gdt.TimeZone != "" && gdt.TimeZone != "UTC" {
		l, err := time.LoadLocation(gdt.TimeZone)
		if err == nil {
			loc = l
		}
	}

	// Graph API can return times with or without fractional seconds
	for _, layout := range []string{
		"2006-01-02T15:04:05.0000000",
		"2006-01-02T15:04:05",
	} {
		t, err := time.ParseInLocation(layout, gdt.DateTime, loc)
		if err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("cannot parse datetime %q", gdt.DateTime)
}

func truncateStr(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
