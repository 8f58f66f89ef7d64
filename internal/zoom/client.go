// Package zoom is a thin client for the Zoom report API using
// server-to-server OAuth (account_credentials grant).
package zoom

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.zoom.us/v2"
	defaultAuthURL = "https://zoom.us/oauth/token"

	pageSize = 300

	// Zoom's error code for a token missing the report API scope.
	codeMissingScope = 4711
)

// Config carries the server-to-server OAuth credentials. BaseURL and AuthURL
// are overridable for tests and default to the public endpoints.
type Config struct {
	AccountID    string
	ClientID     string
	ClientSecret string
	BaseURL      string
	AuthURL      string
}

// FlexID decodes a meeting identifier that arrives as a JSON number from
// some endpoints and a JSON string from others.
type FlexID string

func (f *FlexID) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = FlexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexID(n.String())
	return nil
}

func (f FlexID) String() string { return string(f) }

// Meeting is one past instance of a recurring meeting.
type Meeting struct {
	ID        FlexID    `json:"id"`
	UUID      string    `json:"uuid"`
	Topic     string    `json:"topic"`
	StartTime time.Time `json:"start_time"`
}

// InstanceID returns the identifier to fetch participants with. The UUID is
// exact for a past instance; the numeric ID may resolve to the latest one.
func (m Meeting) InstanceID() string {
	if m.UUID != "" {
		return m.UUID
	}
	return m.ID.String()
}

// Participant is one attendee row; the platform repeats a name per rejoin.
type Participant struct {
	Name      string `json:"name"`
	UserEmail string `json:"user_email"`
}

// APIError is a non-2xx response from the Zoom API.
type APIError struct {
	Status  int
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("zoom api: status %d code %d: %s", e.Status, e.Code, e.Message)
}

// IsPermission reports whether the failure is a credentials/scope problem
// rather than missing data, so callers can surface an actionable diagnostic.
func (e *APIError) IsPermission() bool {
	return e.Status == http.StatusUnauthorized ||
		e.Status == http.StatusForbidden ||
		e.Code == codeMissingScope ||
		strings.Contains(strings.ToLower(e.Message), "scope")
}

// IsPermission reports whether err is a permission-class API error.
func IsPermission(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.IsPermission()
}

// Client calls the Zoom API. All requests are sequential; the caller obtains
// one token per report and reuses it across sub-requests.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = defaultAuthURL
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		log:  log,
	}
}

// Token exchanges the account credentials for a bearer token.
func (c *Client) Token(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "account_credentials")
	form.Set("account_id", c.cfg.AccountID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.AuthURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+basic)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := c.do(req, &out); err != nil {
		return "", fmt.Errorf("get access token: %w", err)
	}
	if out.AccessToken == "" {
		return "", errors.New("get access token: empty token in response")
	}
	return out.AccessToken, nil
}

// PastMeetings lists the host's past meeting instances between from and to
// (inclusive, date precision), following next_page_token to the end.
func (c *Client) PastMeetings(ctx context.Context, token, host string, from, to time.Time) ([]Meeting, error) {
	endpoint := fmt.Sprintf("%s/report/users/%s/meetings", c.cfg.BaseURL, url.PathEscape(host))

	var (
		meetings  []Meeting
		pageToken string
	)
	for {
		q := url.Values{}
		q.Set("from", from.Format("2006-01-02"))
		q.Set("to", to.Format("2006-01-02"))
		q.Set("page_size", fmt.Sprint(pageSize))
		q.Set("type", "past")
		if pageToken != "" {
			q.Set("next_page_token", pageToken)
		}

		var page struct {
			Meetings      []Meeting `json:"meetings"`
			NextPageToken string    `json:"next_page_token"`
		}
		if err := c.get(ctx, token, endpoint, q, &page); err != nil {
			return nil, fmt.Errorf("list meetings: %w", err)
		}
		meetings = append(meetings, page.Meetings...)
		if page.NextPageToken == "" {
			return meetings, nil
		}
		pageToken = page.NextPageToken
	}
}

// Participants lists every attendee row of a meeting instance, following
// next_page_token until exhausted. Rows are raw: duplicates per rejoin.
func (c *Client) Participants(ctx context.Context, token, meetingID string) ([]Participant, error) {
	endpoint := fmt.Sprintf("%s/report/meetings/%s/participants", c.cfg.BaseURL, url.PathEscape(meetingID))

	var (
		participants []Participant
		pageToken    string
	)
	for {
		q := url.Values{}
		q.Set("page_size", fmt.Sprint(pageSize))
		if pageToken != "" {
			q.Set("next_page_token", pageToken)
		}

		var page struct {
			Participants  []Participant `json:"participants"`
			NextPageToken string        `json:"next_page_token"`
		}
		if err := c.get(ctx, token, endpoint, q, &page); err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		participants = append(participants, page.Participants...)
		if page.NextPageToken == "" {
			return participants, nil
		}
		pageToken = page.NextPageToken
	}
}

func (c *Client) get(ctx context.Context, token, endpoint string, q url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{Status: resp.StatusCode}
		// The body is Zoom's {"code":...,"message":...} payload when present.
		_ = json.Unmarshal(body, apiErr)
		if apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		c.log.Warn("zoom api error",
			zap.String("url", req.URL.Path),
			zap.Int("status", resp.StatusCode),
			zap.String("body", apiErr.Message))
		return apiErr
	}

	return json.Unmarshal(body, out)
}
