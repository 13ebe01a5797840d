package glpi

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"
)

const defaultTicketRange = "0-10"

// Client talks to the GLPI REST API (apirest.php).
type Client struct {
	client      *http.Client
	baseURL     string
	appToken    string
	ticketRange string
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.client = c }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(cl *Client) {
		if d > 0 {
			cl.client.Timeout = d
		}
	}
}

// WithTicketRange sets the range parameter used when listing tickets, e.g. "0-49".
func WithTicketRange(r string) Option {
	return func(cl *Client) {
		if r != "" {
			cl.ticketRange = r
		}
	}
}

// New creates a client for the API rooted at baseURL
// (e.g. https://glpi.example.com/apirest.php).
func New(baseURL, appToken string, opts ...Option) *Client {
	c := &Client{
		client:      &http.Client{Timeout: 30 * time.Second},
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		appToken:    appToken,
		ticketRange: defaultTicketRange,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// InitSession exchanges login and password for a session token.
func (c *Client) InitSession(ctx context.Context, login, password string) (string, error) {
	creds := base64.StdEncoding.EncodeToString([]byte(login + ":" + password))
	var out struct {
		SessionToken string `json:"session_token"`
	}
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/initSession",
		header: map[string]string{"Authorization": "Basic " + creds},
		accept: []int{http.StatusOK, http.StatusPartialContent},
	}, &out)
	if err != nil {
		return "", fmt.Errorf("glpi: init session: %w", err)
	}
	if out.SessionToken == "" {
		return "", fmt.Errorf("glpi: init session: empty session token")
	}
	return out.SessionToken, nil
}

// GetFullSession returns the active profile and user id behind token.
func (c *Client) GetFullSession(ctx context.Context, token string) (*FullSession, error) {
	var out struct {
		Session struct {
			GlpiID        Int    `json:"glpiID"`
			GlpiName      string `json:"glpiname"`
			ActiveProfile struct {
				Name string `json:"name"`
			} `json:"glpiactiveprofile"`
		} `json:"session"`
	}
	err := c.do(ctx, request{method: http.MethodGet, path: "/getFullSession", token: token}, &out)
	if err != nil {
		return nil, fmt.Errorf("glpi: get full session: %w", err)
	}
	return &FullSession{
		UserID:  int(out.Session.GlpiID),
		Login:   out.Session.GlpiName,
		Profile: out.Session.ActiveProfile.Name,
	}, nil
}

// KillSession invalidates token on the server.
func (c *Client) KillSession(ctx context.Context, token string) error {
	if err := c.do(ctx, request{method: http.MethodGet, path: "/killSession", token: token}, nil); err != nil {
		return fmt.Errorf("glpi: kill session: %w", err)
	}
	return nil
}

// ListTickets returns the newest tickets visible to token, newest first.
func (c *Client) ListTickets(ctx context.Context, token string) ([]Ticket, error) {
	q := url.Values{}
	q.Set("range", c.ticketRange)
	q.Set("order", "DESC")
	q.Set("sort", "id")

	var out []Ticket
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   "/Ticket",
		token:  token,
		query:  q,
		accept: []int{http.StatusOK, http.StatusPartialContent},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("glpi: list tickets: %w", err)
	}
	return out, nil
}

// GetTicket fetches a single ticket.
func (c *Client) GetTicket(ctx context.Context, token string, id int) (*Ticket, error) {
	var out Ticket
	err := c.do(ctx, request{method: http.MethodGet, path: "/Ticket/" + strconv.Itoa(id), token: token}, &out)
	if err != nil {
		return nil, fmt.Errorf("glpi: get ticket %d: %w", id, err)
	}
	return &out, nil
}

// ListFollowups returns the comments (ITIL followups) of a ticket in server order.
func (c *Client) ListFollowups(ctx context.Context, token string, ticketID int) ([]Comment, error) {
	var out []Comment
	err := c.do(ctx, request{
		method: http.MethodGet,
		path:   fmt.Sprintf("/Ticket/%d/ITILFollowup", ticketID),
		token:  token,
		accept: []int{http.StatusOK, http.StatusPartialContent},
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("glpi: list followups of %d: %w", ticketID, err)
	}
	return out, nil
}

// GetUser fetches a user record.
func (c *Client) GetUser(ctx context.Context, token string, id int) (*User, error) {
	var out User
	err := c.do(ctx, request{method: http.MethodGet, path: "/User/" + strconv.Itoa(id), token: token}, &out)
	if err != nil {
		return nil, fmt.Errorf("glpi: get user %d: %w", id, err)
	}
	return &out, nil
}

// CreateTicket submits a new ticket and returns its id. Only 201 counts as success.
func (c *Client) CreateTicket(ctx context.Context, token string, in TicketInput) (int, error) {
	var out struct {
		ID Int `json:"id"`
	}
	err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/Ticket",
		token:  token,
		body:   map[string]any{"input": in},
		accept: []int{http.StatusCreated},
	}, &out)
	if err != nil {
		return 0, fmt.Errorf("glpi: create ticket: %w", err)
	}
	return int(out.ID), nil
}

type request struct {
	method string
	path   string
	token  string
	query  url.Values
	header map[string]string
	body   any
	accept []int // defaults to 200
}

func (c *Client) do(ctx context.Context, r request, out any) error {
	u := c.baseURL + r.path
	if len(r.query) > 0 {
		u += "?" + r.query.Encode()
	}

	var body io.Reader
	if r.body != nil {
		payload, err := json.Marshal(r.body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, r.method, u, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.appToken != "" {
		req.Header.Set("App-Token", c.appToken)
	}
	if r.token != "" {
		req.Header.Set("Session-Token", r.token)
	}
	for k, v := range r.header {
		req.Header.Set(k, v)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	accept := r.accept
	if len(accept) == 0 {
		accept = []int{http.StatusOK}
	}
	if !slices.Contains(accept, resp.StatusCode) {
		return &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}
