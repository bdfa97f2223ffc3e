// Package api is the REST side of the chat backend. A Client carries the
// session cookie in its jar; the same jar authenticates the /ws socket.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mchat/models"
)

const (
	MinUsernameLen = 4
	MaxUsernameLen = 32
	MinPasswordLen = 8
)

var (
	ErrUsernameLength = fmt.Errorf("username must be %d to %d characters", MinUsernameLen, MaxUsernameLen)
	ErrPasswordLength = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	ErrSelfContact    = errors.New("you can't be a contact of yourself")
	ErrEmptyName      = errors.New("name is required")
)

// Error is a non-2xx answer. Message is the response body when the server
// sent one, the status text otherwise.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	return e.Message
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized
}

type Client struct {
	base *url.URL
	http *http.Client
	jar  http.CookieJar
}

// NewClient creates a client for the backend at baseURL. A nil jar gets a
// fresh in-memory one.
func NewClient(baseURL string, jar http.CookieJar, timeout time.Duration) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported server url scheme %q", base.Scheme)
	}
	if jar == nil {
		jar, err = cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
	}
	return &Client{
		base: base,
		http: &http.Client{Jar: jar, Timeout: timeout},
		jar:  jar,
	}, nil
}

func (c *Client) Jar() http.CookieJar {
	return c.jar
}

func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Cookies returns the session cookies currently held for the backend.
func (c *Client) Cookies() []*http.Cookie {
	return c.jar.Cookies(c.base)
}

// SetCookies seeds the jar, typically from a persisted session.
func (c *Client) SetCookies(cookies []*http.Cookie) {
	c.jar.SetCookies(c.base, cookies)
}

func (c *Client) endpoint(path string, query url.Values) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if query != nil {
		u.RawQuery = query.Encode()
	}
	return u.String()
}

// do sends the request and returns the body of a 2xx response.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: read body: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(data))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		log.Debug().Str("method", method).Str("path", path).Int("status", resp.StatusCode).Msg("[api] request failed")
		return nil, &Error{Status: resp.StatusCode, Message: msg}
	}
	return data, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	data, err := c.do(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("GET %s: decode: %w", path, err)
	}
	return nil
}

// Login opens a session for an existing user.
func (c *Client) Login(ctx context.Context, username, password string) error {
	_, err := c.do(ctx, http.MethodPost, "/login", nil, models.User{Username: username, Password: password})
	return err
}

// Signup creates the user and opens a session for it.
func (c *Client) Signup(ctx context.Context, username, password string) error {
	if err := ValidateSignup(username, password); err != nil {
		return err
	}
	_, err := c.do(ctx, http.MethodPost, "/create", nil, models.User{Username: username, Password: password})
	return err
}

// ValidateSignup applies the account rules before any request is made.
func ValidateSignup(username, password string) error {
	if n := len([]rune(username)); n < MinUsernameLen || n > MaxUsernameLen {
		return ErrUsernameLength
	}
	if len([]rune(password)) < MinPasswordLen {
		return ErrPasswordLength
	}
	return nil
}

func (c *Client) Logout(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodDelete, "/logout", nil, nil)
	return err
}

// User returns the username bound to the current session.
func (c *Client) User(ctx context.Context) (string, error) {
	data, err := c.do(ctx, http.MethodGet, "/user", nil, nil)
	if err != nil {
		return "", err
	}
	// Older backends answer with a bare JSON string.
	var resp struct {
		Username string `json:"username"`
	}
	if err := json.Unmarshal(data, &resp); err == nil && resp.Username != "" {
		return resp.Username, nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil && name != "" {
		return name, nil
	}
	return "", fmt.Errorf("GET /user: unexpected body %q", string(data))
}

// Contacts lists the user's contacts, optionally filtered by a substring.
// Each entry carries the last exchanged message when the server has one.
func (c *Client) Contacts(ctx context.Context, search string) ([]models.ChatPreview, error) {
	var query url.Values
	if search != "" {
		query = url.Values{"search": {search}}
	}

	var raw []json.RawMessage
	if err := c.getJSON(ctx, "/contacts", query, &raw); err != nil {
		return nil, err
	}

	out := make([]models.ChatPreview, 0, len(raw))
	for _, item := range raw {
		var name string
		if err := json.Unmarshal(item, &name); err == nil {
			out = append(out, models.ChatPreview{Name: name})
			continue
		}
		var p models.ChatPreview
		if err := json.Unmarshal(item, &p); err != nil {
			return nil, fmt.Errorf("GET /contacts: decode entry: %w", err)
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Client) Contact(ctx context.Context, name string) (*models.ContactInfo, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	var info models.ContactInfo
	if err := c.getJSON(ctx, "/contact/"+url.PathEscape(name), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) AddContact(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	_, err := c.do(ctx, http.MethodPost, "/add-contact/"+url.PathEscape(name), nil, nil)
	return err
}

func (c *Client) DeleteContact(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	_, err := c.do(ctx, http.MethodPost, "/delete-contact/"+url.PathEscape(name), nil, nil)
	return err
}

// Messages fetches one page of the conversation with name. The server
// returns the newest messages first; offset counts from the newest.
func (c *Client) Messages(ctx context.Context, name string, size, offset int) ([]models.Message, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	query := url.Values{
		"size":   {strconv.Itoa(size)},
		"offset": {strconv.Itoa(offset)},
	}
	var msgs []models.Message
	if err := c.getJSON(ctx, "/msgs/"+url.PathEscape(name), query, &msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkRead tells the server every message from name has been seen.
func (c *Client) MarkRead(ctx context.Context, name string) error {
	if name == "" {
		return ErrEmptyName
	}
	_, err := c.do(ctx, http.MethodPost, "/read/"+url.PathEscape(name), nil, nil)
	return err
}

func (c *Client) Unread(ctx context.Context) ([]models.UnreadCount, error) {
	var counts []models.UnreadCount
	if err := c.getJSON(ctx, "/unread", nil, &counts); err != nil {
		return nil, err
	}
	return counts, nil
}

func (c *Client) UpdateBio(ctx context.Context, bio string) error {
	_, err := c.do(ctx, http.MethodPost, "/bio", nil, map[string]string{"bio": bio})
	return err
}

func (c *Client) CreateGroup(ctx context.Context, name string, people []string) error {
	if name == "" {
		return ErrEmptyName
	}
	_, err := c.do(ctx, http.MethodPost, "/create-group", nil, models.Group{Name: name, People: people})
	return err
}
