// Package chat keeps the client's view of the backend in sync: the contact
// previews with unread counts, the open thread and its pagination, and the
// messages arriving over the socket.
package chat

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"mchat/api"
	"mchat/db"
	"mchat/models"
	"mchat/protocol"
)

const (
	DefaultPageSize = 10
	avatarTTL       = 24 * time.Hour
)

var (
	ErrNotLoggedIn   = errors.New("not logged in")
	ErrNoSession     = errors.New("no saved session")
	ErrNoChat        = errors.New("no chat is open")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNotConnected  = errors.New("not connected")
	ErrPasswordMatch = errors.New("passwords don't match")
)

// Store persists what outlives a run. *db.DB implements it.
type Store interface {
	SaveSession(s db.Session) error
	LoadSession(server string) (*db.Session, error)
	ClearSession(server string) error
	PutAvatar(name, mediaType string, data []byte) (bool, error)
	GetAvatar(name string) (*db.Avatar, error)
}

type EventKind int

const (
	EventPreviews   EventKind = iota // contact list or unread counts changed
	EventThread                      // the open thread changed
	EventConnection                  // socket came up or went down
	EventLoggedOut
)

type Event struct {
	Kind    EventKind
	Contact string
	Err     error
}

type Options struct {
	WebSocketURL string
	PageSize     int
	ScrollRate   float64 // older-page fetches per second, <= 0 for unlimited
	Store        Store   // optional
}

// Session is one logged-in user's synchronised state. Every method is safe
// for concurrent use; network calls never hold the state lock.
type Session struct {
	client   *api.Client
	store    Store
	wsURL    string
	pageSize int
	limiter  *rate.Limiter

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	me        string
	previews  map[string]*models.ChatPreview
	current   *models.ChatInfo
	loaded    int // server messages in current, the next page offset
	exhausted bool
	loading   bool
	gen       uint64
	conn      *protocol.Conn
	listeners []func(Event)
}

func New(client *api.Client, opts Options) *Session {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	limit := rate.Inf
	if opts.ScrollRate > 0 {
		limit = rate.Limit(opts.ScrollRate)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		client:   client,
		store:    opts.Store,
		wsURL:    opts.WebSocketURL,
		pageSize: opts.PageSize,
		limiter:  rate.NewLimiter(limit, 1),
		ctx:      ctx,
		cancel:   cancel,
		previews: make(map[string]*models.ChatPreview),
	}
}

func (s *Session) Client() *api.Client {
	return s.client
}

// Subscribe registers fn to be called after every state change. fn runs on
// whichever goroutine made the change and must not block.
func (s *Session) Subscribe(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

func (s *Session) notify(ev Event) {
	s.mu.Lock()
	listeners := append(([]func(Event))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(ev)
	}
}

// Login opens a server session, starts syncing and saves the cookies.
func (s *Session) Login(ctx context.Context, username, password string) error {
	if err := s.client.Login(ctx, username, password); err != nil {
		return err
	}
	return s.begin(ctx)
}

// Signup creates the account and logs straight into it.
func (s *Session) Signup(ctx context.Context, username, password, repeat string) error {
	if password != repeat {
		return ErrPasswordMatch
	}
	if err := s.client.Signup(ctx, username, password); err != nil {
		return err
	}
	return s.begin(ctx)
}

// Resume restores the saved cookies for this server and starts with them.
// A session the server no longer accepts is forgotten.
func (s *Session) Resume(ctx context.Context) error {
	if s.store == nil {
		return ErrNoSession
	}
	saved, err := s.store.LoadSession(s.server())
	if errors.Is(err, db.ErrNoRows) {
		return ErrNoSession
	}
	if err != nil {
		return err
	}
	s.client.SetCookies(saved.Cookies)

	err = s.Start(ctx)
	if api.IsUnauthorized(err) || errors.Is(err, protocol.ErrUnauthorized) {
		if clearErr := s.store.ClearSession(s.server()); clearErr != nil {
			log.Warn().Err(clearErr).Msg("[chat] clear stale session")
		}
	}
	return err
}

func (s *Session) begin(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}
	err := s.store.SaveSession(db.Session{
		Server:   s.server(),
		Username: s.Me(),
		Cookies:  s.client.Cookies(),
	})
	if err != nil {
		log.Warn().Err(err).Msg("[chat] save session")
	}
	return nil
}

func (s *Session) server() string {
	return s.client.BaseURL().String()
}

// Start verifies the session cookie, opens the socket and loads the
// contact list.
func (s *Session) Start(ctx context.Context) error {
	name, err := s.client.User(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.me = name
	s.mu.Unlock()

	if err := s.connect(ctx); err != nil {
		return err
	}
	log.Info().Str("user", name).Msg("[chat] session started")
	return s.Sync(ctx)
}

func (s *Session) connect(ctx context.Context) error {
	conn, err := protocol.Dial(ctx, s.wsURL, s.client.Jar())
	if err != nil {
		return err
	}
	conn.OnMessage(s.handlePush)
	conn.OnClose(func(err error) {
		s.mu.Lock()
		if s.conn == conn {
			s.conn = nil
		}
		s.mu.Unlock()
		if err != nil {
			log.Warn().Err(err).Msg("[ws] connection lost")
		}
		s.notify(Event{Kind: EventConnection, Err: err})
	})

	s.mu.Lock()
	old := s.conn
	s.conn = conn
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}

	conn.Listen()
	s.notify(Event{Kind: EventConnection})
	return nil
}

// Logout ends the server session and drops all local state, including the
// saved cookies. Local state is cleared even when the request fails.
func (s *Session) Logout(ctx context.Context) error {
	err := s.client.Logout(ctx)

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.me = ""
	s.previews = make(map[string]*models.ChatPreview)
	s.current = nil
	s.gen++
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if s.store != nil {
		if clearErr := s.store.ClearSession(s.server()); clearErr != nil {
			log.Warn().Err(clearErr).Msg("[chat] clear session")
		}
	}
	s.notify(Event{Kind: EventLoggedOut})
	return err
}

// Close stops background work and the socket without logging out.
func (s *Session) Close() {
	s.cancel()

	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
}

func (s *Session) Me() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.me
}

func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn != nil
}

// Previews returns the contact list, most recent conversation first.
// Contacts without messages follow in name order.
func (s *Session) Previews() []models.ChatPreview {
	s.mu.Lock()
	out := make([]models.ChatPreview, 0, len(s.previews))
	for _, p := range s.previews {
		out = append(out, copyPreview(p))
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := lastTime(out[i]), lastTime(out[j])
		if ti != tj {
			return ti > tj
		}
		return out[i].Name < out[j].Name
	})
	return out
}

func (s *Session) Preview(name string) (models.ChatPreview, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.previews[name]
	if !ok {
		return models.ChatPreview{}, false
	}
	return copyPreview(p), true
}

// Current returns a copy of the open thread, or nil.
func (s *Session) Current() *models.ChatInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil {
		return nil
	}
	info := *s.current
	info.Messages = append([]models.Message(nil), s.current.Messages...)
	return &info
}

// HasOlder reports whether scrolling up may still load history.
func (s *Session) HasOlder() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current != nil && !s.exhausted
}

func copyPreview(p *models.ChatPreview) models.ChatPreview {
	out := *p
	if p.LastMsg != nil {
		m := *p.LastMsg
		out.LastMsg = &m
	}
	return out
}

func lastTime(p models.ChatPreview) int64 {
	if p.LastMsg == nil {
		return 0
	}
	return p.LastMsg.Time
}
