// Package fakeserver is an in-memory chat backend speaking the same REST and
// WebSocket API as the real one. Tests in the other packages run against it.
package fakeserver

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"mchat/models"
)

const (
	SessionCookie   = "mchat-session"
	defaultPageSize = 10
	webpMediaType   = "image/webp"
)

type user struct {
	password []byte // bcrypt hash
	bio      string
	lastTime *int64
	contacts map[string]struct{}
	image    []byte
}

type socket struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *socket) write(v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteJSON(v)
}

type Server struct {
	URL string

	ts       *httptest.Server
	mu       sync.Mutex
	users    map[string]*user
	sessions map[string]string
	msgs     []models.Message
	groups   []models.Group
	sockets  map[string]*socket
	requests map[string]int
	online   chan string
}

// Start serves a fresh backend on a loopback port.
func Start() *Server {
	s := &Server{
		users:    make(map[string]*user),
		sessions: make(map[string]string),
		sockets:  make(map[string]*socket),
		requests: make(map[string]int),
		online:   make(chan string, 16),
	}
	s.ts = httptest.NewServer(s.routes())
	s.URL = s.ts.URL
	return s
}

func (s *Server) Close() {
	s.mu.Lock()
	for _, sock := range s.sockets {
		sock.conn.Close()
	}
	s.mu.Unlock()
	s.ts.Close()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.countRequests)

	r.Post("/login", s.handleLogin)
	r.Post("/create", s.handleSignup)
	r.Delete("/logout", s.handleLogout)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/user", s.handleUser)
		r.Get("/contacts", s.handleContacts)
		r.Get("/contact/{name}", s.handleContact)
		r.Post("/add-contact/{name}", s.handleAddContact)
		r.Post("/delete-contact/{name}", s.handleDeleteContact)
		r.Get("/msgs/{name}", s.handleMessages)
		r.Post("/read/{name}", s.handleRead)
		r.Get("/unread", s.handleUnread)
		r.Post("/bio", s.handleBio)
		r.Get("/image/{name}", s.handleImage)
		r.Post("/upload-image", s.handleUploadImage)
		r.Post("/create-group", s.handleCreateGroup)
		r.Get("/ws", s.handleWS)
	})
	return r
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Method + " " + r.URL.Path
		s.mu.Lock()
		s.requests[key]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name, ok := s.sessionUser(r)
		if !ok {
			http.Error(w, "Unathorized", http.StatusUnauthorized)
			return
		}
		r.Header.Set("X-Session-User", name)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) sessionUser(r *http.Request) (string, bool) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return "", false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	name, ok := s.sessions[c.Value]
	if !ok {
		return "", false
	}
	if _, exists := s.users[name]; !exists {
		return "", false
	}
	return name, true
}

func me(r *http.Request) string {
	return r.Header.Get("X-Session-User")
}

func (s *Server) openSession(w http.ResponseWriter, name string) {
	buf := make([]byte, 16)
	rand.Read(buf)
	token := hex.EncodeToString(buf)

	s.mu.Lock()
	s.sessions[token] = name
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: token, Path: "/", HttpOnly: true})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var in models.User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Json deserialize error", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	u, ok := s.users[in.Username]
	s.mu.Unlock()
	if !ok {
		http.Error(w, "Couldn't login user", http.StatusUnauthorized)
		return
	}
	if bcrypt.CompareHashAndPassword(u.password, []byte(in.Password)) != nil {
		http.Error(w, "Wrong password", http.StatusUnauthorized)
		return
	}
	s.openSession(w, in.Username)
	w.Write([]byte("Welcome!"))
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in models.User
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Json deserialize error", http.StatusBadRequest)
		return
	}
	if err := s.CreateUser(in.Username, in.Password); err != nil {
		http.Error(w, "Couldn't create user", http.StatusUnauthorized)
		return
	}
	s.openSession(w, in.Username)
	w.Write([]byte("Welcome!"))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, c.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	w.Write([]byte("You are out!"))
}

func (s *Server) handleUser(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{"username": me(r)})
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	owner := me(r)
	search := r.URL.Query().Get("search")

	s.mu.Lock()
	names := make([]string, 0)
	for name := range s.users[owner].contacts {
		if strings.Contains(name, search) {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]models.ChatPreview, 0, len(names))
	for _, name := range names {
		p := models.ChatPreview{Name: name}
		if last, ok := s.lastMessageLocked(owner, name); ok {
			p.LastMsg = &last
		}
		out = append(out, p)
	}
	s.mu.Unlock()

	writeJSON(w, out)
}

func (s *Server) handleContact(w http.ResponseWriter, r *http.Request) {
	owner := me(r)
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	_, isContact := s.users[owner].contacts[name]
	u := s.users[name]
	var info models.ContactInfo
	if isContact && u != nil {
		info = models.ContactInfo{Name: name, LastTime: u.lastTime, Bio: u.bio}
	}
	s.mu.Unlock()

	if !isContact || u == nil {
		http.Error(w, "Contact not found", http.StatusNotFound)
		return
	}
	writeJSON(w, info)
}

func (s *Server) handleAddContact(w http.ResponseWriter, r *http.Request) {
	owner := me(r)
	name := chi.URLParam(r, "name")
	if owner == name {
		http.Error(w, "You can't be a contact of yourself", http.StatusBadRequest)
		return
	}
	if err := s.AddContact(owner, name); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Write([]byte("Added to contacts"))
}

func (s *Server) handleDeleteContact(w http.ResponseWriter, r *http.Request) {
	owner := me(r)
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	_, ok := s.users[owner].contacts[name]
	delete(s.users[owner].contacts, name)
	s.mu.Unlock()

	if !ok {
		http.Error(w, "It wasn't removed", http.StatusInternalServerError)
		return
	}
	w.Write([]byte("Removed from contacts"))
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	owner := me(r)
	name := chi.URLParam(r, "name")
	size := queryInt(r, "size", defaultPageSize)
	offset := queryInt(r, "offset", 0)

	s.mu.Lock()
	conv := s.conversationLocked(owner, name)
	s.mu.Unlock()

	// newest first
	sort.SliceStable(conv, func(i, j int) bool { return conv[i].Time > conv[j].Time })
	if offset > len(conv) {
		offset = len(conv)
	}
	end := offset + size
	if end > len(conv) {
		end = len(conv)
	}
	writeJSON(w, conv[offset:end])
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	reader := me(r)
	writer := chi.URLParam(r, "name")

	s.mu.Lock()
	for i := range s.msgs {
		if s.msgs[i].Sender == writer && s.msgs[i].Recipient == reader {
			s.msgs[i].Read = true
		}
	}
	sock := s.sockets[writer]
	s.mu.Unlock()

	if sock != nil {
		sock.write(models.Message{Read: true, Sender: reader})
	}
	w.Write([]byte("Messages read"))
}

func (s *Server) handleUnread(w http.ResponseWriter, r *http.Request) {
	owner := me(r)

	s.mu.Lock()
	counts := make(map[string]int)
	for _, m := range s.msgs {
		if m.Recipient == owner && !m.Read {
			counts[m.Sender]++
		}
	}
	s.mu.Unlock()

	out := make([]models.UnreadCount, 0, len(counts))
	for contact, n := range counts {
		out = append(out, models.UnreadCount{Contact: contact, Unread: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Contact < out[j].Contact })
	writeJSON(w, out)
}

func (s *Server) handleBio(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Bio string `json:"bio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Json deserialize error", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.users[me(r)].bio = in.Bio
	s.mu.Unlock()
	w.Write([]byte("Bio updated successfully"))
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	s.mu.Lock()
	var img []byte
	if u := s.users[name]; u != nil {
		img = u.image
	}
	s.mu.Unlock()

	if img == nil {
		http.Error(w, "Couldn't read image from the server", http.StatusInternalServerError)
		return
	}
	w.Write([]byte("data:" + webpMediaType + ";base64," + base64.StdEncoding.EncodeToString(img)))
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Data string `json:"data"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Json deserialize error", http.StatusBadRequest)
		return
	}
	meta, payload, ok := strings.Cut(strings.TrimPrefix(in.Data, "data:"), ",")
	if !ok || !strings.HasPrefix(in.Data, "data:") {
		http.Error(w, "No image uploaded", http.StatusBadRequest)
		return
	}
	if meta != webpMediaType+";base64" {
		http.Error(w, "Image wasn't a WebP", http.StatusBadRequest)
		return
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		http.Error(w, "No image uploaded", http.StatusBadRequest)
		return
	}
	s.SetImage(me(r), data)
	w.Write([]byte("done"))
}

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var in models.Group
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Json deserialize error", http.StatusBadRequest)
		return
	}
	s.mu.Lock()
	s.groups = append(s.groups, in)
	s.mu.Unlock()
	w.Write([]byte("Group created successfully -> " + strconv.Itoa(len(in.People))))
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	name := me(r)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	sock := &socket{conn: conn}

	s.mu.Lock()
	s.sockets[name] = sock
	s.users[name].lastTime = nil
	s.mu.Unlock()

	select {
	case s.online <- name:
	default:
	}

	defer func() {
		now := time.Now().UnixMilli()
		s.mu.Lock()
		if s.sockets[name] == sock {
			delete(s.sockets, name)
			s.users[name].lastTime = &now
		}
		s.mu.Unlock()
		conn.Close()
	}()

	for {
		var msg models.Message
		if err := conn.ReadJSON(&msg); err != nil {
			return
		}
		msg.Sender = name
		msg.Read = false
		s.deliver(msg)
	}
}

func (s *Server) deliver(msg models.Message) {
	s.mu.Lock()
	s.msgs = append(s.msgs, msg)
	sock := s.sockets[msg.Recipient]
	s.mu.Unlock()

	if sock != nil {
		sock.write(msg)
	}
}

func (s *Server) conversationLocked(a, b string) []models.Message {
	var out []models.Message
	for _, m := range s.msgs {
		if (m.Sender == a && m.Recipient == b) || (m.Sender == b && m.Recipient == a) {
			out = append(out, m)
		}
	}
	return out
}

func (s *Server) lastMessageLocked(a, b string) (models.Message, bool) {
	var last models.Message
	found := false
	for _, m := range s.conversationLocked(a, b) {
		if !found || m.Time >= last.Time {
			last = m
			found = true
		}
	}
	return last, found
}

func queryInt(r *http.Request, key string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
