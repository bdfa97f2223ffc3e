package fakeserver

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"

	"mchat/models"
)

var (
	ErrUserExists  = errors.New("user already exists")
	ErrNoSuchUser  = errors.New("couldn't add contact")
	ErrDuplicate   = errors.New("already a contact")
	ErrNotOnline   = errors.New("user has no open socket")
	ErrWaitTimeout = errors.New("timed out waiting for socket")
)

func (s *Server) CreateUser(name, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[name]; ok {
		return ErrUserExists
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	s.users[name] = &user{
		password: hashed,
		bio:      fmt.Sprintf("Good morning, I'm %s", name),
		lastTime: &now,
		contacts: make(map[string]struct{}),
	}
	return nil
}

// AddContact makes contact appear in owner's list (one direction only).
func (s *Server) AddContact(owner, contact string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.users[owner]
	if !ok {
		return ErrNoSuchUser
	}
	if _, ok := s.users[contact]; !ok {
		return ErrNoSuchUser
	}
	if _, ok := o.contacts[contact]; ok {
		return ErrDuplicate
	}
	o.contacts[contact] = struct{}{}
	return nil
}

func (s *Server) SetImage(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.users[name]; u != nil {
		u.image = append([]byte(nil), data...)
	}
}

func (s *Server) Bio(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u := s.users[name]; u != nil {
		return u.bio
	}
	return ""
}

// Seed stores a message as history without pushing it to anyone.
func (s *Server) Seed(msgs ...models.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msgs...)
}

// Push stores msg and delivers it to the recipient's socket, as if the
// sender had written it on their own connection.
func (s *Server) Push(msg models.Message) error {
	s.mu.Lock()
	_, online := s.sockets[msg.Recipient]
	s.mu.Unlock()
	if !online {
		return ErrNotOnline
	}
	s.deliver(msg)
	return nil
}

// PushRaw writes an arbitrary frame to name's socket.
func (s *Server) PushRaw(name string, payload []byte) error {
	s.mu.Lock()
	sock := s.sockets[name]
	s.mu.Unlock()
	if sock == nil {
		return ErrNotOnline
	}
	sock.mu.Lock()
	defer sock.mu.Unlock()
	return sock.conn.WriteMessage(websocket.TextMessage, payload)
}

// WaitOnline blocks until name has an open socket.
func (s *Server) WaitOnline(name string, timeout time.Duration) error {
	deadline := time.After(timeout)
	for {
		s.mu.Lock()
		_, ok := s.sockets[name]
		s.mu.Unlock()
		if ok {
			return nil
		}
		select {
		case <-s.online:
		case <-time.After(10 * time.Millisecond):
		case <-deadline:
			return ErrWaitTimeout
		}
	}
}

// DropSocket closes name's connection from the server side.
func (s *Server) DropSocket(name string) {
	s.mu.Lock()
	sock := s.sockets[name]
	s.mu.Unlock()
	if sock != nil {
		sock.conn.Close()
	}
}

// ExpireSessions forgets every session token.
func (s *Server) ExpireSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]string)
}

// Messages returns a copy of every stored message in arrival order.
func (s *Server) Messages() []models.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Message(nil), s.msgs...)
}

// WaitMessages blocks until at least n messages are stored.
func (s *Server) WaitMessages(n int, timeout time.Duration) ([]models.Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		msgs := s.Messages()
		if len(msgs) >= n {
			return msgs, nil
		}
		if time.Now().After(deadline) {
			return msgs, ErrWaitTimeout
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (s *Server) Groups() []models.Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Group(nil), s.groups...)
}

// Requests reports how many times "METHOD /path" was hit.
func (s *Server) Requests(key string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[key]
}
