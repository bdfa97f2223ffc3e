package chat

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mchat/models"
)

// Sync rebuilds the previews from /contacts joined with /unread. On error the
// previous previews are kept.
func (s *Session) Sync(ctx context.Context) error {
	contacts, err := s.client.Contacts(ctx, "")
	if err != nil {
		return err
	}
	unread, err := s.client.Unread(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	previews := make(map[string]*models.ChatPreview, len(contacts))
	for _, c := range contacts {
		p := c
		p.Unread = 0
		previews[c.Name] = &p
	}
	for _, u := range unread {
		p, ok := previews[u.Contact]
		if !ok {
			p = &models.ChatPreview{Name: u.Contact}
			previews[u.Contact] = p
		}
		p.Unread = u.Unread
	}
	// a push may have landed while the lists were in flight
	for name, old := range s.previews {
		p, ok := previews[name]
		if !ok || old.LastMsg == nil {
			continue
		}
		if p.LastMsg == nil || p.LastMsg.Time < old.LastMsg.Time {
			m := *old.LastMsg
			p.LastMsg = &m
		}
	}
	s.previews = previews
	s.mu.Unlock()

	s.notify(Event{Kind: EventPreviews})
	return nil
}

// Open selects name's thread: loads the contact card and the newest page,
// then marks the thread read. If another Open starts before this one
// finishes, this one's results are dropped.
func (s *Session) Open(ctx context.Context, name string) error {
	gen := s.beginOpen(name)
	s.notify(Event{Kind: EventThread, Contact: name})

	info, err := s.client.Contact(ctx, name)
	if err != nil {
		s.abortOpen(gen)
		return err
	}
	page, err := s.client.Messages(ctx, name, s.pageSize, 0)
	if err != nil {
		s.abortOpen(gen)
		return err
	}

	if !s.installOpen(gen, info, page) {
		log.Debug().Str("contact", name).Msg("[chat] dropping superseded open")
		return nil
	}
	s.notify(Event{Kind: EventThread, Contact: name})

	if err := s.MarkRead(ctx, name); err != nil {
		log.Warn().Err(err).Str("contact", name).Msg("[chat] mark read failed")
	}
	return nil
}

// beginOpen switches to an empty thread for name. Pushes that arrive before
// the first page are kept and merged into it.
func (s *Session) beginOpen(name string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.current = &models.ChatInfo{ContactInfo: models.ContactInfo{Name: name}}
	s.loaded = 0
	s.exhausted = false
	s.loading = true
	return s.gen
}

func (s *Session) abortOpen(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		s.loading = false
	}
}

func (s *Session) installOpen(gen uint64, info *models.ContactInfo, page []models.Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.current == nil {
		return false
	}
	early := s.current.Messages
	s.current = &models.ChatInfo{ContactInfo: *info}
	s.current.Messages = merge(reversed(page), early)
	s.loaded = len(page)
	s.exhausted = len(page) < s.pageSize
	s.loading = false
	return true
}

// LoadOlder fetches the page before the oldest loaded message and prepends
// it. It returns how many messages were added; zero with a nil error means
// there was nothing to do (no thread, a fetch already running, or the start
// of history reached).
func (s *Session) LoadOlder(ctx context.Context) (int, error) {
	s.mu.Lock()
	if s.current == nil || s.loading || s.exhausted {
		s.mu.Unlock()
		return 0, nil
	}
	s.loading = true
	gen := s.gen
	name := s.current.Name
	offset := s.loaded
	s.mu.Unlock()

	if err := s.limiter.Wait(ctx); err != nil {
		s.abortOpen(gen)
		return 0, err
	}

	page, err := s.client.Messages(ctx, name, s.pageSize, offset)
	if err != nil {
		s.abortOpen(gen)
		return 0, err
	}

	added, ok := s.installOlder(gen, page)
	if !ok {
		log.Debug().Str("contact", name).Msg("[chat] dropping page for closed thread")
		return 0, nil
	}
	if added > 0 {
		s.notify(Event{Kind: EventThread, Contact: name})
	}
	return added, nil
}

func (s *Session) installOlder(gen uint64, page []models.Message) (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen || s.current == nil {
		return 0, false
	}
	s.loading = false
	s.loaded += len(page)
	if len(page) < s.pageSize {
		s.exhausted = true
	}
	before := len(s.current.Messages)
	s.current.Messages = merge(reversed(page), s.current.Messages)
	return len(s.current.Messages) - before, true
}

// MarkRead tells the server name's messages were seen. The local unread
// count is cleared only once the server has accepted it.
func (s *Session) MarkRead(ctx context.Context, name string) error {
	if err := s.client.MarkRead(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	if p, ok := s.previews[name]; ok {
		p.Unread = 0
	}
	if s.current != nil && s.current.Name == name {
		for i := range s.current.Messages {
			if s.current.Messages[i].Sender == name {
				s.current.Messages[i].Read = true
			}
		}
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventPreviews, Contact: name})
	return nil
}

// Send appends text to the open thread and writes it to the socket. The
// message stays in the thread even if the write fails.
func (s *Session) Send(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return ErrNoChat
	}
	conn := s.conn
	if conn == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	msg := models.Message{
		Text:      text,
		Sender:    s.me,
		Recipient: s.current.Name,
		Time:      time.Now().UnixMilli(),
	}
	s.current.Messages = insertSorted(s.current.Messages, msg)
	s.previewLocked(msg.Recipient).LastMsg = &msg
	s.mu.Unlock()

	s.notify(Event{Kind: EventThread, Contact: msg.Recipient})
	s.notify(Event{Kind: EventPreviews, Contact: msg.Recipient})

	return conn.Send(msg)
}

// handlePush merges one socket frame into the state.
func (s *Session) handlePush(msg models.Message) {
	if msg.IsReceipt() {
		s.handleReceipt(msg.Sender)
		return
	}

	s.mu.Lock()
	me := s.me
	contact := msg.Sender
	if msg.Sender == me {
		// written by this user elsewhere
		contact = msg.Recipient
	}
	p := s.previewLocked(contact)
	m := msg
	p.LastMsg = &m

	open := s.current != nil && s.current.Name == contact
	if open {
		s.current.Messages = insertSorted(s.current.Messages, msg)
	} else if msg.Sender != me {
		p.Unread++
	}
	s.mu.Unlock()

	log.Debug().Str("from", msg.Sender).Bool("open", open).Msg("[chat] push")

	s.notify(Event{Kind: EventPreviews, Contact: contact})
	if !open {
		return
	}
	s.notify(Event{Kind: EventThread, Contact: contact})

	if msg.Sender != me {
		go func() {
			if err := s.MarkRead(s.ctx, contact); err != nil {
				log.Warn().Err(err).Str("contact", contact).Msg("[chat] mark read failed")
			}
		}()
	}
}

// handleReceipt marks everything sent to reader as read.
func (s *Session) handleReceipt(reader string) {
	s.mu.Lock()
	if s.current != nil && s.current.Name == reader {
		for i := range s.current.Messages {
			if s.current.Messages[i].Sender == s.me {
				s.current.Messages[i].Read = true
			}
		}
	}
	if p, ok := s.previews[reader]; ok && p.LastMsg != nil && p.LastMsg.Sender == s.me {
		p.LastMsg.Read = true
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventThread, Contact: reader})
}

// previewLocked returns name's preview, creating it for senders that are
// not in the contact list yet.
func (s *Session) previewLocked(name string) *models.ChatPreview {
	p, ok := s.previews[name]
	if !ok {
		p = &models.ChatPreview{Name: name}
		s.previews[name] = p
	}
	return p
}

func reversed(page []models.Message) []models.Message {
	out := make([]models.Message, len(page))
	for i, m := range page {
		out[len(page)-1-i] = m
	}
	return out
}

type msgKey struct {
	sender, recipient, text string
	time                    int64
}

func keyOf(m models.Message) msgKey {
	return msgKey{m.Sender, m.Recipient, m.Text, m.Time}
}

// merge prepends a server page to the thread. Page entries already in the
// thread (a push or an optimistic send the page overlaps) are dropped, matched
// one for one; entries within the page are never collapsed.
func merge(page, thread []models.Message) []models.Message {
	have := make(map[msgKey]int, len(thread))
	for _, m := range thread {
		have[keyOf(m)]++
	}
	out := make([]models.Message, 0, len(page)+len(thread))
	for _, m := range page {
		k := keyOf(m)
		if have[k] > 0 {
			have[k]--
			continue
		}
		out = append(out, m)
	}
	out = append(out, thread...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}

// insertSorted places m after every message with an equal or earlier time.
func insertSorted(msgs []models.Message, m models.Message) []models.Message {
	i := sort.Search(len(msgs), func(i int) bool { return msgs[i].Time > m.Time })
	msgs = append(msgs, models.Message{})
	copy(msgs[i+1:], msgs[i:])
	msgs[i] = m
	return msgs
}
