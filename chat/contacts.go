package chat

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mchat/api"
	"mchat/db"
	"mchat/models"
)

// AddContact adds name on the server and reloads the previews.
func (s *Session) AddContact(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return api.ErrEmptyName
	}
	if name == s.Me() {
		return api.ErrSelfContact
	}
	if err := s.client.AddContact(ctx, name); err != nil {
		return err
	}
	return s.Sync(ctx)
}

// Search lists the contacts whose name contains query, filled in with the
// local unread counts and last messages. An empty query returns Previews.
func (s *Session) Search(ctx context.Context, query string) ([]models.ChatPreview, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.Previews(), nil
	}
	found, err := s.client.Contacts(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for i := range found {
		if p, ok := s.previews[found[i].Name]; ok {
			found[i] = copyPreview(p)
		}
	}
	s.mu.Unlock()
	return found, nil
}

// DeleteContact removes name and closes its thread if it is open.
func (s *Session) DeleteContact(ctx context.Context, name string) error {
	if err := s.client.DeleteContact(ctx, name); err != nil {
		return err
	}

	s.mu.Lock()
	delete(s.previews, name)
	closed := s.current != nil && s.current.Name == name
	if closed {
		s.current = nil
		s.gen++
		s.loading = false
	}
	s.mu.Unlock()

	s.notify(Event{Kind: EventPreviews, Contact: name})
	if closed {
		s.notify(Event{Kind: EventThread, Contact: name})
	}
	return nil
}

// Contact fetches name's card and refreshes the open thread's copy of it.
func (s *Session) Contact(ctx context.Context, name string) error {
	info, err := s.client.Contact(ctx, name)
	if err != nil {
		return err
	}

	s.mu.Lock()
	updated := s.current != nil && s.current.Name == name
	if updated {
		s.current.ContactInfo = *info
	}
	s.mu.Unlock()

	if updated {
		s.notify(Event{Kind: EventThread, Contact: name})
	}
	return nil
}

func (s *Session) UpdateBio(ctx context.Context, bio string) error {
	return s.client.UpdateBio(ctx, bio)
}

func (s *Session) CreateGroup(ctx context.Context, name string, people []string) error {
	return s.client.CreateGroup(ctx, strings.TrimSpace(name), people)
}

// UploadImage replaces the user's avatar and primes the local cache.
func (s *Session) UploadImage(ctx context.Context, data []byte) error {
	if err := s.client.UploadImage(ctx, data); err != nil {
		return err
	}
	if s.store == nil {
		return nil
	}
	me := s.Me()
	if me == "" {
		name, err := s.client.User(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("[chat] resolve own name for avatar cache")
			return nil
		}
		me = name
	}
	if _, err := s.store.PutAvatar(me, api.ImageMediaType, data); err != nil {
		log.Warn().Err(err).Msg("[chat] cache own avatar")
	}
	return nil
}

// Avatar returns name's image, served from the local cache while it is
// fresh. A stale entry is still returned if the download fails.
func (s *Session) Avatar(ctx context.Context, name string) ([]byte, string, error) {
	var cached *db.Avatar
	if s.store != nil {
		a, err := s.store.GetAvatar(name)
		switch {
		case err == nil:
			if time.Since(a.FetchedAt) < avatarTTL {
				return a.Data, a.MediaType, nil
			}
			cached = a
		case !errors.Is(err, db.ErrNoRows):
			log.Warn().Err(err).Str("name", name).Msg("[chat] read avatar cache")
		}
	}

	data, mediaType, err := s.client.Image(ctx, name)
	if err != nil {
		if cached != nil {
			return cached.Data, cached.MediaType, nil
		}
		return nil, "", err
	}

	if s.store != nil {
		if _, err := s.store.PutAvatar(name, mediaType, data); err != nil {
			log.Warn().Err(err).Str("name", name).Msg("[chat] write avatar cache")
		}
	}
	return data, mediaType, nil
}
