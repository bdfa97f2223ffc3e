package chat

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"mchat/api"
	"mchat/db"
	"mchat/fakeserver"
	"mchat/models"
)

func wsURL(srv *fakeserver.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func newSession(t *testing.T, srv *fakeserver.Server, store Store) *Session {
	t.Helper()
	client, err := api.NewClient(srv.URL, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	s := New(client, Options{WebSocketURL: wsURL(srv), PageSize: 10, Store: store})
	t.Cleanup(s.Close)
	return s
}

// login creates name on the backend (if needed) and returns a started session.
func login(t *testing.T, srv *fakeserver.Server, name string, store Store) *Session {
	t.Helper()
	srv.CreateUser(name, "password123")
	s := newSession(t, srv, store)
	if err := s.Login(context.Background(), name, "password123"); err != nil {
		t.Fatalf("Login(%s): %v", name, err)
	}
	if err := srv.WaitOnline(name, 2*time.Second); err != nil {
		t.Fatalf("WaitOnline(%s): %v", name, err)
	}
	return s
}

func setupTestStore(t *testing.T) *db.DB {
	t.Helper()
	store, err := db.New(filepath.Join(t.TempDir(), "mchat.db"))
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func users(srv *fakeserver.Server, names ...string) {
	for _, n := range names {
		srv.CreateUser(n, "password123")
	}
}

func TestStartUnauthorized(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()

	s := newSession(t, srv, nil)
	if err := s.Start(context.Background()); !api.IsUnauthorized(err) {
		t.Fatalf("Expected 401, got %v", err)
	}
	if s.Connected() {
		t.Error("Should not connect without a session")
	}
}

func TestSyncJoinsContactsAndUnread(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby", "carol", "dave")
	srv.AddContact("alice", "bobby")
	srv.AddContact("alice", "carol")
	srv.Seed(
		models.Message{Text: "hi", Sender: "bobby", Recipient: "alice", Time: 1000},
		models.Message{Text: "there", Sender: "bobby", Recipient: "alice", Time: 2000},
		models.Message{Text: "psst", Sender: "dave", Recipient: "alice", Time: 500},
	)

	s := login(t, srv, "alice", nil)

	previews := s.Previews()
	if len(previews) != 3 {
		t.Fatalf("Expected 3 previews, got %+v", previews)
	}
	want := []struct {
		name   string
		unread int
	}{{"bobby", 2}, {"carol", 0}, {"dave", 1}}
	for i, w := range want {
		if previews[i].Name != w.name || previews[i].Unread != w.unread {
			t.Errorf("previews[%d] = %s/%d, want %s/%d", i, previews[i].Name, previews[i].Unread, w.name, w.unread)
		}
	}
	if previews[0].LastMsg == nil || previews[0].LastMsg.Text != "there" {
		t.Errorf("bobby last message = %+v", previews[0].LastMsg)
	}
}

func TestSyncFailureKeepsState(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")

	s := login(t, srv, "alice", nil)
	srv.ExpireSessions()

	if err := s.Sync(context.Background()); !api.IsUnauthorized(err) {
		t.Fatalf("Expected 401, got %v", err)
	}
	if len(s.Previews()) != 1 {
		t.Error("Failed sync should keep the old previews")
	}
}

func TestOpenLoadsNewestPage(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")
	for i := 1; i <= 15; i++ {
		srv.Seed(models.Message{Text: "m", Sender: "bobby", Recipient: "alice", Time: int64(i)})
	}

	s := login(t, srv, "alice", nil)
	if p, _ := s.Preview("bobby"); p.Unread != 15 {
		t.Fatalf("Expected 15 unread before open, got %d", p.Unread)
	}

	if err := s.Open(context.Background(), "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	cur := s.Current()
	if cur == nil || cur.Name != "bobby" {
		t.Fatalf("Current = %+v", cur)
	}
	if cur.Bio != "Good morning, I'm bobby" {
		t.Errorf("Bio = %q", cur.Bio)
	}
	if len(cur.Messages) != 10 || cur.Messages[0].Time != 6 || cur.Messages[9].Time != 15 {
		t.Errorf("Expected times 6..15 ascending, got %d messages", len(cur.Messages))
	}
	if !s.HasOlder() {
		t.Error("A full page should leave older history to load")
	}
	if srv.Requests("POST /read/bobby") != 1 {
		t.Errorf("Expected one read request, got %d", srv.Requests("POST /read/bobby"))
	}
	if p, _ := s.Preview("bobby"); p.Unread != 0 {
		t.Errorf("Unread after open = %d", p.Unread)
	}
}

func TestLoadOlderPaginates(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")
	for i := 1; i <= 15; i++ {
		srv.Seed(models.Message{Text: "m", Sender: "bobby", Recipient: "alice", Time: int64(i)})
	}

	s := login(t, srv, "alice", nil)
	ctx := context.Background()
	if err := s.Open(ctx, "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	n, err := s.LoadOlder(ctx)
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if n != 5 {
		t.Errorf("Expected 5 older messages, got %d", n)
	}
	cur := s.Current()
	if len(cur.Messages) != 15 || cur.Messages[0].Time != 1 || cur.Messages[14].Time != 15 {
		t.Errorf("Thread not ascending after prepend: %d messages", len(cur.Messages))
	}
	if s.HasOlder() {
		t.Error("A short page should end the history")
	}

	n, err = s.LoadOlder(ctx)
	if err != nil || n != 0 {
		t.Errorf("LoadOlder after end = %d, %v", n, err)
	}
	if got := srv.Requests("GET /msgs/bobby"); got != 2 {
		t.Errorf("Expected 2 page requests, got %d", got)
	}
}

func TestLoadOlderExactPage(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")
	for i := 1; i <= 10; i++ {
		srv.Seed(models.Message{Text: "m", Sender: "alice", Recipient: "bobby", Time: int64(i)})
	}

	s := login(t, srv, "alice", nil)
	ctx := context.Background()
	if err := s.Open(ctx, "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	n, err := s.LoadOlder(ctx)
	if err != nil || n != 0 {
		t.Errorf("LoadOlder = %d, %v", n, err)
	}
	if s.HasOlder() {
		t.Error("An empty page should end the history")
	}
}

func TestLoadOlderWithoutThread(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()

	s := login(t, srv, "alice", nil)
	n, err := s.LoadOlder(context.Background())
	if n != 0 || err != nil {
		t.Errorf("LoadOlder = %d, %v", n, err)
	}
}

func TestLoadOlderSkipsPushedOverlap(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")
	for i := 1; i <= 12; i++ {
		srv.Seed(models.Message{Text: "m", Sender: "bobby", Recipient: "alice", Time: int64(i)})
	}

	s := login(t, srv, "alice", nil)
	ctx := context.Background()
	if err := s.Open(ctx, "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	// a new message shifts every server offset by one
	srv.Push(models.Message{Text: "new", Sender: "bobby", Recipient: "alice", Time: 100})
	waitFor(t, "push in thread", func() bool { return len(s.Current().Messages) == 11 })

	n, err := s.LoadOlder(ctx)
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if n != 2 {
		t.Errorf("Expected 2 new messages, got %d", n)
	}
	cur := s.Current()
	if len(cur.Messages) != 13 || cur.Messages[0].Time != 1 {
		t.Errorf("Expected 13 messages from time 1, got %d", len(cur.Messages))
	}
}

func TestStaleOpenDropped(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	s := newSession(t, srv, nil)

	first := s.beginOpen("bobby")
	second := s.beginOpen("carol")

	page := []models.Message{{Text: "old", Sender: "bobby", Recipient: "alice", Time: 1}}
	if s.installOpen(first, &models.ContactInfo{Name: "bobby"}, page) {
		t.Error("Superseded open should not install")
	}
	if cur := s.Current(); cur.Name != "carol" || len(cur.Messages) != 0 {
		t.Errorf("Current = %+v", cur)
	}

	if !s.installOpen(second, &models.ContactInfo{Name: "carol"}, nil) {
		t.Error("Latest open should install")
	}
}

func TestStalePageDropped(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	s := newSession(t, srv, nil)

	gen := s.beginOpen("bobby")
	s.installOpen(gen, &models.ContactInfo{Name: "bobby"}, nil)
	s.beginOpen("carol")

	page := []models.Message{{Text: "late", Sender: "bobby", Recipient: "alice", Time: 1}}
	if _, ok := s.installOlder(gen, page); ok {
		t.Error("Page for a closed thread should be dropped")
	}
	if cur := s.Current(); cur.Name != "carol" || len(cur.Messages) != 0 {
		t.Errorf("Current = %+v", cur)
	}

	s.mu.Lock()
	loading := s.loading
	s.mu.Unlock()
	if !loading {
		t.Error("The newer open's loading flag should be untouched")
	}
}

func TestPushDuringOpenIsKept(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	s := newSession(t, srv, nil)

	gen := s.beginOpen("bobby")
	s.handlePush(models.Message{Text: "early", Sender: "bobby", Recipient: "alice", Time: 50})

	page := []models.Message{
		{Text: "b", Sender: "bobby", Recipient: "alice", Time: 20},
		{Text: "a", Sender: "bobby", Recipient: "alice", Time: 10},
	}
	s.installOpen(gen, &models.ContactInfo{Name: "bobby"}, page)

	cur := s.Current()
	if len(cur.Messages) != 3 {
		t.Fatalf("Expected 3 messages, got %+v", cur.Messages)
	}
	if cur.Messages[0].Text != "a" || cur.Messages[2].Text != "early" {
		t.Errorf("Order = %q %q %q", cur.Messages[0].Text, cur.Messages[1].Text, cur.Messages[2].Text)
	}
}

func TestPushIntoOpenThread(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")

	s := login(t, srv, "alice", nil)
	if err := s.Open(context.Background(), "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	srv.Push(models.Message{Text: "yo", Sender: "bobby", Recipient: "alice", Time: time.Now().UnixMilli()})

	waitFor(t, "message in thread", func() bool {
		cur := s.Current()
		return len(cur.Messages) == 1 && cur.Messages[0].Text == "yo"
	})
	waitFor(t, "read request", func() bool { return srv.Requests("POST /read/bobby") == 2 })

	p, _ := s.Preview("bobby")
	if p.Unread != 0 {
		t.Errorf("Open thread should not count unread, got %d", p.Unread)
	}
	if p.LastMsg == nil || p.LastMsg.Text != "yo" {
		t.Errorf("LastMsg = %+v", p.LastMsg)
	}
}

func TestPushForOtherContact(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby", "carol")
	srv.AddContact("alice", "bobby")
	srv.AddContact("alice", "carol")

	s := login(t, srv, "alice", nil)
	if err := s.Open(context.Background(), "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	srv.Push(models.Message{Text: "one", Sender: "carol", Recipient: "alice", Time: 1})
	srv.Push(models.Message{Text: "two", Sender: "carol", Recipient: "alice", Time: 2})

	waitFor(t, "unread count", func() bool {
		p, _ := s.Preview("carol")
		return p.Unread == 2
	})
	p, _ := s.Preview("carol")
	if p.LastMsg == nil || p.LastMsg.Text != "two" {
		t.Errorf("LastMsg = %+v", p.LastMsg)
	}
	if len(s.Current().Messages) != 0 {
		t.Error("Other contact's message leaked into the open thread")
	}
	if srv.Requests("POST /read/carol") != 0 {
		t.Error("Closed thread should not be marked read")
	}
	if s.Previews()[0].Name != "carol" {
		t.Error("Most recent conversation should sort first")
	}
}

func TestPushFromUnknownSender(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()

	s := login(t, srv, "alice", nil)
	srv.Push(models.Message{Text: "hey", Sender: "dave", Recipient: "alice", Time: 1})

	waitFor(t, "new preview", func() bool {
		p, ok := s.Preview("dave")
		return ok && p.Unread == 1
	})
}

func TestSend(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")

	s := login(t, srv, "alice", nil)
	if err := s.Send("hello"); !errors.Is(err, ErrNoChat) {
		t.Errorf("Send without thread: got %v", err)
	}

	if err := s.Open(context.Background(), "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := s.Send("   "); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("Blank send: got %v", err)
	}
	if err := s.Send("hello"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	cur := s.Current()
	if len(cur.Messages) != 1 || cur.Messages[0].Sender != "alice" || cur.Messages[0].Recipient != "bobby" {
		t.Errorf("Optimistic append missing: %+v", cur.Messages)
	}
	if p, _ := s.Preview("bobby"); p.LastMsg == nil || p.LastMsg.Text != "hello" {
		t.Errorf("Preview not updated: %+v", p)
	}

	msgs, err := srv.WaitMessages(1, 2*time.Second)
	if err != nil {
		t.Fatalf("WaitMessages: %v", err)
	}
	if msgs[0].Text != "hello" || msgs[0].Sender != "alice" {
		t.Errorf("Server stored %+v", msgs[0])
	}
}

func TestConversationBetweenSessions(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")
	srv.AddContact("bobby", "alice")

	alice := login(t, srv, "alice", nil)
	bobby := login(t, srv, "bobby", nil)
	ctx := context.Background()

	if err := alice.Open(ctx, "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := alice.Send("ping"); err != nil {
		t.Fatalf("Send: %v", err)
	}

	waitFor(t, "bobby unread", func() bool {
		p, _ := bobby.Preview("alice")
		return p.Unread == 1
	})

	if err := bobby.Open(ctx, "alice"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	if cur := bobby.Current(); len(cur.Messages) != 1 || cur.Messages[0].Text != "ping" {
		t.Errorf("bobby thread = %+v", cur.Messages)
	}

	// bobby opening the thread sends alice a read receipt
	waitFor(t, "read receipt", func() bool {
		cur := alice.Current()
		return len(cur.Messages) == 1 && cur.Messages[0].Read
	})
}

func TestDeleteContactClosesThread(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")

	s := login(t, srv, "alice", nil)
	ctx := context.Background()
	if err := s.Open(ctx, "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := s.DeleteContact(ctx, "bobby"); err != nil {
		t.Fatalf("DeleteContact: %v", err)
	}
	if s.Current() != nil {
		t.Error("Thread should close with its contact")
	}
	if _, ok := s.Preview("bobby"); ok {
		t.Error("Preview should be removed")
	}
}

func TestAddContact(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")

	s := login(t, srv, "alice", nil)
	ctx := context.Background()

	if err := s.AddContact(ctx, "alice"); !errors.Is(err, api.ErrSelfContact) {
		t.Errorf("Self add: got %v", err)
	}
	if srv.Requests("POST /add-contact/alice") != 0 {
		t.Error("Self add should not reach the server")
	}

	if err := s.AddContact(ctx, " bobby "); err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if _, ok := s.Preview("bobby"); !ok {
		t.Error("New contact should appear after resync")
	}
}

func TestLoginPersistsAndResumes(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	store := setupTestStore(t)
	ctx := context.Background()

	login(t, srv, "alice", store)

	saved, err := store.LoadSession(srv.URL)
	if err != nil {
		t.Fatalf("LoadSession: %v", err)
	}
	if saved.Username != "alice" || len(saved.Cookies) == 0 {
		t.Errorf("Saved session = %+v", saved)
	}

	resumed := newSession(t, srv, store)
	if err := resumed.Resume(ctx); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if resumed.Me() != "alice" {
		t.Errorf("Me = %q", resumed.Me())
	}

	srv.ExpireSessions()
	expired := newSession(t, srv, store)
	if err := expired.Resume(ctx); !api.IsUnauthorized(err) {
		t.Fatalf("Expected 401, got %v", err)
	}
	if _, err := store.LoadSession(srv.URL); !errors.Is(err, db.ErrNoRows) {
		t.Errorf("Rejected session should be forgotten, got %v", err)
	}
	if err := expired.Resume(ctx); !errors.Is(err, ErrNoSession) {
		t.Errorf("Expected ErrNoSession, got %v", err)
	}
}

func TestSignupPasswordMismatch(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()

	s := newSession(t, srv, nil)
	err := s.Signup(context.Background(), "alice", "password123", "password124")
	if !errors.Is(err, ErrPasswordMatch) {
		t.Errorf("Expected ErrPasswordMatch, got %v", err)
	}
	if srv.Requests("POST /create") != 0 {
		t.Error("Mismatched passwords should not reach the server")
	}

	if err := s.Signup(context.Background(), "alice", "password123", "password123"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if s.Me() != "alice" || !s.Connected() {
		t.Error("Signup should start the session")
	}
}

func TestLogout(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	store := setupTestStore(t)

	s := login(t, srv, "alice", store)
	events := make(chan Event, 16)
	s.Subscribe(func(ev Event) {
		select {
		case events <- ev:
		default:
		}
	})

	if err := s.Logout(context.Background()); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if s.Me() != "" || s.Connected() || len(s.Previews()) != 0 {
		t.Error("Local state should be cleared")
	}
	if _, err := store.LoadSession(srv.URL); !errors.Is(err, db.ErrNoRows) {
		t.Errorf("Saved session should be cleared, got %v", err)
	}

	waitFor(t, "logout event", func() bool {
		for {
			select {
			case ev := <-events:
				if ev.Kind == EventLoggedOut {
					return true
				}
			default:
				return false
			}
		}
	})
}

func TestConnectionLost(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")

	s := login(t, srv, "alice", nil)
	if err := s.Open(context.Background(), "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}

	srv.DropSocket("alice")
	waitFor(t, "disconnect", func() bool { return !s.Connected() })

	if err := s.Send("hello"); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send while disconnected: got %v", err)
	}
}

func TestAvatarCache(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	store := setupTestStore(t)
	users(srv, "bobby")
	srv.SetImage("bobby", []byte("bobby-image"))

	s := login(t, srv, "alice", store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		data, mediaType, err := s.Avatar(ctx, "bobby")
		if err != nil {
			t.Fatalf("Avatar: %v", err)
		}
		if string(data) != "bobby-image" || mediaType != api.ImageMediaType {
			t.Errorf("Avatar = %q %q", data, mediaType)
		}
	}
	if got := srv.Requests("GET /image/bobby"); got != 1 {
		t.Errorf("Expected one download, got %d", got)
	}

	webp := []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00\x30\x01\x00\x9d\x01\x2a\x01\x00\x01\x00")
	if err := s.UploadImage(ctx, webp); err != nil {
		t.Fatalf("UploadImage: %v", err)
	}
	if a, err := store.GetAvatar("alice"); err != nil || string(a.Data) != string(webp) {
		t.Errorf("Own avatar not cached: %v", err)
	}
}

func TestMerge(t *testing.T) {
	older := []models.Message{
		{Text: "a", Time: 1},
		{Text: "b", Time: 2},
	}
	newer := []models.Message{
		{Text: "b", Time: 2},
		{Text: "c", Time: 2},
		{Text: "d", Time: 3},
	}
	got := merge(older, newer)
	var texts []string
	for _, m := range got {
		texts = append(texts, m.Text)
	}
	if strings.Join(texts, "") != "abcd" {
		t.Errorf("merge = %v", texts)
	}
}

func TestMergeKeepsRepeatsWithinPage(t *testing.T) {
	page := []models.Message{
		{Text: "ok", Sender: "bobby", Time: 1},
		{Text: "ok", Sender: "bobby", Time: 1},
		{Text: "x", Sender: "bobby", Time: 2},
	}
	thread := []models.Message{
		{Text: "x", Sender: "bobby", Time: 2},
		{Text: "ok", Sender: "bobby", Time: 1},
	}
	got := merge(page, thread)
	if len(got) != 3 {
		t.Fatalf("Expected one page entry per thread match dropped, got %d messages", len(got))
	}
	if got := merge(page, nil); len(got) != 3 {
		t.Errorf("Page collapsed against itself: %d messages", len(got))
	}
}

func TestOpenKeepsIdenticalMessages(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")
	for i := 1; i <= 12; i++ {
		srv.Seed(models.Message{Text: "m", Sender: "bobby", Recipient: "alice", Time: int64(i)})
	}
	srv.Seed(
		models.Message{Text: "ok", Sender: "bobby", Recipient: "alice", Time: 100},
		models.Message{Text: "ok", Sender: "bobby", Recipient: "alice", Time: 100},
	)

	s := login(t, srv, "alice", nil)
	ctx := context.Background()
	if err := s.Open(ctx, "bobby"); err != nil {
		t.Fatalf("Open: %v", err)
	}
	cur := s.Current()
	if len(cur.Messages) != 10 {
		t.Fatalf("Expected the whole first page, got %d messages", len(cur.Messages))
	}
	if cur.Messages[8].Text != "ok" || cur.Messages[9].Text != "ok" {
		t.Errorf("Both repeated messages should be kept: %+v", cur.Messages[8:])
	}

	n, err := s.LoadOlder(ctx)
	if err != nil {
		t.Fatalf("LoadOlder: %v", err)
	}
	if n != 4 || len(s.Current().Messages) != 14 {
		t.Errorf("LoadOlder added %d, thread has %d", n, len(s.Current().Messages))
	}
}

func TestMarkReadFailureKeepsUnread(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby")
	srv.AddContact("alice", "bobby")
	srv.Seed(models.Message{Text: "hi", Sender: "bobby", Recipient: "alice", Time: 1})

	s := login(t, srv, "alice", nil)
	if p, _ := s.Preview("bobby"); p.Unread != 1 {
		t.Fatalf("Expected 1 unread after login, got %d", p.Unread)
	}

	srv.ExpireSessions()
	err := s.MarkRead(context.Background(), "bobby")
	if !api.IsUnauthorized(err) {
		t.Fatalf("Expected unauthorized error, got %v", err)
	}
	if p, _ := s.Preview("bobby"); p.Unread != 1 {
		t.Errorf("Failed mark-read cleared unread: %d", p.Unread)
	}
}

func TestSearch(t *testing.T) {
	srv := fakeserver.Start()
	defer srv.Close()
	users(srv, "alice", "bobby", "carol")
	srv.AddContact("alice", "bobby")
	srv.AddContact("alice", "carol")
	srv.Seed(models.Message{Text: "hi", Sender: "bobby", Recipient: "alice", Time: 1})

	s := login(t, srv, "alice", nil)
	ctx := context.Background()

	found, err := s.Search(ctx, "bob")
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(found) != 1 || found[0].Name != "bobby" || found[0].Unread != 1 {
		t.Errorf("Search(bob) = %+v", found)
	}
	if srv.Requests("GET /contacts") != 2 {
		t.Errorf("Expected the search to hit /contacts, got %d requests", srv.Requests("GET /contacts"))
	}

	all, err := s.Search(ctx, "  ")
	if err != nil || len(all) != 2 {
		t.Errorf("Blank search = %+v, %v", all, err)
	}
	if srv.Requests("GET /contacts") != 2 {
		t.Error("Blank search should use the local list")
	}
}

func TestInsertSorted(t *testing.T) {
	msgs := []models.Message{{Text: "a", Time: 1}, {Text: "b", Time: 5}}
	msgs = insertSorted(msgs, models.Message{Text: "c", Time: 5})
	msgs = insertSorted(msgs, models.Message{Text: "d", Time: 3})
	msgs = insertSorted(msgs, models.Message{Text: "e", Time: 0})

	var texts []string
	for _, m := range msgs {
		texts = append(texts, m.Text)
	}
	if strings.Join(texts, "") != "eadbc" {
		t.Errorf("order = %v", texts)
	}
}
