package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"mchat/fakeserver"
	"mchat/models"
)

// fakeWebP is the smallest prefix mimetype recognises as WebP.
var fakeWebP = []byte("RIFF\x24\x00\x00\x00WEBPVP8 \x18\x00\x00\x00\x30\x01\x00\x9d\x01\x2a\x01\x00\x01\x00")

func setupTestClient(t *testing.T) (*fakeserver.Server, *Client) {
	t.Helper()
	srv := fakeserver.Start()
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, nil, 5*time.Second)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return srv, client
}

func loggedIn(t *testing.T, srv *fakeserver.Server, c *Client, name string) {
	t.Helper()
	if err := srv.CreateUser(name, "password123"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if err := c.Login(context.Background(), name, "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
}

func TestNewClientRejectsScheme(t *testing.T) {
	if _, err := NewClient("ftp://example.com", nil, time.Second); err == nil {
		t.Fatal("expected error for ftp scheme")
	}
}

func TestLogin(t *testing.T) {
	srv, c := setupTestClient(t)
	ctx := context.Background()

	if err := srv.CreateUser("alice", "password123"); err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	err := c.Login(ctx, "alice", "wrongpassword")
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *Error, got %v", err)
	}
	if apiErr.Status != http.StatusUnauthorized || apiErr.Message != "Wrong password" {
		t.Errorf("got %d %q", apiErr.Status, apiErr.Message)
	}
	if !IsUnauthorized(err) {
		t.Error("IsUnauthorized should be true")
	}

	if err := c.Login(ctx, "alice", "password123"); err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(c.Cookies()) == 0 {
		t.Fatal("expected a session cookie after login")
	}

	name, err := c.User(ctx)
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if name != "alice" {
		t.Errorf("User = %q, want alice", name)
	}
}

func TestSignup(t *testing.T) {
	srv, c := setupTestClient(t)
	ctx := context.Background()

	if err := c.Signup(ctx, "bob", "password123"); !errors.Is(err, ErrUsernameLength) {
		t.Errorf("short username: got %v", err)
	}
	if err := c.Signup(ctx, "bobby", "short"); !errors.Is(err, ErrPasswordLength) {
		t.Errorf("short password: got %v", err)
	}
	if srv.Requests("POST /create") != 0 {
		t.Error("invalid signups must not reach the server")
	}

	if err := c.Signup(ctx, "bobby", "password123"); err != nil {
		t.Fatalf("Signup: %v", err)
	}
	if name, err := c.User(ctx); err != nil || name != "bobby" {
		t.Errorf("User after signup = %q, %v", name, err)
	}

	other, _ := NewClient(srv.URL, nil, time.Second)
	err := other.Signup(ctx, "bobby", "password123")
	if err == nil || err.Error() != "Couldn't create user" {
		t.Errorf("duplicate signup: got %v", err)
	}
}

func TestLogout(t *testing.T) {
	srv, c := setupTestClient(t)
	ctx := context.Background()
	loggedIn(t, srv, c, "alice")

	if err := c.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := c.User(ctx); !IsUnauthorized(err) {
		t.Errorf("User after logout: got %v, want 401", err)
	}
}

func TestUserBareString(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`"carol"`))
	}))
	defer ts.Close()

	c, _ := NewClient(ts.URL, nil, time.Second)
	name, err := c.User(context.Background())
	if err != nil {
		t.Fatalf("User: %v", err)
	}
	if name != "carol" {
		t.Errorf("User = %q, want carol", name)
	}
}

func TestContacts(t *testing.T) {
	srv, c := setupTestClient(t)
	ctx := context.Background()
	loggedIn(t, srv, c, "alice")
	srv.CreateUser("bobby", "password123")
	srv.CreateUser("carol", "password123")

	if err := c.AddContact(ctx, "bobby"); err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if err := c.AddContact(ctx, "carol"); err != nil {
		t.Fatalf("AddContact: %v", err)
	}
	if err := c.AddContact(ctx, "carol"); err == nil {
		t.Error("duplicate AddContact should fail")
	}
	if err := c.AddContact(ctx, "alice"); err == nil || err.Error() != "You can't be a contact of yourself" {
		t.Errorf("self AddContact: got %v", err)
	}

	srv.Seed(models.Message{Text: "hi", Sender: "bobby", Recipient: "alice", Time: 1000})

	contacts, err := c.Contacts(ctx, "")
	if err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if len(contacts) != 2 {
		t.Fatalf("got %d contacts, want 2", len(contacts))
	}
	if contacts[0].Name != "bobby" || contacts[0].LastMsg == nil || contacts[0].LastMsg.Text != "hi" {
		t.Errorf("bobby preview = %+v", contacts[0])
	}
	if contacts[1].LastMsg != nil {
		t.Errorf("carol should have no last message, got %+v", contacts[1].LastMsg)
	}

	filtered, err := c.Contacts(ctx, "car")
	if err != nil {
		t.Fatalf("Contacts search: %v", err)
	}
	if len(filtered) != 1 || filtered[0].Name != "carol" {
		t.Errorf("search result = %+v", filtered)
	}

	info, err := c.Contact(ctx, "carol")
	if err != nil {
		t.Fatalf("Contact: %v", err)
	}
	if info.Bio != "Good morning, I'm carol" {
		t.Errorf("Bio = %q", info.Bio)
	}
	if info.Online() {
		t.Error("carol has no socket and should not be online")
	}

	if err := c.DeleteContact(ctx, "carol"); err != nil {
		t.Fatalf("DeleteContact: %v", err)
	}
	err = c.DeleteContact(ctx, "carol")
	if err == nil || err.Error() != "It wasn't removed" {
		t.Errorf("second DeleteContact: got %v", err)
	}
}

func TestContactsBareNames(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`["bobby","carol"]`))
	}))
	defer ts.Close()

	c, _ := NewClient(ts.URL, nil, time.Second)
	contacts, err := c.Contacts(context.Background(), "")
	if err != nil {
		t.Fatalf("Contacts: %v", err)
	}
	if len(contacts) != 2 || contacts[1].Name != "carol" {
		t.Errorf("contacts = %+v", contacts)
	}
}

func TestMessagesPaging(t *testing.T) {
	srv, c := setupTestClient(t)
	ctx := context.Background()
	loggedIn(t, srv, c, "alice")
	srv.CreateUser("bobby", "password123")

	for i := 1; i <= 15; i++ {
		srv.Seed(models.Message{Text: "m", Sender: "bobby", Recipient: "alice", Time: int64(i)})
	}

	first, err := c.Messages(ctx, "bobby", 10, 0)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(first) != 10 || first[0].Time != 15 || first[9].Time != 6 {
		t.Errorf("first page = %d msgs, newest %d, oldest %d", len(first), first[0].Time, first[len(first)-1].Time)
	}

	second, err := c.Messages(ctx, "bobby", 10, 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(second) != 5 || second[4].Time != 1 {
		t.Errorf("second page = %+v", second)
	}

	third, err := c.Messages(ctx, "bobby", 10, 20)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(third) != 0 {
		t.Errorf("third page should be empty, got %d", len(third))
	}
}

func TestUnreadAndMarkRead(t *testing.T) {
	srv, c := setupTestClient(t)
	ctx := context.Background()
	loggedIn(t, srv, c, "alice")
	srv.CreateUser("bobby", "password123")
	srv.Seed(
		models.Message{Text: "a", Sender: "bobby", Recipient: "alice", Time: 1},
		models.Message{Text: "b", Sender: "bobby", Recipient: "alice", Time: 2},
		models.Message{Text: "c", Sender: "alice", Recipient: "bobby", Time: 3},
	)

	counts, err := c.Unread(ctx)
	if err != nil {
		t.Fatalf("Unread: %v", err)
	}
	if len(counts) != 1 || counts[0] != (models.UnreadCount{Contact: "bobby", Unread: 2}) {
		t.Errorf("counts = %+v", counts)
	}

	if err := c.MarkRead(ctx, "bobby"); err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	counts, err = c.Unread(ctx)
	if err != nil {
		t.Fatalf("Unread: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("counts after read = %+v", counts)
	}
}

func TestBioAndGroup(t *testing.T) {
	srv, c := setupTestClient(t)
	ctx := context.Background()
	loggedIn(t, srv, c, "alice")

	if err := c.UpdateBio(ctx, "out fishing"); err != nil {
		t.Fatalf("UpdateBio: %v", err)
	}
	if got := srv.Bio("alice"); got != "out fishing" {
		t.Errorf("bio = %q", got)
	}

	if err := c.CreateGroup(ctx, "", nil); !errors.Is(err, ErrEmptyName) {
		t.Errorf("empty group name: got %v", err)
	}
	if err := c.CreateGroup(ctx, "climbers", []string{"alice", "bobby"}); err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	groups := srv.Groups()
	if len(groups) != 1 || groups[0].Name != "climbers" || len(groups[0].People) != 2 {
		t.Errorf("groups = %+v", groups)
	}
}

func TestUnauthorizedAccess(t *testing.T) {
	_, c := setupTestClient(t)

	_, err := c.Contacts(context.Background(), "")
	if !IsUnauthorized(err) {
		t.Fatalf("expected 401, got %v", err)
	}
	if err.Error() != "Unathorized" {
		t.Errorf("message = %q", err.Error())
	}
}

func TestContextCancel(t *testing.T) {
	block := make(chan struct{})
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer ts.Close()
	defer close(block)

	c, _ := NewClient(ts.URL, nil, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := c.Unread(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want deadline exceeded", err)
	}
}
