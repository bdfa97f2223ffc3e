package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/rivo/tview"

	"mchat/models"
)

func (a *App) refreshContacts() {
	a.connectionView.SetText("[yellow]Refreshing...[-]")
	a.run(func(ctx context.Context) error {
		return a.session.Sync(ctx)
	}, func(err error) {
		if err != nil {
			a.setConnectionError(err.Error())
			return
		}
		a.updateConnectionStatus()
	})
}

// searchContacts filters the list through the server's contact search. An
// empty query shows every conversation again.
func (a *App) searchContacts(query string) {
	query = strings.TrimSpace(query)
	if query == "" {
		a.mu.Lock()
		a.searchQuery = ""
		a.searchResults = nil
		a.mu.Unlock()
		a.updateContactsList()
		return
	}

	var found []models.ChatPreview
	a.run(func(ctx context.Context) error {
		var err error
		found, err = a.session.Search(ctx, query)
		return err
	}, func(err error) {
		if err != nil {
			a.setConnectionError("search failed: " + err.Error())
			return
		}
		a.mu.Lock()
		a.searchQuery = query
		a.searchResults = found
		a.mu.Unlock()
		a.updateContactsList()
	})
}

// visiblePreviews is the contact list to draw: every conversation, or the
// search results refreshed with the current unread counts.
func (a *App) visiblePreviews() []models.ChatPreview {
	a.mu.RLock()
	query := a.searchQuery
	results := append([]models.ChatPreview(nil), a.searchResults...)
	a.mu.RUnlock()

	if query == "" {
		return a.session.Previews()
	}
	for i, r := range results {
		if p, ok := a.session.Preview(r.Name); ok {
			results[i] = p
		}
	}
	return results
}

func (a *App) updateContactsList() {
	if a.contactsList == nil {
		return
	}

	previews := a.visiblePreviews()
	me := a.session.Me()

	names := make([]string, 0, len(previews))
	currentIdx := a.contactsList.GetCurrentItem()
	selected := a.selectedContact()
	a.contactsList.Clear()

	for i, p := range previews {
		names = append(names, p.Name)
		if p.Name == selected {
			currentIdx = i
		}

		mainText := fmt.Sprintf("[white]%s", tview.Escape(p.Name))
		if p.Unread > 0 {
			mainText += fmt.Sprintf(" [red](%d)", p.Unread)
		}
		a.contactsList.AddItem(mainText, previewLine(p, me), 0, nil)
	}

	a.mu.Lock()
	a.contactNames = names
	a.mu.Unlock()

	if currentIdx >= 0 && currentIdx < a.contactsList.GetItemCount() {
		a.contactsList.SetCurrentItem(currentIdx)
	}
}
