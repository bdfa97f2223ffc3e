package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"mchat/models"
)

type scrollMode int

const (
	scrollEnd scrollMode = iota
	scrollKeep
)

const inputHelp = " Enter:Send | Tab:Scroll | PgUp:Older | F5:Refresh | Esc:Back "

func (a *App) openChat(name string) {
	preview, _ := a.session.Preview(name)

	a.mu.Lock()
	a.currentChat = name
	a.pendingUnread = preview.Unread
	a.unreadMarker = -1
	a.loadingOlder = false
	a.mu.Unlock()

	chatPage := a.createChatPage(name)
	a.pages.AddPage("chat", chatPage, true, true)
	a.pages.SwitchToPage("chat")
	a.chatView.SetText("[gray]Loading...[-]")

	a.run(func(ctx context.Context) error {
		return a.session.Open(ctx, name)
	}, func(err error) {
		if a.chatView == nil || a.openContact() != name {
			return
		}
		if err != nil {
			a.chatView.SetText("[red]" + tview.Escape(err.Error()) + "[-]")
			return
		}
		a.placeUnreadMarker()
		a.refreshChatView(scrollEnd)
	})
}

func (a *App) openContact() string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.currentChat
}

// placeUnreadMarker puts the "Unread" rule above the messages that were
// unread when the thread was opened.
func (a *App) placeUnreadMarker() {
	cur := a.session.Current()
	if cur == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pendingUnread <= 0 {
		return
	}
	if a.pendingUnread <= len(cur.Messages) {
		a.unreadMarker = len(cur.Messages) - a.pendingUnread
	} else {
		a.unreadMarker = 0
	}
	a.pendingUnread = 0
}

func (a *App) createChatPage(name string) tview.Primitive {
	a.chatView = tview.NewTextView()
	a.chatView.SetBorder(true)
	a.chatView.SetBorderColor(ColorBorder)
	a.chatView.SetBackgroundColor(ColorBg)
	a.chatView.SetTitle(" " + name + " ")
	a.chatView.SetTitleColor(ColorTitle)
	a.chatView.SetTextColor(ColorFg)
	a.chatView.SetDynamicColors(true)
	a.chatView.SetScrollable(true)
	a.chatView.SetWrap(true)

	a.infoView = tview.NewTextView()
	a.infoView.SetBorder(true)
	a.infoView.SetBorderColor(ColorBorder)
	a.infoView.SetBackgroundColor(ColorBg)
	a.infoView.SetTitle(" Contact ")
	a.infoView.SetTitleColor(ColorTitle)
	a.infoView.SetTextColor(ColorFg)
	a.infoView.SetDynamicColors(true)
	a.infoView.SetWordWrap(true)

	a.messageInput = tview.NewInputField()
	a.messageInput.SetLabel("> ")
	a.messageInput.SetFieldWidth(0)
	a.messageInput.SetBackgroundColor(ColorBg)
	a.messageInput.SetFieldBackgroundColor(ColorField)
	a.messageInput.SetFieldTextColor(ColorFg)
	a.messageInput.SetLabelColor(ColorHighlight)
	a.messageInput.SetBorder(true)
	a.messageInput.SetBorderColor(ColorBorder)
	a.messageInput.SetTitle(" Message ")
	a.messageInput.SetTitleColor(ColorTitle)

	a.messageInput.SetDoneFunc(func(key tcell.Key) {
		if key != tcell.KeyEnter {
			return
		}
		text := a.messageInput.GetText()
		if strings.TrimSpace(text) == "" {
			return
		}
		a.messageInput.SetText("")
		a.run(func(ctx context.Context) error {
			return a.session.Send(text)
		}, func(err error) {
			if err != nil && a.messageInput != nil {
				a.messageInput.SetTitle(" Message [red](" + tview.Escape(err.Error()) + ")[-] ")
			}
		})
	})

	chatStatus := newBar(inputHelp)

	body := tview.NewFlex().
		AddItem(a.chatView, 0, 3, false).
		AddItem(a.infoView, 30, 0, false)

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(body, 0, 1, false).
		AddItem(a.messageInput, 3, 0, true).
		AddItem(chatStatus, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	chatViewFocused := false

	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			if chatViewFocused {
				chatViewFocused = false
				a.app.SetFocus(a.messageInput)
				chatStatus.SetText(inputHelp)
				return nil
			}
			a.closeChat()
			return nil
		case tcell.KeyTab:
			chatViewFocused = !chatViewFocused
			if chatViewFocused {
				a.app.SetFocus(a.chatView)
				chatStatus.SetText(" ↑↓/PgUp/PgDn:Scroll | Home:Top | End:Bottom | Tab/Esc:Input ")
			} else {
				a.app.SetFocus(a.messageInput)
				chatStatus.SetText(inputHelp)
			}
			return nil
		case tcell.KeyF5:
			a.refreshContactInfo(name)
			return nil
		case tcell.KeyPgUp:
			row, col := a.chatView.GetScrollOffset()
			if row <= 0 {
				a.loadOlder()
				return nil
			}
			a.chatView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := a.chatView.GetScrollOffset()
			a.chatView.ScrollTo(row+10, col)
			return nil
		case tcell.KeyUp:
			if chatViewFocused {
				row, col := a.chatView.GetScrollOffset()
				if row <= 0 {
					a.loadOlder()
					return nil
				}
				a.chatView.ScrollTo(row-1, col)
				return nil
			}
		case tcell.KeyDown:
			if chatViewFocused {
				row, col := a.chatView.GetScrollOffset()
				a.chatView.ScrollTo(row+1, col)
				return nil
			}
		case tcell.KeyHome:
			if chatViewFocused {
				a.chatView.ScrollToBeginning()
				return nil
			}
		case tcell.KeyEnd:
			if chatViewFocused {
				a.chatView.ScrollToEnd()
				return nil
			}
		}
		return event
	})

	return mainFlex
}

// loadOlder prepends the previous page and keeps the same messages on screen.
func (a *App) loadOlder() {
	if !a.session.HasOlder() {
		return
	}
	a.mu.Lock()
	if a.loadingOlder {
		a.mu.Unlock()
		return
	}
	a.loadingOlder = true
	a.mu.Unlock()

	var added int
	a.run(func(ctx context.Context) error {
		var err error
		added, err = a.session.LoadOlder(ctx)
		return err
	}, func(err error) {
		a.finishOlder(added, err)
	})
}

// finishOlder redraws after an older-page fetch. Thread events are not drawn
// while the fetch runs, so this always redraws.
func (a *App) finishOlder(added int, err error) {
	a.mu.Lock()
	a.loadingOlder = false
	if a.unreadMarker >= 0 {
		a.unreadMarker += added
	}
	a.mu.Unlock()
	if a.chatView == nil {
		return
	}
	if err != nil || added == 0 {
		a.refreshChatView(scrollKeep)
		return
	}
	before := a.chatView.GetOriginalLineCount()
	row, col := a.chatView.GetScrollOffset()
	a.refreshChatView(scrollKeep)
	after := a.chatView.GetOriginalLineCount()
	a.chatView.ScrollTo(row+after-before, col)
}

func (a *App) refreshContactInfo(name string) {
	a.run(func(ctx context.Context) error {
		return a.session.Contact(ctx, name)
	}, func(err error) {
		if err != nil && a.infoView != nil {
			a.infoView.SetText("[red]" + tview.Escape(err.Error()) + "[-]")
		}
	})
}

func (a *App) refreshChatView(mode scrollMode) {
	if a.chatView == nil {
		return
	}
	cur := a.session.Current()
	if cur == nil {
		// the contact was deleted under us
		a.closeChat()
		return
	}
	if cur.Name != a.openContact() {
		return
	}

	a.mu.RLock()
	unreadMarker := a.unreadMarker
	a.mu.RUnlock()

	_, _, width, _ := a.chatView.GetInnerRect()
	if width < 10 {
		width = 80
	}

	a.chatView.SetText(renderThread(cur.Messages, a.session.Me(), unreadMarker, a.session.HasOlder(), width, time.Now()))
	if mode == scrollEnd {
		a.chatView.ScrollToEnd()
	}
	a.renderInfo(cur.ContactInfo)
}

func (a *App) renderInfo(info models.ContactInfo) {
	if a.infoView == nil {
		return
	}
	presence := "[gray]○ " + formatLastSeen(info, time.Now()) + "[-]"
	if info.Online() {
		presence = "[green]● Online[-]"
	}
	a.infoView.SetText(fmt.Sprintf("[white]%s[-]\n%s\n\n%s",
		tview.Escape(info.Name), presence, tview.Escape(info.Bio)))
}

// renderThread lays out messages with day separators and the unread rule.
func renderThread(msgs []models.Message, me string, unreadMarker int, hasOlder bool, width int, now time.Time) string {
	var sb strings.Builder
	if hasOlder {
		sb.WriteString("[gray]── PgUp for older messages ──[-]\n")
	}

	var lastDay string
	for i, msg := range msgs {
		t := msg.Timestamp().In(now.Location())
		if day := t.Format("2006-01-02"); day != lastDay {
			label := formatDateSeparator(t, now)
			padding := (width - len(label)) / 2
			if padding < 0 {
				padding = 0
			}
			sb.WriteString(fmt.Sprintf("[gray]%s%s[-]\n", strings.Repeat(" ", padding), label))
			lastDay = day
		}

		if unreadMarker >= 0 && i == unreadMarker {
			label := " Unread "
			sideLen := (width - len(label)) / 2
			if sideLen < 1 {
				sideLen = 1
			}
			rest := width - sideLen - len(label)
			if rest < 1 {
				rest = 1
			}
			sb.WriteString(fmt.Sprintf("[red]%s%s%s[-]\n", strings.Repeat("─", sideLen), label, strings.Repeat("─", rest)))
		}

		clock := t.Format("15:04:05")
		text := tview.Escape(msg.Text)
		if msg.Sender == me {
			status := "[gray]✓[-]"
			if msg.Read {
				status = "[green]✓✓[-]"
			}
			sb.WriteString(fmt.Sprintf("[gray]%s[-] [white]→ %s[-] %s\n", clock, text, status))
		} else {
			sb.WriteString(fmt.Sprintf("[gray]%s[-] [yellow]← %s[-]\n", clock, text))
		}
	}
	return sb.String()
}

func (a *App) closeChat() {
	a.mu.Lock()
	a.currentChat = ""
	a.unreadMarker = -1
	a.mu.Unlock()
	a.chatView = nil
	a.infoView = nil
	a.messageInput = nil
	a.pages.RemovePage("chat")
	a.pages.SwitchToPage("main")
	a.app.SetFocus(a.contactsList)
}
