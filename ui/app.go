// Package ui is the full-screen terminal client built on tview. All state
// lives in chat.Session; the App only renders it and forwards key presses.
package ui

import (
	"context"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/rs/zerolog/log"

	"mchat/chat"
	"mchat/models"
)

// App is the main application
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	session   *chat.Session
	serverURL string

	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	currentChat   string
	contactNames  []string // contactsList rows, in order
	unreadMarker  int      // index of the first unread message in the open thread, -1 for none
	pendingUnread int      // unread count captured when the thread was opened
	loadingOlder  bool
	searchQuery   string
	searchResults []models.ChatPreview
	connectedAt   time.Time

	contactsList     *tview.List
	searchField      *tview.InputField
	chatView         *tview.TextView
	infoView         *tview.TextView
	messageInput     *tview.InputField
	statusBar        *tview.TextView
	connectionView   *tview.TextView
	statusTicker     *time.Ticker
	statusTickerDone chan struct{}
}

// NewApp creates a new application instance
func NewApp(session *chat.Session, serverURL string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	return &App{
		session:      session,
		serverURL:    serverURL,
		ctx:          ctx,
		cancel:       cancel,
		unreadMarker: -1,
	}
}

// Run starts the application. A saved session is resumed in the background;
// the login form is shown when there is none.
func (a *App) Run() error {
	a.app = tview.NewApplication()
	a.pages = tview.NewPages()

	background := tview.NewTextView()
	background.SetBackgroundColor(ColorShade)
	background.SetTextAlign(tview.AlignCenter)
	background.SetText("\n\nRestoring session...")
	a.pages.AddPage("background", background, true, true)

	a.session.Subscribe(a.onEvent)
	a.app.SetInputCapture(a.globalKeys)

	go func() {
		err := a.session.Resume(a.ctx)
		if err != nil {
			log.Debug().Err(err).Msg("[ui] no session to resume")
		}
		a.app.QueueUpdateDraw(func() {
			if err == nil {
				a.showMainScreen()
				return
			}
			background.SetText("")
			a.showAuthDialog()
		})
	}()

	return a.app.SetRoot(a.pages, true).EnableMouse(false).Run()
}

// onEvent is called from whichever goroutine changed the session.
func (a *App) onEvent(ev chat.Event) {
	a.app.QueueUpdateDraw(func() {
		switch ev.Kind {
		case chat.EventPreviews:
			a.updateContactsList()
		case chat.EventThread:
			a.mu.RLock()
			open := a.currentChat
			paging := a.loadingOlder // loadOlder redraws and keeps the offset itself
			a.mu.RUnlock()
			if open != "" && !paging && (ev.Contact == "" || ev.Contact == open) {
				a.refreshChatView(scrollEnd)
			}
		case chat.EventConnection:
			a.onConnectionChange(ev.Err)
		case chat.EventLoggedOut:
			a.showLoggedOut()
		}
	})
}

// run executes fn off the UI goroutine with the app's context.
func (a *App) run(fn func(ctx context.Context) error, done func(err error)) {
	go func() {
		err := fn(a.ctx)
		if err != nil {
			log.Warn().Err(err).Msg("[ui] action failed")
		}
		a.app.QueueUpdateDraw(func() { done(err) })
	}()
}

// quit exits the application
func (a *App) quit() {
	a.stopStatusTicker()
	a.cancel()
	a.session.Close()
	a.app.Stop()
}

func (a *App) globalKeys(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyCtrlC {
		a.quit()
		return nil
	}
	return event
}
