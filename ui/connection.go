package ui

import (
	"context"
	"fmt"
	"time"

	"github.com/rivo/tview"

	"mchat/api"
)

func (a *App) updateConnectionStatus() {
	if a.connectionView == nil {
		return
	}
	if a.session.Connected() {
		a.mu.RLock()
		since := time.Since(a.connectedAt)
		a.mu.RUnlock()
		a.connectionView.SetText(fmt.Sprintf("[green]● Connected to %s[-] [gray]│ Up: %s[-]", a.serverURL, formatDuration(since)))
	} else {
		a.connectionView.SetText(fmt.Sprintf("[red]○ Disconnected from %s[-]\n[gray]Press F6 to reconnect[-]", a.serverURL))
	}
}

// onConnectionChange runs when the socket opens or drops. err is nil for a
// fresh connection or a local close.
func (a *App) onConnectionChange(err error) {
	a.mu.Lock()
	if a.session.Connected() {
		if err == nil && a.connectedAt.IsZero() {
			a.connectedAt = time.Now()
		}
	} else {
		a.connectedAt = time.Time{}
	}
	a.mu.Unlock()

	if err != nil {
		a.setConnectionError("connection lost: " + err.Error())
	} else {
		a.updateConnectionStatus()
	}
	a.updateStatusBarText()
}

func (a *App) startStatusTicker() {
	if a.statusTicker != nil {
		return
	}
	done := make(chan struct{})
	ticker := time.NewTicker(1 * time.Second)
	a.statusTickerDone = done
	a.statusTicker = ticker
	go func() {
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if a.session.Connected() {
					a.app.QueueUpdateDraw(func() {
						a.updateConnectionStatus()
						a.updateContactsList() // relative times in previews
					})
				}
			}
		}
	}()
}

func (a *App) stopStatusTicker() {
	if a.statusTicker != nil {
		a.statusTicker.Stop()
		close(a.statusTickerDone)
		a.statusTicker = nil
	}
}

func (a *App) setConnectionError(err string) {
	if a.connectionView == nil {
		return
	}
	a.connectionView.SetText(fmt.Sprintf("[red]✗ Error: %s[-]\n[gray]Press F6 to reconnect[-]", tview.Escape(err)))
}

func (a *App) updateStatusBarText() {
	if a.statusBar == nil {
		return
	}
	if a.session.Connected() {
		a.statusBar.SetText(" F1:Help | /:Search | F2:Add | F3:Bio | F4:Delete | F5:Refresh | F7:Group | F8:Avatar | F9:Logout | F10:Quit ")
	} else {
		a.statusBar.SetText(" F1:Help | F5:Refresh | F6:Reconnect | F9:Logout | F10:Quit ")
	}
}

// reconnect restarts the session when the socket is gone: the cookie is
// checked again, the socket reopened and the previews reloaded.
func (a *App) reconnect() {
	if a.session.Connected() {
		a.updateConnectionStatus()
		return
	}
	if a.connectionView != nil {
		a.connectionView.SetText("[yellow]Connecting...[-]")
	}
	a.run(func(ctx context.Context) error {
		return a.session.Start(ctx)
	}, func(err error) {
		if api.IsUnauthorized(err) {
			a.setConnectionError("session expired, press F9 to log in again")
			a.updateStatusBarText()
			return
		}
		if err != nil {
			a.setConnectionError(fmt.Sprintf("connection failed: %v", err))
			a.updateStatusBarText()
			return
		}
		a.mu.Lock()
		a.connectedAt = time.Now()
		a.mu.Unlock()
		a.updateConnectionStatus()
		a.updateStatusBarText()
	})
}
