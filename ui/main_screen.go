package ui

import (
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

func (a *App) showMainScreen() {
	a.pages.RemovePage("auth")
	a.pages.RemovePage("background")

	mainPage := a.createMainPage()
	a.pages.AddPage("main", mainPage, true, true)

	a.contactsList.SetTitle(fmt.Sprintf(" Contacts [%s] ", a.session.Me()))

	a.mu.Lock()
	if a.session.Connected() {
		a.connectedAt = time.Now()
	}
	a.mu.Unlock()

	a.startStatusTicker()
	a.updateConnectionStatus()
	a.updateStatusBarText()
	a.updateContactsList()

	a.app.SetFocus(a.contactsList)
}

func (a *App) createMainPage() tview.Primitive {
	a.contactsList = tview.NewList()
	a.contactsList.SetBorder(true)
	a.contactsList.SetBorderColor(ColorBorder)
	a.contactsList.SetBackgroundColor(ColorBg)
	a.contactsList.SetTitle(" Contacts ")
	a.contactsList.SetTitleColor(ColorTitle)
	a.contactsList.SetMainTextColor(ColorFg)
	a.contactsList.SetMainTextStyle(tcell.StyleDefault.Foreground(ColorFg).Background(ColorBg))
	a.contactsList.SetSecondaryTextColor(tcell.NewRGBColor(128, 128, 128))
	a.contactsList.SetSelectedTextColor(ColorTitle)
	a.contactsList.SetSelectedBackgroundColor(ColorButton)
	a.contactsList.SetHighlightFullLine(true)
	a.contactsList.ShowSecondaryText(true)

	a.contactsList.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		if name := a.selectedContact(); name != "" {
			a.openChat(name)
		}
	})

	a.searchField = tview.NewInputField()
	a.searchField.SetLabel(" Search: ")
	a.searchField.SetFieldWidth(0)
	a.searchField.SetBackgroundColor(ColorBg)
	a.searchField.SetFieldBackgroundColor(ColorField)
	a.searchField.SetFieldTextColor(ColorFg)
	a.searchField.SetLabelColor(ColorHighlight)
	a.searchField.SetPlaceholder("press / to search contacts")
	a.searchField.SetDoneFunc(func(key tcell.Key) {
		switch key {
		case tcell.KeyEnter:
			a.searchContacts(a.searchField.GetText())
		case tcell.KeyEsc:
			a.searchField.SetText("")
			a.searchContacts("")
		}
		a.app.SetFocus(a.contactsList)
	})

	a.connectionView = tview.NewTextView()
	a.connectionView.SetBorder(true)
	a.connectionView.SetBorderColor(ColorBorder)
	a.connectionView.SetBackgroundColor(ColorBg)
	a.connectionView.SetTitle(" Connection ")
	a.connectionView.SetTitleColor(ColorTitle)
	a.connectionView.SetTextColor(ColorFg)
	a.connectionView.SetDynamicColors(true)
	a.connectionView.SetTextAlign(tview.AlignCenter)

	a.statusBar = newBar("")

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.searchField, 1, 0, false).
		AddItem(a.contactsList, 0, 1, true).
		AddItem(a.connectionView, 3, 0, false).
		AddItem(a.statusBar, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	mainFlex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if a.app.GetFocus() == a.searchField {
			return event
		}
		if event.Key() == tcell.KeyRune && event.Rune() == '/' {
			a.app.SetFocus(a.searchField)
			return nil
		}
		switch event.Key() {
		case tcell.KeyF1:
			a.showHelp()
			return nil
		case tcell.KeyF2:
			a.showAddContactDialog()
			return nil
		case tcell.KeyF3:
			a.showBioDialog()
			return nil
		case tcell.KeyF4:
			a.showDeleteContactDialog()
			return nil
		case tcell.KeyF5:
			a.refreshContacts()
			return nil
		case tcell.KeyF6:
			a.reconnect()
			return nil
		case tcell.KeyF7:
			a.showGroupDialog()
			return nil
		case tcell.KeyF8:
			a.showUploadImageDialog()
			return nil
		case tcell.KeyF9:
			a.showLogoutDialog()
			return nil
		case tcell.KeyF10, tcell.KeyEsc:
			a.quit()
			return nil
		}
		return event
	})

	return mainFlex
}

// selectedContact returns the name under the cursor, or "".
func (a *App) selectedContact() string {
	if a.contactsList == nil {
		return ""
	}
	idx := a.contactsList.GetCurrentItem()
	a.mu.RLock()
	defer a.mu.RUnlock()
	if idx < 0 || idx >= len(a.contactNames) {
		return ""
	}
	return a.contactNames[idx]
}
