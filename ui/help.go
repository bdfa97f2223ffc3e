package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

const helpText = `
 [yellow]Contacts[-]
 ───────────────────────────────────────────────────────────────
   [white]F1[-]       Show this help
   [white]F2[-]       Add a contact by username
   [white]F3[-]       Edit your bio
   [white]F4[-]       Delete selected contact
   [white]F5[-]       Reload contacts and unread counts
   [white]F6[-]       Reconnect after the connection dropped
   [white]F7[-]       Create a group
   [white]F8[-]       Upload a WebP avatar
   [white]F9[-]       Log out
   [white]F10/Esc[-]  Quit
   [white]/[-]        Search contacts (Esc clears)
   [white]Enter[-]    Open the conversation
   [white]↑ ↓[-]      Navigate contacts

 [yellow]Conversation[-]
 ───────────────────────────────────────────────────────────────
   [white]Enter[-]    Send message
   [white]Tab[-]      Switch between input and scroll mode
   [white]PgUp[-]     Scroll up, loads older messages at the top
   [white]F5[-]       Refresh the contact card
   [white]Esc[-]      Back to contacts

 [yellow]Scroll Mode (after pressing Tab)[-]
 ───────────────────────────────────────────────────────────────
   [white]↑ ↓[-]      Scroll one line
   [white]PgUp/Dn[-]  Scroll page (10 lines)
   [white]Home[-]     Scroll to beginning
   [white]End[-]      Scroll to end
   [white]Tab/Esc[-]  Return to input mode

 [yellow]Status Icons[-]
 ───────────────────────────────────────────────────────────────
   [green]●[-]          Contact is online
   [gray]○[-]          Contact is offline, last seen time shown
   [gray]✓[-]          Message sent
   [green]✓✓[-]         Message read
   [red](3)[-]        Unread messages
`

func (a *App) showHelp() {
	helpView := tview.NewTextView()
	helpView.SetText(helpText)
	helpView.SetBackgroundColor(ColorBg)
	helpView.SetTextColor(ColorFg)
	helpView.SetDynamicColors(true)
	helpView.SetBorder(true)
	helpView.SetBorderColor(ColorBorder)
	helpView.SetTitle(" Help ")
	helpView.SetTitleColor(ColorTitle)
	helpView.SetScrollable(true)

	flex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(helpView, 0, 1, true).
		AddItem(newBar(" ↑↓/PgUp/PgDn: Scroll | Esc/Enter/F1: Close "), 1, 0, false)
	flex.SetBackgroundColor(ColorBg)

	flex.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc, tcell.KeyEnter, tcell.KeyF1:
			a.pages.RemovePage("help")
			if a.contactsList != nil {
				a.app.SetFocus(a.contactsList)
			}
			return nil
		case tcell.KeyPgUp:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row-10, col)
			return nil
		case tcell.KeyPgDn:
			row, col := helpView.GetScrollOffset()
			helpView.ScrollTo(row+10, col)
			return nil
		case tcell.KeyHome:
			helpView.ScrollToBeginning()
			return nil
		case tcell.KeyEnd:
			helpView.ScrollToEnd()
			return nil
		}
		return event
	})

	a.pages.AddPage("help", flex, true, true)
}
