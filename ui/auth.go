package ui

import (
	"context"
	"errors"

	"github.com/rivo/tview"

	"mchat/api"
	"mchat/chat"
)

func (a *App) showAuthDialog() {
	form := newForm("mchat " + a.serverURL)
	statusText := newStatusLine()

	loginField := tview.NewInputField()
	loginField.SetLabel("Username: ")
	loginField.SetFieldWidth(30)
	loginField.SetBackgroundColor(ColorBg)

	passwordField := tview.NewInputField()
	passwordField.SetLabel("Password: ")
	passwordField.SetFieldWidth(30)
	passwordField.SetMaskCharacter('*')
	passwordField.SetBackgroundColor(ColorBg)

	// only checked when signing up
	repeatField := tview.NewInputField()
	repeatField.SetLabel("Repeat: ")
	repeatField.SetFieldWidth(30)
	repeatField.SetMaskCharacter('*')
	repeatField.SetBackgroundColor(ColorBg)

	form.AddFormItem(loginField)
	form.AddFormItem(passwordField)
	form.AddFormItem(repeatField)

	form.AddButton("Login", func() {
		login := loginField.GetText()
		password := passwordField.GetText()
		if login == "" || password == "" {
			statusText.SetText("[red]Please enter username and password[-]")
			return
		}
		statusText.SetText("[yellow]Logging in...[-]")
		a.run(func(ctx context.Context) error {
			return a.session.Login(ctx, login, password)
		}, func(err error) {
			a.authDone(err, statusText)
		})
	})

	form.AddButton("Sign up", func() {
		login := loginField.GetText()
		password := passwordField.GetText()
		if err := api.ValidateSignup(login, password); err != nil {
			statusText.SetText("[red]" + tview.Escape(err.Error()) + "[-]")
			return
		}
		repeat := repeatField.GetText()
		if password != repeat {
			statusText.SetText("[red]" + chat.ErrPasswordMatch.Error() + "[-]")
			return
		}
		statusText.SetText("[yellow]Signing up...[-]")
		a.run(func(ctx context.Context) error {
			return a.session.Signup(ctx, login, password, repeat)
		}, func(err error) {
			a.authDone(err, statusText)
		})
	})

	form.AddButton("Quit", func() {
		a.quit()
	})

	formFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(form, 0, 1, true).
		AddItem(statusText, 1, 0, false)

	a.pages.AddPage("auth", centered(formFlex, 56, 14, nil), true, true)
	a.app.SetFocus(form)
}

func (a *App) authDone(err error, statusText *tview.TextView) {
	if err == nil {
		a.showMainScreen()
		return
	}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		statusText.SetText("[red]" + tview.Escape(apiErr.Message) + "[-]")
		return
	}
	statusText.SetText("[red]Connection failed: " + tview.Escape(err.Error()) + "[-]")
}

// showLoggedOut drops every screen and goes back to the login form.
func (a *App) showLoggedOut() {
	a.stopStatusTicker()
	a.mu.Lock()
	a.currentChat = ""
	a.searchQuery = ""
	a.searchResults = nil
	a.mu.Unlock()
	for _, page := range []string{"chat", "main", "dialog", "help", "filebrowser", "error"} {
		a.pages.RemovePage(page)
	}
	a.contactsList = nil
	a.searchField = nil
	a.chatView = nil
	a.infoView = nil
	a.messageInput = nil
	a.statusBar = nil
	a.connectionView = nil

	if !a.pages.HasPage("background") {
		background := tview.NewBox()
		background.SetBackgroundColor(ColorShade)
		a.pages.AddPage("background", background, true, true)
	}
	if !a.pages.HasPage("auth") {
		a.showAuthDialog()
	}
}
