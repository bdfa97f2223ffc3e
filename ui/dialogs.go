package ui

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rivo/tview"

	"mchat/api"
)

func (a *App) closeDialog() {
	a.pages.RemovePage("dialog")
	if a.contactsList != nil {
		a.app.SetFocus(a.contactsList)
	}
}

// errorText prefers the server's message over the transport error.
func errorText(err error) string {
	var apiErr *api.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return err.Error()
}

func (a *App) showAddContactDialog() {
	form := newForm("Add Contact")
	statusLabel := newStatusLine()

	nameField := tview.NewInputField()
	nameField.SetLabel("Username: ")
	nameField.SetFieldWidth(30)
	form.AddFormItem(nameField)

	form.AddButton("Add", func() {
		name := strings.TrimSpace(nameField.GetText())
		if name == "" {
			statusLabel.SetText(api.ErrEmptyName.Error())
			return
		}
		statusLabel.SetText("[yellow]Adding...[-]")
		a.run(func(ctx context.Context) error {
			return a.session.AddContact(ctx, name)
		}, func(err error) {
			if err != nil {
				statusLabel.SetText("[red]" + tview.Escape(errorText(err)) + "[-]")
				return
			}
			a.closeDialog()
		})
	})
	form.AddButton("Cancel", a.closeDialog)

	a.pages.AddPage("dialog", centered(form, 50, 7, statusLabel), true, true)
	a.app.SetFocus(form)
}

func (a *App) showDeleteContactDialog() {
	name := a.selectedContact()
	if name == "" {
		return
	}

	modal := newModal(fmt.Sprintf("Delete contact %s?", name), "Delete", "Cancel")
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		if buttonLabel != "Delete" {
			a.closeDialog()
			return
		}
		a.run(func(ctx context.Context) error {
			return a.session.DeleteContact(ctx, name)
		}, func(err error) {
			a.closeDialog()
			if err != nil {
				a.showErrorDialog("Delete failed: " + errorText(err))
			}
		})
	})

	a.pages.AddPage("dialog", modal, true, true)
}

func (a *App) showBioDialog() {
	form := newForm("Bio")
	statusLabel := newStatusLine()

	bioField := tview.NewTextArea()
	bioField.SetLabel("About you: ")
	bioField.SetSize(4, 40)
	form.AddFormItem(bioField)

	form.AddButton("Save", func() {
		bio := bioField.GetText()
		statusLabel.SetText("[yellow]Saving...[-]")
		a.run(func(ctx context.Context) error {
			return a.session.UpdateBio(ctx, bio)
		}, func(err error) {
			if err != nil {
				statusLabel.SetText("[red]" + tview.Escape(errorText(err)) + "[-]")
				return
			}
			a.closeDialog()
		})
	})
	form.AddButton("Cancel", a.closeDialog)

	a.pages.AddPage("dialog", centered(form, 60, 10, statusLabel), true, true)
	a.app.SetFocus(form)
}

// splitPeople turns "bob, carol,,dave" into its non-empty names.
func splitPeople(s string) []string {
	var people []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			people = append(people, p)
		}
	}
	return people
}

func (a *App) showGroupDialog() {
	form := newForm("New Group")
	statusLabel := newStatusLine()

	nameField := tview.NewInputField()
	nameField.SetLabel("Name: ")
	nameField.SetFieldWidth(30)

	peopleField := tview.NewInputField()
	peopleField.SetLabel("Members: ")
	peopleField.SetFieldWidth(30)
	peopleField.SetPlaceholder("bob, carol")

	form.AddFormItem(nameField)
	form.AddFormItem(peopleField)

	form.AddButton("Create", func() {
		name := strings.TrimSpace(nameField.GetText())
		if name == "" {
			statusLabel.SetText(api.ErrEmptyName.Error())
			return
		}
		people := splitPeople(peopleField.GetText())
		statusLabel.SetText("[yellow]Creating...[-]")
		a.run(func(ctx context.Context) error {
			return a.session.CreateGroup(ctx, name, people)
		}, func(err error) {
			if err != nil {
				statusLabel.SetText("[red]" + tview.Escape(errorText(err)) + "[-]")
				return
			}
			a.closeDialog()
		})
	})
	form.AddButton("Cancel", a.closeDialog)

	a.pages.AddPage("dialog", centered(form, 50, 9, statusLabel), true, true)
	a.app.SetFocus(form)
}

func (a *App) showUploadImageDialog() {
	a.showFileBrowser("", func(res FileBrowserResult) {
		if !res.Selected {
			if a.contactsList != nil {
				a.app.SetFocus(a.contactsList)
			}
			return
		}
		data, err := os.ReadFile(res.Path)
		if err != nil {
			a.showErrorDialog(err.Error())
			return
		}
		if len(data) > api.MaxImageUpload {
			a.showErrorDialog(fmt.Sprintf("Image is %s, the limit is %s",
				humanize.Bytes(uint64(len(data))), humanize.Bytes(uint64(api.MaxImageUpload))))
			return
		}
		if a.connectionView != nil {
			a.connectionView.SetText(fmt.Sprintf("[yellow]Uploading %s...[-]", humanize.Bytes(uint64(len(data)))))
		}
		a.run(func(ctx context.Context) error {
			return a.session.UploadImage(ctx, data)
		}, func(err error) {
			a.updateConnectionStatus()
			if err != nil {
				a.showErrorDialog("Upload failed: " + errorText(err))
			}
		})
	})
}

func (a *App) showLogoutDialog() {
	modal := newModal(fmt.Sprintf("Log out %s?", a.session.Me()), "Logout", "Cancel")
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		if buttonLabel != "Logout" {
			a.closeDialog()
			return
		}
		a.pages.RemovePage("dialog")
		// the session emits EventLoggedOut either way
		a.run(func(ctx context.Context) error {
			return a.session.Logout(ctx)
		}, func(error) {})
	})
	a.pages.AddPage("dialog", modal, true, true)
}

func (a *App) showErrorDialog(text string) {
	modal := newModal(text, "OK")
	modal.SetDoneFunc(func(buttonIndex int, buttonLabel string) {
		a.pages.RemovePage("error")
		if a.contactsList != nil {
			a.app.SetFocus(a.contactsList)
		}
	})
	a.pages.AddPage("error", modal, true, true)
}
