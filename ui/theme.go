package ui

import (
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// Colors - Midnight Commander style
var (
	ColorBg        = tcell.NewRGBColor(0, 0, 128)     // Dark blue background
	ColorFg        = tcell.NewRGBColor(192, 192, 192) // Light gray text
	ColorBorder    = tcell.NewRGBColor(0, 255, 255)   // Cyan borders
	ColorTitle     = tcell.NewRGBColor(255, 255, 255) // White titles
	ColorHighlight = tcell.NewRGBColor(0, 255, 255)   // Cyan highlight
	ColorField     = tcell.NewRGBColor(0, 0, 64)      // Input background
	ColorButton    = tcell.NewRGBColor(0, 128, 128)   // Buttons and bars
	ColorShade     = tcell.NewRGBColor(64, 64, 64)    // Behind modal dialogs
)

func newForm(title string) *tview.Form {
	form := tview.NewForm()
	form.SetBackgroundColor(ColorBg)
	form.SetFieldBackgroundColor(ColorField)
	form.SetFieldTextColor(ColorFg)
	form.SetLabelColor(ColorHighlight)
	form.SetButtonBackgroundColor(ColorButton)
	form.SetButtonTextColor(ColorTitle)
	form.SetBorder(true)
	form.SetBorderColor(ColorBorder)
	form.SetTitle(" " + title + " ")
	form.SetTitleColor(ColorTitle)
	return form
}

func newModal(text string, buttons ...string) *tview.Modal {
	modal := tview.NewModal()
	modal.SetText(text)
	modal.SetBackgroundColor(ColorBg)
	modal.SetTextColor(ColorFg)
	modal.SetButtonBackgroundColor(ColorButton)
	modal.SetButtonTextColor(ColorTitle)
	modal.AddButtons(buttons)
	return modal
}

func newStatusLine() *tview.TextView {
	status := tview.NewTextView()
	status.SetBackgroundColor(ColorBg)
	status.SetTextColor(tcell.ColorRed)
	status.SetTextAlign(tview.AlignCenter)
	status.SetDynamicColors(true)
	return status
}

func newBar(text string) *tview.TextView {
	bar := tview.NewTextView()
	bar.SetBackgroundColor(ColorButton)
	bar.SetTextColor(ColorTitle)
	bar.SetTextAlign(tview.AlignCenter)
	bar.SetText(text)
	return bar
}

// centered places p in the middle of the screen with a status line under it.
func centered(p tview.Primitive, width, height int, status *tview.TextView) *tview.Flex {
	rows := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(nil, 0, 1, false).
		AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(p, width, 0, true).
			AddItem(nil, 0, 1, false), height, 0, true)
	if status != nil {
		rows.AddItem(tview.NewFlex().
			AddItem(nil, 0, 1, false).
			AddItem(status, width, 0, false).
			AddItem(nil, 0, 1, false), 1, 0, false)
	}
	rows.AddItem(nil, 0, 1, false)
	rows.SetBackgroundColor(ColorBg)
	return rows
}
