package ui

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// FileBrowserResult is what the file picker hands back.
type FileBrowserResult struct {
	Selected bool
	Path     string
}

type dirEntry struct {
	name  string
	dir   bool
	size  int64
	image bool
}

// listDir returns the visible entries of dir, directories first, each group
// sorted case-insensitively. Hidden entries are skipped.
func listDir(dir string) ([]dirEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var dirs, files []dirEntry
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if entry.IsDir() {
			dirs = append(dirs, dirEntry{name: entry.Name(), dir: true})
			continue
		}
		e := dirEntry{
			name:  entry.Name(),
			image: strings.EqualFold(filepath.Ext(entry.Name()), ".webp"),
		}
		if info, err := entry.Info(); err == nil {
			e.size = info.Size()
		}
		files = append(files, e)
	}
	byName := func(s []dirEntry) {
		sort.Slice(s, func(i, j int) bool {
			return strings.ToLower(s[i].name) < strings.ToLower(s[j].name)
		})
	}
	byName(dirs)
	byName(files)
	return append(dirs, files...), nil
}

// showFileBrowser lets the user pick a file, starting in initialPath or the
// home directory.
func (a *App) showFileBrowser(initialPath string, callback func(FileBrowserResult)) {
	startDir := initialPath
	if startDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			startDir = "/"
		} else {
			startDir = home
		}
	}
	if info, err := os.Stat(startDir); err == nil && !info.IsDir() {
		startDir = filepath.Dir(startDir)
	}

	currentDir := startDir
	var entries []dirEntry

	fileList := tview.NewList()
	fileList.SetBorder(true)
	fileList.SetBorderColor(ColorBorder)
	fileList.SetBackgroundColor(ColorBg)
	fileList.SetMainTextColor(ColorFg)
	fileList.SetSecondaryTextColor(tcell.NewRGBColor(128, 128, 128))
	fileList.SetSelectedTextColor(ColorTitle)
	fileList.SetSelectedBackgroundColor(ColorButton)
	fileList.SetHighlightFullLine(true)
	fileList.ShowSecondaryText(true)

	pathInput := tview.NewInputField()
	pathInput.SetLabel(" Path: ")
	pathInput.SetFieldWidth(0)
	pathInput.SetBackgroundColor(ColorBg)
	pathInput.SetFieldBackgroundColor(ColorField)
	pathInput.SetFieldTextColor(ColorFg)
	pathInput.SetLabelColor(ColorHighlight)

	statusText := newBar(" Enter:Select | Backspace:Up | Esc:Cancel ")

	parentRow := func() int {
		if currentDir == "/" {
			return -1
		}
		return 0
	}

	populateList := func(dir string) error {
		list, err := listDir(dir)
		if err != nil {
			return err
		}
		entries = list
		currentDir = dir
		fileList.Clear()
		if dir != "/" {
			fileList.AddItem("📁 ..", "", 0, nil)
		}
		for _, e := range entries {
			if e.dir {
				fileList.AddItem(fmt.Sprintf("📁 %s/", tview.Escape(e.name)), "", 0, nil)
				continue
			}
			icon := "📄"
			if e.image {
				icon = "🖼"
			}
			fileList.AddItem(fmt.Sprintf("%s %s", icon, tview.Escape(e.name)), humanize.Bytes(uint64(e.size)), 0, nil)
		}
		pathInput.SetText(dir)
		fileList.SetTitle(fmt.Sprintf(" Select Image - %s ", dir))
		return nil
	}

	goTo := func(dir string) {
		if err := populateList(dir); err != nil {
			statusText.SetText(fmt.Sprintf(" Error: %v ", err))
		}
	}

	fileList.SetSelectedFunc(func(index int, mainText, secondaryText string, shortcut rune) {
		if index == parentRow() {
			goTo(filepath.Dir(currentDir))
			return
		}
		if parentRow() == 0 {
			index--
		}
		if index < 0 || index >= len(entries) {
			return
		}
		e := entries[index]
		fullPath := filepath.Join(currentDir, e.name)
		if e.dir {
			goTo(fullPath)
			return
		}
		a.pages.RemovePage("filebrowser")
		callback(FileBrowserResult{Selected: true, Path: fullPath})
	})

	fileList.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		switch event.Key() {
		case tcell.KeyEsc:
			a.pages.RemovePage("filebrowser")
			callback(FileBrowserResult{})
			return nil
		case tcell.KeyBackspace, tcell.KeyBackspace2:
			if currentDir != "/" {
				goTo(filepath.Dir(currentDir))
			}
			return nil
		case tcell.KeyTab:
			a.app.SetFocus(pathInput)
			return nil
		}
		return event
	})

	pathInput.SetDoneFunc(func(key tcell.Key) {
		if key == tcell.KeyEnter {
			newPath := pathInput.GetText()
			if info, err := os.Stat(newPath); err == nil && info.IsDir() {
				goTo(newPath)
			} else {
				statusText.SetText(" Invalid directory ")
			}
		}
		a.app.SetFocus(fileList)
	})

	goTo(currentDir)

	mainFlex := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(pathInput, 1, 0, false).
		AddItem(fileList, 0, 1, true).
		AddItem(statusText, 1, 0, false)
	mainFlex.SetBackgroundColor(ColorBg)

	a.pages.AddPage("filebrowser", centered(mainFlex, 60, 20, nil), true, true)
	a.app.SetFocus(fileList)
}
