// Package tui is a terminal front end for one catalog session.
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/session"
)

// Controller is the part of a session the terminal drives.
type Controller interface {
	Type(query string)
	Submit(query string)
	LoadMore() bool
	ToggleGenre(genre string) []string
	LoadCategories(categories ...domain.Category)
	Open(selection session.Selection)
	Dismiss()
}

// EventMsg carries a session event into the program.
type EventMsg session.Event

type focus int

const (
	focusInput focus = iota
	focusList
)

// App shows the live search results, or the home rows while the box is empty.
type App struct {
	ctrl   Controller
	input  textinput.Model
	focus  focus
	cursor int
	width  int
	height int

	search    session.Event
	rows      map[domain.Category]session.Event
	details   *session.Event
	filter    []string
	lastQuery string
}

func NewApp(ctrl Controller) App {
	ti := textinput.New()
	ti.Placeholder = "Search anime..."
	ti.Prompt = "> "
	ti.PromptStyle = titleStyle
	ti.CharLimit = 500
	ti.Focus()

	return App{
		ctrl:  ctrl,
		input: ti,
		rows:  make(map[domain.Category]session.Event),
	}
}

func (a App) Init() tea.Cmd {
	a.ctrl.LoadCategories()
	return textinput.Blink
}

func (a App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.input.Width = max(msg.Width-6, 10)
		return a, nil

	case EventMsg:
		a.applyEvent(session.Event(msg))
		return a, nil

	case tea.KeyMsg:
		return a.handleKey(msg)
	}
	return a, nil
}

func (a *App) applyEvent(event session.Event) {
	switch {
	case event.Stream == session.StreamSearch:
		a.search = event
		if a.cursor >= len(event.View.Items) {
			a.cursor = max(len(event.View.Items)-1, 0)
		}
	case event.Stream == session.StreamDetails:
		a.details = &event
	case strings.HasPrefix(event.Stream, "category:"):
		a.rows[domain.Category(strings.TrimPrefix(event.Stream, "category:"))] = event
	}
}

func (a App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "esc":
		if a.details != nil {
			a.details = nil
			a.ctrl.Dismiss()
			return a, nil
		}
		if a.focus == focusList {
			a.focus = focusInput
			a.input.Focus()
		}
		return a, nil
	case "tab":
		if a.focus == focusInput {
			a.focus = focusList
			a.input.Blur()
		} else {
			a.focus = focusInput
			a.input.Focus()
		}
		return a, nil
	}

	if a.focus == focusInput {
		if msg.String() == "enter" {
			a.ctrl.Submit(a.input.Value())
			a.lastQuery = a.input.Value()
			return a, nil
		}
		var cmd tea.Cmd
		a.input, cmd = a.input.Update(msg)
		if value := a.input.Value(); value != a.lastQuery {
			a.lastQuery = value
			a.ctrl.Type(value)
		}
		return a, cmd
	}

	items := a.search.View.Items
	switch msg.String() {
	case "q":
		return a, tea.Quit
	case "up", "k":
		if a.cursor > 0 {
			a.cursor--
		}
	case "down", "j":
		if a.cursor < len(items)-1 {
			a.cursor++
		} else {
			a.ctrl.LoadMore()
		}
	case "m":
		a.ctrl.LoadMore()
	case "enter":
		if a.cursor < len(items) {
			a.ctrl.Open(session.Selection{Result: items[a.cursor], From: "search"})
		}
	case "f":
		if a.cursor < len(items) && len(items[a.cursor].Genres) > 0 {
			a.filter = a.ctrl.ToggleGenre(items[a.cursor].Genres[0])
			a.cursor = 0
		}
	}
	return a, nil
}

func (a App) View() string {
	var b strings.Builder
	b.WriteString(a.input.View())
	b.WriteString("\n")
	if len(a.filter) > 0 {
		b.WriteString(metaStyle.Render("  genres: " + strings.Join(a.filter, ", ")))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if a.details != nil && a.details.Details != nil {
		b.WriteString(renderDetails(*a.details, a.width))
	} else if strings.TrimSpace(a.lastQuery) == "" {
		b.WriteString(a.renderHome())
	} else {
		b.WriteString(a.renderResults())
	}

	b.WriteString("\n")
	b.WriteString(statusBar.Render("enter search/open · tab focus · j/k move · m more · f genre · esc back · ctrl+c quit"))
	return b.String()
}

func (a App) renderResults() string {
	var b strings.Builder
	if a.search.Error != "" {
		b.WriteString(errorStyle.Render(a.search.Error))
		b.WriteString("\n")
	}
	for i, item := range a.search.View.Items {
		line := fmt.Sprintf("%s %s", item.Title, metaStyle.Render(resultMeta(item)))
		if a.focus == focusList && i == a.cursor {
			b.WriteString(selectedItem.Render(line))
		} else {
			b.WriteString(normalItem.Render(line))
		}
		b.WriteString("\n")
	}
	switch {
	case a.search.Loading:
		b.WriteString(metaStyle.Render("  loading..."))
	case len(a.search.View.Items) == 0 && a.search.Error == "":
		b.WriteString(metaStyle.Render("  no results"))
	case a.search.View.HasMore:
		b.WriteString(metaStyle.Render("  more results available (m)"))
	}
	b.WriteString("\n")
	return b.String()
}

func (a App) renderHome() string {
	var b strings.Builder
	for _, category := range domain.HomeCategories() {
		b.WriteString(titleStyle.Render(domain.CategoryTitle(category)))
		b.WriteString("\n")
		row, ok := a.rows[category]
		switch {
		case !ok || row.Loading:
			b.WriteString(metaStyle.Render("  loading..."))
		case row.Error != "":
			b.WriteString(errorStyle.Render(row.Error))
		default:
			titles := make([]string, 0, 5)
			for _, item := range row.View.Items {
				if len(titles) == cap(titles) {
					break
				}
				titles = append(titles, item.Title)
			}
			b.WriteString(normalItem.Render(strings.Join(titles, " · ")))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func renderDetails(event session.Event, width int) string {
	details := event.Details
	var b strings.Builder
	b.WriteString(titleStyle.Render(details.Title))
	b.WriteString("\n")
	meta := []string{}
	for _, part := range []string{details.Type, details.Status, details.ReleaseYear, details.Rating} {
		if part != "" {
			meta = append(meta, part)
		}
	}
	if details.TotalEpisodes > 0 {
		meta = append(meta, fmt.Sprintf("%d episodes", details.TotalEpisodes))
	}
	if len(meta) > 0 {
		b.WriteString(metaStyle.Render(strings.Join(meta, " · ")))
		b.WriteString("\n")
	}
	if len(details.Genres) > 0 {
		b.WriteString(metaStyle.Render(strings.Join(details.Genres, ", ")))
		b.WriteString("\n")
	}
	switch {
	case event.Loading:
		b.WriteString("\nloading...")
	case event.Error != "":
		b.WriteString("\n" + errorStyle.Render(event.Error))
	case details.Description != "":
		b.WriteString("\n" + details.Description)
	}
	pane := detailsPane
	if width > 4 {
		pane = pane.Width(width - 4)
	}
	return pane.Render(b.String())
}

func resultMeta(item domain.Result) string {
	parts := []string{}
	if item.ReleaseYear != "" {
		parts = append(parts, item.ReleaseYear)
	}
	if len(item.Genres) > 0 {
		parts = append(parts, strings.Join(item.Genres, ", "))
	}
	return strings.Join(parts, " · ")
}
