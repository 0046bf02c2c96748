package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"animestream/catalog/internal/domain"
	"animestream/catalog/internal/paginate"
	"animestream/catalog/internal/session"
)

type fakeController struct {
	typed      []string
	submitted  []string
	loadMore   int
	toggled    []string
	categories int
	opened     []session.Selection
	dismissed  int
}

func (f *fakeController) Type(query string) { f.typed = append(f.typed, query) }
func (f *fakeController) Submit(query string) { f.submitted = append(f.submitted, query) }
func (f *fakeController) LoadMore() bool {
	f.loadMore++
	return true
}
func (f *fakeController) ToggleGenre(genre string) []string {
	f.toggled = append(f.toggled, genre)
	return []string{genre}
}
func (f *fakeController) LoadCategories(categories ...domain.Category) { f.categories++ }
func (f *fakeController) Open(selection session.Selection) { f.opened = append(f.opened, selection) }
func (f *fakeController) Dismiss() { f.dismissed++ }

func runes(value string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(value)}
}

func update(t *testing.T, app App, msg tea.Msg) App {
	t.Helper()
	model, _ := app.Update(msg)
	next, ok := model.(App)
	if !ok {
		t.Fatalf("unexpected model type %T", model)
	}
	return next
}

func searchEvent(items ...domain.Result) EventMsg {
	return EventMsg(session.Event{
		Stream: session.StreamSearch,
		View:   paginate.View{Items: items, Page: 1, HasMore: true},
	})
}

func TestAppInitLoadsHomeRows(t *testing.T) {
	ctrl := &fakeController{}
	app := NewApp(ctrl)
	if cmd := app.Init(); cmd == nil {
		t.Fatal("Init should return the cursor blink command")
	}
	if ctrl.categories != 1 {
		t.Fatalf("expected one category load, got %d", ctrl.categories)
	}
}

func TestTypingForwardsEachChange(t *testing.T) {
	ctrl := &fakeController{}
	app := NewApp(ctrl)

	app = update(t, app, runes("j"))
	app = update(t, app, runes("j"))
	app = update(t, app, tea.KeyMsg{Type: tea.KeyEnter})

	if strings.Join(ctrl.typed, "|") != "j|jj" {
		t.Fatalf("unexpected typed values: %v", ctrl.typed)
	}
	if len(ctrl.submitted) != 1 || ctrl.submitted[0] != "jj" {
		t.Fatalf("unexpected submit: %v", ctrl.submitted)
	}
}

func TestListNavigationOpensAndLoadsMore(t *testing.T) {
	ctrl := &fakeController{}
	app := NewApp(ctrl)
	app = update(t, app, runes("x"))
	app = update(t, app, searchEvent(
		domain.Result{ID: "1", Title: "One", Genres: []string{"Action"}},
		domain.Result{ID: "2", Title: "Two"},
	))

	app = update(t, app, tea.KeyMsg{Type: tea.KeyTab})
	app = update(t, app, tea.KeyMsg{Type: tea.KeyDown})
	app = update(t, app, tea.KeyMsg{Type: tea.KeyDown})
	if ctrl.loadMore != 1 {
		t.Fatalf("moving past the last item should load more, got %d", ctrl.loadMore)
	}

	app = update(t, app, tea.KeyMsg{Type: tea.KeyEnter})
	if len(ctrl.opened) != 1 || ctrl.opened[0].Result.ID != "2" {
		t.Fatalf("unexpected open: %+v", ctrl.opened)
	}

	app = update(t, app, tea.KeyMsg{Type: tea.KeyUp})
	app = update(t, app, runes("f"))
	if len(ctrl.toggled) != 1 || ctrl.toggled[0] != "Action" {
		t.Fatalf("unexpected genre toggle: %v", ctrl.toggled)
	}
	if !strings.Contains(app.View(), "genres: Action") {
		t.Fatalf("filter should be shown:\n%s", app.View())
	}
}

func TestDetailsAreDismissedWithEsc(t *testing.T) {
	ctrl := &fakeController{}
	app := NewApp(ctrl)
	details := domain.Details{Result: domain.Result{ID: "7", Title: "Frieren"}, Description: "An elf mage.", TotalEpisodes: 28}
	app = update(t, app, EventMsg(session.Event{Stream: session.StreamDetails, Details: &details}))

	view := app.View()
	if !strings.Contains(view, "Frieren") || !strings.Contains(view, "28 episodes") {
		t.Fatalf("details not rendered:\n%s", view)
	}

	app = update(t, app, tea.KeyMsg{Type: tea.KeyEsc})
	if ctrl.dismissed != 1 {
		t.Fatalf("expected dismiss, got %d", ctrl.dismissed)
	}
	if strings.Contains(app.View(), "An elf mage.") {
		t.Fatal("details should be closed")
	}
}

func TestViewShowsErrorsAndHomeRows(t *testing.T) {
	app := NewApp(&fakeController{})
	app = update(t, app, EventMsg(session.Event{
		Stream: session.CategoryStream(domain.CategoryAction),
		View:   paginate.View{Items: []domain.Result{{ID: "a", Title: "Chainsaw Man"}}},
	}))
	app = update(t, app, EventMsg(session.Event{
		Stream: session.CategoryStream(domain.CategoryComedy),
		Error:  session.MessageListFailed,
	}))

	home := app.View()
	if !strings.Contains(home, "Chainsaw Man") || !strings.Contains(home, session.MessageListFailed) {
		t.Fatalf("unexpected home view:\n%s", home)
	}

	app = update(t, app, runes("z"))
	app = update(t, app, EventMsg(session.Event{Stream: session.StreamSearch, Error: session.MessageSearchFailed}))
	if !strings.Contains(app.View(), session.MessageSearchFailed) {
		t.Fatalf("search error not shown:\n%s", app.View())
	}
}
