package telegram

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/flemzord/tgbridge/pkg/message"
)

const menuTTL = time.Hour

// MenuFunc runs when a menu button is pressed.
type MenuFunc func(ctx context.Context, bot *Bot, ev *Event) error

// MenuItem is one button of a Menu. Buttons with a URL open it and never
// reach a MenuFunc.
type MenuItem struct {
	ID     string
	Text   string
	Row    int
	Column int
	URL    string

	handler MenuFunc
}

// Menu is an inline keyboard whose buttons are bound to callbacks. Only
// the session that opened the menu can use it.
type Menu struct {
	ID   string
	Text string

	mu        sync.Mutex
	items     []*MenuItem
	session   string
	messageID int64
	expires   time.Time
}

// NewMenu creates an empty menu shown under text.
func NewMenu(text string) *Menu {
	return &Menu{ID: uuid.NewString(), Text: text}
}

// Add binds a button at (row, column) to fn.
func (m *Menu) Add(text string, row, column int, fn MenuFunc) *MenuItem {
	item := &MenuItem{ID: uuid.NewString(), Text: text, Row: row, Column: column, handler: fn}
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()
	return item
}

// AddURL adds a link button at (row, column).
func (m *Menu) AddURL(text, url string, row, column int) *MenuItem {
	item := &MenuItem{ID: uuid.NewString(), Text: text, Row: row, Column: column, URL: url}
	m.mu.Lock()
	m.items = append(m.items, item)
	m.mu.Unlock()
	return item
}

// Keyboard lays the items out by row, then column. Empty rows collapse.
func (m *Menu) Keyboard() [][]message.InlineButton {
	m.mu.Lock()
	items := slices.Clone(m.items)
	m.mu.Unlock()

	slices.SortStableFunc(items, func(a, b *MenuItem) int {
		if c := cmp.Compare(a.Row, b.Row); c != 0 {
			return c
		}
		return cmp.Compare(a.Column, b.Column)
	})

	var rows [][]message.InlineButton
	for i, item := range items {
		if i == 0 || item.Row != items[i-1].Row {
			rows = append(rows, nil)
		}
		btn := message.InlineButton{Text: item.Text}
		if item.URL != "" {
			btn.URL = item.URL
		} else {
			btn.CallbackData = item.ID
		}
		rows[len(rows)-1] = append(rows[len(rows)-1], btn)
	}
	return rows
}

// Message renders the menu text and keyboard.
func (m *Menu) Message() message.Message {
	return message.Message{message.Text(m.Text), message.Markup(m.Keyboard())}
}

// MessageID returns the ID of the message showing the menu, once sent.
func (m *Menu) MessageID() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messageID
}

func (m *Menu) item(id string) *MenuItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, it := range m.items {
		if it.ID == id {
			return it
		}
	}
	return nil
}

// MenuManager routes callback queries to the menus that produced them.
type MenuManager struct {
	mu    sync.RWMutex
	menus map[string]*Menu // by item ID
	now   func() time.Time
}

// NewMenuManager creates an empty manager.
func NewMenuManager() *MenuManager {
	return &MenuManager{menus: make(map[string]*Menu), now: time.Now}
}

// Register makes menu answerable by session. messageID is the message the
// menu was sent in.
func (mm *MenuManager) Register(menu *Menu, session string, messageID int64) {
	menu.mu.Lock()
	menu.session = session
	menu.messageID = messageID
	menu.expires = mm.now().Add(menuTTL)
	ids := make([]string, 0, len(menu.items))
	for _, it := range menu.items {
		if it.URL == "" {
			ids = append(ids, it.ID)
		}
	}
	menu.mu.Unlock()

	mm.mu.Lock()
	defer mm.mu.Unlock()
	for _, id := range ids {
		mm.menus[id] = menu
	}
}

// Remove forgets menu.
func (mm *MenuManager) Remove(menu *Menu) {
	mm.mu.Lock()
	defer mm.mu.Unlock()
	for id, m := range mm.menus {
		if m == menu {
			delete(mm.menus, id)
		}
	}
}

// Len returns the number of routable buttons.
func (mm *MenuManager) Len() int {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return len(mm.menus)
}

// Handle runs the item bound to a callback query. It reports false when
// ev is not a press on a live menu opened by the same session.
func (mm *MenuManager) Handle(ctx context.Context, bot *Bot, ev *Event) (bool, error) {
	if ev.Kind != KindCallbackQuery {
		return false, nil
	}
	id := ev.CallbackQuery.Data

	mm.mu.RLock()
	menu, ok := mm.menus[id]
	mm.mu.RUnlock()
	if !ok {
		return false, nil
	}

	menu.mu.Lock()
	session, expires := menu.session, menu.expires
	menu.mu.Unlock()
	if session != ev.SessionID() || !mm.now().Before(expires) {
		return false, nil
	}

	item := menu.item(id)
	if item == nil || item.handler == nil {
		return false, nil
	}
	if err := item.handler(ctx, bot, ev); err != nil {
		return true, &MenuHandleFailed{Item: item.Text, Err: err}
	}
	return true, nil
}

// Sweep forgets expired menus and returns how many buttons were dropped.
func (mm *MenuManager) Sweep() int {
	now := mm.now()
	mm.mu.Lock()
	defer mm.mu.Unlock()
	n := 0
	for id, m := range mm.menus {
		m.mu.Lock()
		expired := !now.Before(m.expires)
		m.mu.Unlock()
		if expired {
			delete(mm.menus, id)
			n++
		}
	}
	return n
}
