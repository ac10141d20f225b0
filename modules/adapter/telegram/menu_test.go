package telegram

import (
	"context"
	"errors"
	"testing"
	"time"
)

const menuSession = "group_-100_7"

// pressUpdate is a callback from user 7 in chat -100 pressing data.
func pressUpdate(data string) string {
	return `{"update_id":8,"callback_query":{"id":"cb","from":{"id":7},"chat_instance":"i","data":"` + data + `","message":{"message_id":20,"chat":{"id":-100,"type":"group"},"date":1}}}`
}

func TestMenu_Keyboard(t *testing.T) {
	m := NewMenu("Pick")
	c := m.Add("C", 1, 0, nil)
	b := m.Add("B", 0, 1, nil)
	a := m.Add("A", 0, 0, nil)
	m.AddURL("Docs", "https://example.com", 1, 1)

	rows := m.Keyboard()
	if len(rows) != 2 || len(rows[0]) != 2 || len(rows[1]) != 2 {
		t.Fatalf("rows = %+v", rows)
	}
	if rows[0][0].CallbackData != a.ID || rows[0][1].CallbackData != b.ID || rows[1][0].CallbackData != c.ID {
		t.Errorf("layout = %+v", rows)
	}
	if rows[1][1].URL != "https://example.com" || rows[1][1].CallbackData != "" {
		t.Errorf("url button = %+v", rows[1][1])
	}

	msg := m.Message()
	if len(msg) != 2 || msg[0].Text != "Pick" {
		t.Errorf("Message() = %+v", msg)
	}
}

func TestMenuManager_Handle(t *testing.T) {
	var pressed []string
	m := NewMenu("Pick")
	yes := m.Add("Yes", 0, 0, func(_ context.Context, _ *Bot, ev *Event) error {
		pressed = append(pressed, ev.CallbackQuery.Data)
		return nil
	})
	failing := m.Add("Boom", 0, 1, func(context.Context, *Bot, *Event) error {
		return errors.New("boom")
	})
	link := m.AddURL("Docs", "https://example.com", 1, 0)

	clock := newFakeClock()
	mm := NewMenuManager()
	mm.now = clock.Now
	mm.Register(m, menuSession, 20)

	if mm.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (url buttons are not routed)", mm.Len())
	}

	handled, err := mm.Handle(context.Background(), nil, testEvent(t, pressUpdate(yes.ID)))
	if !handled || err != nil {
		t.Fatalf("Handle(yes) = %v, %v", handled, err)
	}
	if len(pressed) != 1 || pressed[0] != yes.ID {
		t.Errorf("pressed = %v", pressed)
	}

	handled, err = mm.Handle(context.Background(), nil, testEvent(t, pressUpdate(failing.ID)))
	var mhf *MenuHandleFailed
	if !handled || !errors.As(err, &mhf) || mhf.Item != "Boom" {
		t.Errorf("Handle(boom) = %v, %v", handled, err)
	}

	for name, raw := range map[string]string{
		"unknown data": pressUpdate("nope"),
		"url button":   pressUpdate(link.ID),
		"message":      privateUpdate,
		"other user":   `{"update_id":9,"callback_query":{"id":"cb","from":{"id":8},"chat_instance":"i","data":"` + yes.ID + `","message":{"message_id":20,"chat":{"id":-100,"type":"group"},"date":1}}}`,
	} {
		if handled, _ := mm.Handle(context.Background(), nil, testEvent(t, raw)); handled {
			t.Errorf("%s: handled", name)
		}
	}

	clock.Advance(time.Hour)
	if handled, _ := mm.Handle(context.Background(), nil, testEvent(t, pressUpdate(yes.ID))); handled {
		t.Error("expired menu handled a press")
	}
	if n := mm.Sweep(); n != 2 {
		t.Errorf("Sweep() = %d, want 2", n)
	}
	if mm.Len() != 0 {
		t.Errorf("Len() = %d after sweep", mm.Len())
	}
}

func TestMenuManager_Remove(t *testing.T) {
	mm := NewMenuManager()
	keep, drop := NewMenu("keep"), NewMenu("drop")
	keep.Add("a", 0, 0, nil)
	drop.Add("b", 0, 0, nil)
	drop.Add("c", 0, 1, nil)
	mm.Register(keep, menuSession, 1)
	mm.Register(drop, menuSession, 2)

	mm.Remove(drop)
	if mm.Len() != 1 {
		t.Errorf("Len() = %d, want 1", mm.Len())
	}
}
