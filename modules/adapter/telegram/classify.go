package telegram

import (
	"encoding/json"
	"strings"

	"github.com/flemzord/tgbridge/pkg/message"
)

// Classifier turns raw update JSON into Events.
type Classifier struct {
	self User
}

// NewClassifier creates a classifier for the bot identified by self.
func NewClassifier(self User) *Classifier {
	return &Classifier{self: self}
}

// Classify decodes raw and builds the matching Event. It returns
// ok=false with a nil error for updates sent by bots, which are dropped
// silently, and a *NotAcceptable for updates it cannot classify.
func (c *Classifier) Classify(raw []byte) (*Event, bool, error) {
	var u Update
	if err := json.Unmarshal(raw, &u); err != nil {
		return nil, false, &NotAcceptable{Reason: "malformed update", Err: err}
	}

	ev := &Event{UpdateID: u.UpdateID, Raw: json.RawMessage(raw)}

	switch {
	case u.CallbackQuery != nil:
		cb := u.CallbackQuery
		if cb.From == nil {
			return nil, false, &NotAcceptable{Reason: "callback_query without from"}
		}
		if cb.From.IsBot {
			return nil, false, nil
		}
		ev.Kind = KindCallbackQuery
		ev.CallbackQuery = cb

	case u.Message != nil:
		m := u.Message
		if m.From == nil {
			return nil, false, &NotAcceptable{Reason: "message without from"}
		}
		if m.From.IsBot {
			return nil, false, nil
		}
		kind, ok := messageKind(m)
		if !ok {
			return nil, false, &NotAcceptable{Reason: "unsupported chat type " + m.Chat.Type}
		}
		ev.Kind = kind
		ev.Msg = m

	default:
		return nil, false, &NotAcceptable{Reason: "update carries neither message nor callback_query"}
	}

	c.preProcess(ev)
	return ev, true, nil
}

// messageKind picks the event kind of a message. Group service messages
// are checked in a fixed order; the first field present wins.
func messageKind(m *Message) (EventKind, bool) {
	if m.Chat.Type == ChatPrivate {
		return KindPrivateMessage, true
	}
	if !strings.Contains(m.Chat.Type, "group") {
		return 0, false
	}
	switch {
	case m.NewChatMembers != nil:
		return KindNewChatMembers, true
	case m.LeftChatMember != nil:
		return KindLeftChatMember, true
	case m.NewChatTitle != "":
		return KindNewChatTitle, true
	case m.NewChatPhoto != nil:
		return KindNewChatPhoto, true
	case m.DeleteChatPhoto:
		return KindDeleteChatPhoto, true
	case m.VideoChatStarted != nil || m.VoiceChatStarted != nil:
		return KindVideoChatStarted, true
	case m.VideoChatEnded != nil || m.VoiceChatEnded != nil:
		return KindVideoChatEnded, true
	default:
		return KindGroupMessage, true
	}
}

// preProcess sets to_me. Private messages are always addressed to the
// bot. In groups, a mention of the bot is stripped from the text and
// marks the event, as does replying to one of the bot's messages.
func (c *Classifier) preProcess(ev *Event) {
	switch ev.Kind {
	case KindPrivateMessage:
		ev.toMe = true
	case KindGroupMessage:
		content := ev.Message()
		if ev.Msg.Text != "" && len(content) > 0 && content[0].IsText() {
			if stripped, ok := stripMention(content[0].Text, c.self.Username); ok {
				content[0] = message.Text(stripped)
				ev.toMe = true
			}
		}
		if r := ev.Msg.ReplyToMessage; r != nil && r.From != nil && c.self.ID != 0 && r.From.ID == c.self.ID {
			ev.toMe = true
		}
	}
}
