package telegram

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/pkg/message"
)

// EventKind is the closed set of events the classifier produces.
type EventKind int

// Event kinds.
const (
	KindPrivateMessage EventKind = iota + 1
	KindGroupMessage
	KindCallbackQuery
	KindNewChatMembers
	KindLeftChatMember
	KindNewChatTitle
	KindNewChatPhoto
	KindDeleteChatPhoto
	KindVideoChatStarted
	KindVideoChatEnded
)

var kindNames = map[EventKind]string{
	KindPrivateMessage:   "private_message",
	KindGroupMessage:     "group_message",
	KindCallbackQuery:    "callback_query",
	KindNewChatMembers:   "new_chat_members",
	KindLeftChatMember:   "left_chat_member",
	KindNewChatTitle:     "new_chat_title",
	KindNewChatPhoto:     "new_chat_photo",
	KindDeleteChatPhoto:  "delete_chat_photo",
	KindVideoChatStarted: "video_chat_started",
	KindVideoChatEnded:   "video_chat_ended",
}

func (k EventKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsNotice reports whether k is a group service event.
func (k EventKind) IsNotice() bool {
	return k >= KindNewChatMembers && k <= KindVideoChatEnded
}

// Event is a classified update. It is read-only once the classifier
// returns it; only its content is computed lazily.
type Event struct {
	Kind          EventKind
	UpdateID      int64
	Msg           *Message
	CallbackQuery *CallbackQuery
	Raw           json.RawMessage

	toMe bool

	contentOnce sync.Once
	content     message.Message
}

var _ core.Event = (*Event)(nil)

// Type returns "message", "notice" or "callback_query".
func (e *Event) Type() string {
	switch {
	case e.Kind == KindCallbackQuery:
		return "callback_query"
	case e.Kind.IsNotice():
		return "notice"
	default:
		return "message"
	}
}

// Name returns the fine-grained event name, e.g. "message.private" or
// "notice.new_chat_members".
func (e *Event) Name() string {
	switch {
	case e.Kind == KindCallbackQuery:
		return "callback_query"
	case e.Kind.IsNotice():
		return "notice." + e.Kind.String()
	default:
		return "message." + e.Msg.Chat.Type
	}
}

// Description is a one-line summary for logs.
func (e *Event) Description() string {
	switch {
	case e.Kind == KindCallbackQuery:
		return fmt.Sprintf("CallbackQuery %s from %d %q", e.CallbackQuery.ID, e.sender().ID, e.CallbackQuery.Data)
	case e.Kind.IsNotice():
		return fmt.Sprintf("Notice[%s] %d from %d", e.Kind, e.Msg.Chat.ID, e.sender().ID)
	default:
		return fmt.Sprintf("Message[%s] %d from %d %q", e.Msg.Chat.Type, e.Msg.Chat.ID, e.sender().ID, e.Message().Plaintext())
	}
}

// Plaintext returns the callback data of callback queries and the text of
// the content otherwise.
func (e *Event) Plaintext() string {
	if e.Kind == KindCallbackQuery {
		return e.CallbackQuery.Data
	}
	return e.Message().Plaintext()
}

// Message returns the event content, computed once.
func (e *Event) Message() message.Message {
	e.contentOnce.Do(func() {
		switch {
		case e.Kind == KindCallbackQuery:
			e.content = message.Message{message.CallbackQuery(e.CallbackQuery.Data)}
		case e.Msg != nil:
			e.content = contentOf(e.Msg)
		default:
			e.content = message.Message{}
		}
	})
	return e.content
}

// UserID returns the sender's ID in decimal.
func (e *Event) UserID() string {
	return strconv.FormatInt(e.sender().ID, 10)
}

// SessionID identifies a conversation: "<chat>_<user>" in private chats
// and "group_<chat>_<user>" in groups.
func (e *Event) SessionID() string {
	chat := e.Chat()
	user := e.sender().ID
	if chat == nil {
		return fmt.Sprintf("callback_%d", user)
	}
	if chat.Type == ChatPrivate {
		return fmt.Sprintf("%d_%d", chat.ID, user)
	}
	return fmt.Sprintf("group_%d_%d", chat.ID, user)
}

// IsToMe reports whether the event is addressed to the bot.
func (e *Event) IsToMe() bool { return e.toMe }

// Sender returns the user who caused the event.
func (e *Event) Sender() User { return e.sender() }

func (e *Event) sender() User {
	switch {
	case e.CallbackQuery != nil && e.CallbackQuery.From != nil:
		return *e.CallbackQuery.From
	case e.Msg != nil && e.Msg.From != nil:
		return *e.Msg.From
	default:
		return User{}
	}
}

// Chat returns the chat the event happened in. Callback queries on inline
// messages have none.
func (e *Event) Chat() *Chat {
	switch {
	case e.Msg != nil:
		return &e.Msg.Chat
	case e.CallbackQuery != nil && e.CallbackQuery.Message != nil:
		return &e.CallbackQuery.Message.Chat
	default:
		return nil
	}
}

// ChatID returns the chat ID, or 0 when there is no chat.
func (e *Event) ChatID() int64 {
	if c := e.Chat(); c != nil {
		return c.ID
	}
	return 0
}

// IsGroup reports whether the event happened in a group or supergroup.
func (e *Event) IsGroup() bool {
	c := e.Chat()
	return c != nil && c.IsGroup()
}

// MessageID returns the ID of the message the event carries: the message
// itself, or the one holding the pressed button.
func (e *Event) MessageID() int64 {
	switch {
	case e.Msg != nil:
		return e.Msg.MessageID
	case e.CallbackQuery != nil && e.CallbackQuery.Message != nil:
		return e.CallbackQuery.Message.MessageID
	default:
		return 0
	}
}

// ReplyTarget returns the message an answer to this event should quote:
// the message itself, or for callback queries the message the keyboard's
// message was replying to.
func (e *Event) ReplyTarget() int64 {
	switch {
	case e.Kind == KindCallbackQuery:
		if m := e.CallbackQuery.Message; m != nil && m.ReplyToMessage != nil {
			return m.ReplyToMessage.MessageID
		}
		return 0
	case e.Msg != nil:
		return e.Msg.MessageID
	default:
		return 0
	}
}

// NewMembers returns the users who joined, for new_chat_members notices.
func (e *Event) NewMembers() []User {
	if e.Msg == nil {
		return nil
	}
	return e.Msg.NewChatMembers
}

// LeftMember returns the user who left, for left_chat_member notices.
func (e *Event) LeftMember() *User {
	if e.Msg == nil {
		return nil
	}
	return e.Msg.LeftChatMember
}
