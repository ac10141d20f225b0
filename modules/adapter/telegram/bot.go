package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/flemzord/tgbridge/internal/core"
	"github.com/flemzord/tgbridge/internal/handler"
	"github.com/flemzord/tgbridge/pkg/message"
)

// Platform is the name the bot reports to the host.
const Platform = "telegram"

var (
	_ core.Bot        = (*Bot)(nil)
	_ handler.Replier = (*Bot)(nil)
)

// Bot is the handle the host uses to act on Telegram.
type Bot struct {
	client   *Client
	self     User
	caches   *Caches
	users    UserStore
	menus    *MenuManager
	composer composer
	logger   *slog.Logger
}

// Platform implements core.Bot.
func (b *Bot) Platform() string { return Platform }

// SelfID implements core.Bot.
func (b *Bot) SelfID() string { return strconv.FormatInt(b.self.ID, 10) }

// Self returns the bot's own user, as reported by getMe.
func (b *Bot) Self() User { return b.self }

// Caches exposes the session and file link caches.
func (b *Bot) Caches() *Caches { return b.caches }

// Menus returns the menu router.
func (b *Bot) Menus() *MenuManager { return b.menus }

// CallAPI implements core.Bot. Parameters holding an InputFile are
// uploaded in a multipart call under their key; others go as JSON.
func (b *Bot) CallAPI(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	var files []InputFile
	plain := make(map[string]any, len(params))
	for k, v := range params {
		switch f := v.(type) {
		case InputFile:
			f.Field = k
			files = append(files, f)
		case *InputFile:
			f.Field = k
			files = append(files, *f)
		default:
			plain[k] = v
		}
	}
	if len(files) > 0 {
		return b.client.CallMultipartAPI(ctx, method, plain, files)
	}
	if len(plain) == 0 {
		return b.client.CallAPI(ctx, method, nil)
	}
	return b.client.CallAPI(ctx, method, plain)
}

// Send delivers msg to the chat ev happened in and returns the messages
// Telegram created: one, or several for an album.
func (b *Bot) Send(ctx context.Context, ev *Event, msg message.Message, opts SendOptions) ([]Message, error) {
	t, err := targetOf(ev, opts)
	if err != nil {
		return nil, err
	}
	sent, err := b.deliver(ctx, t, msg)
	if err != nil {
		return nil, err
	}
	if len(sent) > 0 {
		b.caches.sessions.Set(ev.SessionID(), sent[len(sent)-1].MessageID)
	}
	return sent, nil
}

// SendTo delivers msg to chatID.
func (b *Bot) SendTo(ctx context.Context, chatID int64, msg message.Message) ([]Message, error) {
	return b.deliver(ctx, target{chatID: chatID}, msg)
}

// Reply implements handler.Replier.
func (b *Bot) Reply(ctx context.Context, ev core.Event, msg message.Message) error {
	tev, ok := ev.(*Event)
	if !ok {
		return fmt.Errorf("telegram: cannot reply to %T", ev)
	}
	_, err := b.Send(ctx, tev, msg, SendOptions{})
	return err
}

func (b *Bot) deliver(ctx context.Context, t target, msg message.Message) ([]Message, error) {
	out, err := b.composer.compose(ctx, t, msg)
	if err != nil {
		return nil, err
	}

	var raw json.RawMessage
	if len(out.files) > 0 {
		raw, err = b.client.CallMultipartAPI(ctx, out.method, out.params, out.files)
	} else {
		raw, err = b.client.CallAPI(ctx, out.method, out.params)
	}
	if err != nil {
		return nil, err
	}

	if out.group {
		var msgs []Message
		if err := json.Unmarshal(raw, &msgs); err != nil {
			return nil, &NetworkError{Msg: "decode " + out.method + " result", Err: err}
		}
		return msgs, nil
	}
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, &NetworkError{Msg: "decode " + out.method + " result", Err: err}
	}
	return []Message{m}, nil
}

// DeleteMessage deletes a message.
func (b *Bot) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	_, err := b.client.CallAPI(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	})
	return err
}

// EditMessageText replaces the text, and the keyboard when one is given,
// of a message the bot sent.
func (b *Bot) EditMessageText(ctx context.Context, chatID, messageID int64, text string, keyboard [][]message.InlineButton) (*Message, error) {
	params := map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}
	if b.composer.parseMode == parseModeMarkdown {
		params["text"] = RenderMarkdown(text)
		params["parse_mode"] = parseModeHTML
	}
	if keyboard != nil {
		params["reply_markup"] = InlineKeyboardMarkup{InlineKeyboard: keyboardRows(keyboard)}
	}
	return do[*Message](ctx, b.client, "editMessageText", params)
}

// AnswerCallbackQuery acknowledges a button press, optionally showing text.
func (b *Bot) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	params := map[string]any{"callback_query_id": callbackQueryID}
	if text != "" {
		params["text"] = text
	}
	if showAlert {
		params["show_alert"] = true
	}
	_, err := b.client.CallAPI(ctx, "answerCallbackQuery", params)
	return err
}

// DeleteOriginalMessage deletes the message whose button produced ev.
func (b *Bot) DeleteOriginalMessage(ctx context.Context, ev *Event) error {
	if ev.Kind != KindCallbackQuery || ev.CallbackQuery.Message == nil {
		return ErrNoChat
	}
	m := ev.CallbackQuery.Message
	return b.DeleteMessage(ctx, m.Chat.ID, m.MessageID)
}

// GetFileDownloadLink returns a URL the file can be fetched from. Links
// are valid for about an hour and are cached for slightly less.
func (b *Bot) GetFileDownloadLink(ctx context.Context, ref FileRef) (string, error) {
	id := ref.TelegramFileID()
	if id == "" {
		return "", errors.New("telegram: empty file id")
	}
	if link, ok := b.caches.fileLinks.Get(id); ok {
		return link, nil
	}
	f, err := b.client.GetFile(ctx, id)
	if err != nil {
		return "", err
	}
	if f.FilePath == "" {
		return "", &ActionFailed{Description: "getFile returned no file_path"}
	}
	link := b.client.FileURL(f.FilePath)
	b.caches.fileLinks.Set(id, link)
	return link, nil
}

// DownloadFile returns the content of a file, going through the cached
// download link.
func (b *Bot) DownloadFile(ctx context.Context, ref FileRef) ([]byte, error) {
	link, err := b.GetFileDownloadLink(ctx, ref)
	if err != nil {
		return nil, err
	}
	return b.client.DownloadFile(ctx, link)
}

// ResolveUsername returns the ID of a user the bot has seen. The Bot API
// has no lookup by username.
func (b *Bot) ResolveUsername(ctx context.Context, username string) (int64, error) {
	if b.users == nil {
		return 0, ErrUnknownUser
	}
	return b.users.Get(ctx, username)
}

// SendMenu shows menu in reply to ev and routes presses on it back to
// the session of ev.
func (b *Bot) SendMenu(ctx context.Context, ev *Event, menu *Menu) error {
	sent, err := b.Send(ctx, ev, menu.Message(), SendOptions{})
	if err != nil {
		return err
	}
	var messageID int64
	if len(sent) > 0 {
		messageID = sent[0].MessageID
	}
	b.menus.Register(menu, ev.SessionID(), messageID)
	return nil
}

// observe records what an inbound event teaches: usernames and the last
// message of its session.
func (b *Bot) observe(ctx context.Context, ev *Event) {
	if id := ev.MessageID(); id != 0 && ev.Kind != KindCallbackQuery {
		b.caches.sessions.Set(ev.SessionID(), id)
	}
	if b.users == nil {
		return
	}
	users := append([]User{ev.Sender()}, ev.NewMembers()...)
	for _, u := range users {
		if u.Username == "" || u.ID == 0 {
			continue
		}
		if err := b.users.Put(ctx, u.Username, u.ID); err != nil {
			b.logger.Warn("recording username failed", "username", u.Username, "error", err)
		}
	}
}
