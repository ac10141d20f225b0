package telegram

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf16"

	"github.com/flemzord/tgbridge/pkg/message"
)

// SendOptions adjusts how a reply is delivered.
type SendOptions struct {
	// AtSender mentions the sender in front of text sent to a group.
	AtSender bool
	// ReplyToOriginal quotes the message that triggered the event.
	ReplyToOriginal bool
}

// MediaPublisher exposes a local file under a public URL path segment.
type MediaPublisher interface {
	Publish(path string, ttl time.Duration) string
}

// target is where and how a composed message is delivered.
type target struct {
	chatID  int64
	isGroup bool
	sender  User
	replyTo int64
}

func targetOf(ev *Event, opts SendOptions) (target, error) {
	chat := ev.Chat()
	if chat == nil {
		return target{}, ErrNoChat
	}
	t := target{chatID: chat.ID, isGroup: chat.IsGroup()}
	if opts.AtSender {
		t.sender = ev.Sender()
	}
	if opts.ReplyToOriginal {
		t.replyTo = ev.ReplyTarget()
	}
	return t, nil
}

// outbound is one composed Bot API call.
type outbound struct {
	method string
	params map[string]any
	files  []InputFile
	// group is set for sendMediaGroup, whose result is a message list.
	group bool
}

// composer turns content segments into Bot API calls.
type composer struct {
	parseMode string
	media     MediaPublisher
	mediaBase string
	mediaTTL  time.Duration
	users     UserStore
}

// compose builds the call delivering msg to t. Files opened for upload are
// closed on error; on success they belong to the caller.
func (c *composer) compose(ctx context.Context, t target, msg message.Message) (out *outbound, err error) {
	if msg.IsEmpty() {
		return nil, ErrEmptyMessage
	}
	out = &outbound{params: map[string]any{"chat_id": t.chatID}}
	defer func() {
		if err != nil {
			closeInputs(out.files)
			out = nil
		}
	}()

	var keyboard [][]InlineKeyboardButton
	for _, seg := range msg {
		switch seg.Type {
		case message.SegmentReply:
			t.replyTo = seg.MessageID
		case message.SegmentMarkup:
			keyboard = append(keyboard, keyboardRows(seg.Keyboard)...)
		}
	}
	if t.replyTo != 0 {
		out.params["reply_to_message_id"] = t.replyTo
	}

	if msg.MediaCount() > 1 {
		return out, c.composeGroup(out, msg)
	}

	if len(keyboard) > 0 {
		out.params["reply_markup"] = InlineKeyboardMarkup{InlineKeyboard: keyboard}
	}

	core, hasFile := coreSegment(msg)
	body := &textBuilder{}
	if !hasFile && t.isGroup && t.sender.ID != 0 {
		body.mention(t.sender.ID, t.sender.Username, t.sender.DisplayName())
	}
	if hasFile {
		body.text(core.Caption)
	}
	for _, seg := range msg {
		switch seg.Type {
		case message.SegmentText:
			body.text(seg.Text)
		case message.SegmentAt:
			c.addMention(ctx, body, seg)
		}
	}

	if !hasFile {
		if body.empty() {
			return out, ErrEmptyMessage
		}
		out.method = "sendMessage"
		c.setText(out.params, "text", "entities", body)
		return out, nil
	}

	field := string(core.Type)
	out.method = MethodName("send_" + field)
	ref, upload, err := c.resolveFile(core.File, field)
	if err != nil {
		return out, err
	}
	if upload != nil {
		out.files = append(out.files, *upload)
	} else {
		out.params[field] = ref
	}

	// Stickers and round videos take no caption.
	if core.Type != message.SegmentSticker && core.Type != message.SegmentVideoNote && !body.empty() {
		c.setText(out.params, "caption", "caption_entities", body)
	}
	return out, nil
}

// composeGroup fills out as a sendMediaGroup call. Text segments become
// the caption of the first item.
func (c *composer) composeGroup(out *outbound, msg message.Message) error {
	out.method = "sendMediaGroup"
	out.group = true

	var (
		items   []map[string]any
		caption strings.Builder
	)
	for _, seg := range msg {
		switch seg.Type {
		case message.SegmentText:
			caption.WriteString(seg.Text)
			continue
		case message.SegmentReply:
			continue
		case message.SegmentPhoto, message.SegmentVideo, message.SegmentAudio, message.SegmentDocument:
		default:
			return &MessageNotSupport{Type: seg.Type}
		}

		field := "file" + strconv.Itoa(len(items))
		ref, upload, err := c.resolveFile(seg.File, field)
		if err != nil {
			return err
		}
		if upload != nil {
			out.files = append(out.files, *upload)
			ref = "attach://" + field
		}
		item := map[string]any{"type": string(seg.Type), "media": ref}
		if seg.Caption != "" {
			item["caption"] = seg.Caption
		}
		items = append(items, item)
	}

	if caption.Len() > 0 {
		first := items[0]
		if existing, ok := first["caption"].(string); ok {
			first["caption"] = existing + caption.String()
		} else {
			first["caption"] = caption.String()
		}
	}
	if c.parseMode == parseModeMarkdown {
		for _, item := range items {
			if s, ok := item["caption"].(string); ok {
				item["caption"] = RenderMarkdown(s)
				item["parse_mode"] = parseModeHTML
			}
		}
	}
	out.params["media"] = items
	return nil
}

// coreSegment picks the segment that anchors a single-message send: the
// first media segment, else the first other file-carrying segment (a
// sticker), else none.
func coreSegment(msg message.Message) (message.Segment, bool) {
	for _, seg := range msg {
		if seg.Type.IsMedia() {
			return seg, true
		}
	}
	for _, seg := range msg {
		if seg.Type.CarriesFile() {
			return seg, true
		}
	}
	return message.Segment{}, false
}

func keyboardRows(rows [][]message.InlineButton) [][]InlineKeyboardButton {
	out := make([][]InlineKeyboardButton, 0, len(rows))
	for _, row := range rows {
		buttons := make([]InlineKeyboardButton, 0, len(row))
		for _, b := range row {
			buttons = append(buttons, InlineKeyboardButton{Text: b.Text, URL: b.URL, CallbackData: b.CallbackData})
		}
		out = append(out, buttons)
	}
	return out
}

func (c *composer) addMention(ctx context.Context, b *textBuilder, seg message.Segment) {
	id := seg.UserID
	if id == 0 && seg.Username != "" && seg.Text != "" && c.users != nil {
		if resolved, err := c.users.Get(ctx, seg.Username); err == nil {
			id = resolved
		}
	}
	if id != 0 && seg.Text != "" {
		b.mention(id, "", seg.Text)
		return
	}
	b.mention(id, seg.Username, seg.Text)
}

// setText stores the built text. Markdown rendering is skipped when the
// text carries entities, whose offsets refer to the unrendered text.
func (c *composer) setText(params map[string]any, textKey, entitiesKey string, b *textBuilder) {
	text := b.String()
	switch {
	case len(b.entities) > 0:
		params[textKey] = text
		params[entitiesKey] = b.entities
	case c.parseMode == parseModeMarkdown:
		params[textKey] = RenderMarkdown(text)
		params["parse_mode"] = parseModeHTML
	default:
		params[textKey] = text
	}
}

// resolveFile returns either a reference Telegram can fetch itself or the
// upload carrying the bytes under field.
func (c *composer) resolveFile(f *message.File, field string) (string, *InputFile, error) {
	if f == nil {
		return "", nil, fmt.Errorf("telegram: %s segment without file", field)
	}
	name := f.Name
	if name == "" {
		name = field
	}

	switch f.Kind {
	case message.SourceRemote, "":
		return f.Ref, nil, nil
	case message.SourcePath:
		if c.media != nil && c.mediaBase != "" {
			id := c.media.Publish(f.Ref, c.mediaTTL)
			return strings.TrimRight(c.mediaBase, "/") + "/media/" + id, nil, nil
		}
		fh, err := os.Open(f.Ref)
		if err != nil {
			return "", nil, fmt.Errorf("telegram: open %s: %w", f.Ref, err)
		}
		return "", &InputFile{Field: field, Name: filepath.Base(f.Ref), Reader: fh}, nil
	case message.SourceBase64:
		data, err := base64.StdEncoding.DecodeString(f.Ref)
		if err != nil {
			return "", nil, fmt.Errorf("telegram: decode base64 %s: %w", field, err)
		}
		return "", &InputFile{Field: field, Name: name, Reader: bytes.NewReader(data)}, nil
	case message.SourceBytes:
		return "", &InputFile{Field: field, Name: name, Reader: bytes.NewReader(f.Data)}, nil
	default:
		return "", nil, fmt.Errorf("telegram: unknown file source %q", f.Kind)
	}
}

// textBuilder accumulates text and the entities pointing into it.
type textBuilder struct {
	sb       strings.Builder
	units    int
	entities []MessageEntity
}

func (b *textBuilder) text(s string) {
	b.sb.WriteString(s)
	b.units += utf16Len(s)
}

// mention writes "@username " when a username is known, otherwise the
// display name linked to the user through a text_mention entity.
func (b *textBuilder) mention(userID int64, username, name string) {
	if username != "" {
		b.text("@" + username + " ")
		return
	}
	if userID == 0 {
		return
	}
	if name == "" {
		name = strconv.FormatInt(userID, 10)
	}
	b.entities = append(b.entities, MessageEntity{
		Type:   "text_mention",
		Offset: b.units,
		Length: utf16Len(name),
		User:   &User{ID: userID, FirstName: name},
	})
	b.text(name + " ")
}

func (b *textBuilder) empty() bool { return b.sb.Len() == 0 }
func (b *textBuilder) String() string { return b.sb.String() }

func utf16Len(s string) int {
	return len(utf16.Encode([]rune(s)))
}
