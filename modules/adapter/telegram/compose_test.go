package telegram

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/flemzord/tgbridge/pkg/message"
)

const (
	privateUpdate  = `{"update_id":1,"message":{"message_id":11,"from":{"id":42,"first_name":"Ann","username":"ann"},"chat":{"id":42,"type":"private"},"date":1,"text":"hi"}}`
	groupUpdate    = `{"update_id":2,"message":{"message_id":12,"from":{"id":7,"first_name":"Ann","username":"ann"},"chat":{"id":-100,"type":"supergroup"},"date":1,"text":"hi"}}`
	hiddenUpdate   = `{"update_id":3,"message":{"message_id":13,"from":{"id":7,"first_name":"Ann","last_name":"Lee"},"chat":{"id":-100,"type":"group"},"date":1,"text":"hi"}}`
	callbackUpdate = `{"update_id":4,"callback_query":{"id":"cb","from":{"id":7},"chat_instance":"i","data":"go","message":{"message_id":20,"chat":{"id":-100,"type":"group"},"date":1,"text":"menu","reply_to_message":{"message_id":19,"chat":{"id":-100,"type":"group"},"date":1,"text":"/menu"}}}}`
	inlineUpdate   = `{"update_id":5,"callback_query":{"id":"cb","from":{"id":7},"chat_instance":"i","inline_message_id":"x","data":"go"}}`
)

func testEvent(t *testing.T, raw string) *Event {
	t.Helper()
	return mustClassify(t, NewClassifier(testBotUser), raw)
}

func composeFor(t *testing.T, c *composer, raw string, opts SendOptions, msg message.Message) (*outbound, error) {
	t.Helper()
	tgt, err := targetOf(testEvent(t, raw), opts)
	if err != nil {
		return nil, err
	}
	return c.compose(context.Background(), tgt, msg)
}

func mustCompose(t *testing.T, c *composer, raw string, opts SendOptions, msg message.Message) *outbound {
	t.Helper()
	out, err := composeFor(t, c, raw, opts, msg)
	if err != nil {
		t.Fatalf("compose() error: %v", err)
	}
	t.Cleanup(func() { closeInputs(out.files) })
	return out
}

func TestCompose_Text(t *testing.T) {
	out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, message.Message{message.Text("hello "), message.Text("world")})
	if out.method != "sendMessage" {
		t.Fatalf("method = %s, want sendMessage", out.method)
	}
	if out.params["chat_id"] != int64(42) {
		t.Errorf("chat_id = %v, want 42", out.params["chat_id"])
	}
	if out.params["text"] != "hello world" {
		t.Errorf("text = %q, want %q", out.params["text"], "hello world")
	}
	if _, set := out.params["parse_mode"]; set {
		t.Error("parse_mode set without markdown")
	}
}

func TestCompose_AtSender(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantText     string
		wantEntities int
	}{
		{"private ignores at_sender", privateUpdate, "hello", 0},
		{"group with username", groupUpdate, "@ann hello", 0},
		{"group without username", hiddenUpdate, "Ann Lee hello", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustCompose(t, &composer{parseMode: parseModeMarkdown}, tt.raw, SendOptions{AtSender: true}, message.FromText("hello"))
			text := out.params["text"].(string)
			if text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if tt.wantEntities == 0 {
				return
			}
			entities, _ := out.params["entities"].([]MessageEntity)
			if len(entities) != 1 {
				t.Fatalf("entities = %+v, want one", entities)
			}
			e := entities[0]
			if e.Type != "text_mention" || e.Offset != 0 || e.Length != 7 || e.User == nil || e.User.ID != 7 {
				t.Errorf("entity = %+v", e)
			}
			if _, set := out.params["parse_mode"]; set {
				t.Error("parse_mode set alongside entities")
			}
		})
	}
}

func TestCompose_MentionOffsetsCountUTF16(t *testing.T) {
	msg := message.Message{message.Text("😀 "), message.At(5, "Zoé")}
	out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, msg)
	entities := out.params["entities"].([]MessageEntity)
	if len(entities) != 1 || entities[0].Offset != 3 || entities[0].Length != 3 {
		t.Errorf("entities = %+v, want offset 3 length 3", entities)
	}
}

func TestCompose_AtUsernameResolved(t *testing.T) {
	users := newMemUserStore()
	_ = users.Put(context.Background(), "bo", 88)

	seg := message.AtUsername("bo")
	seg.Text = "Bo"
	out := mustCompose(t, &composer{users: users}, privateUpdate, SendOptions{}, message.Message{seg, message.Text("ping")})
	if out.params["text"] != "Bo ping" {
		t.Errorf("text = %q", out.params["text"])
	}
	entities := out.params["entities"].([]MessageEntity)
	if entities[0].User.ID != 88 {
		t.Errorf("entity user = %d, want 88", entities[0].User.ID)
	}

	out = mustCompose(t, &composer{users: users}, privateUpdate, SendOptions{}, message.Message{message.AtUsername("nobody"), message.Text("ping")})
	if out.params["text"] != "@nobody ping" {
		t.Errorf("text = %q, want @nobody ping", out.params["text"])
	}
}

func TestCompose_Markdown(t *testing.T) {
	out := mustCompose(t, &composer{parseMode: parseModeMarkdown}, privateUpdate, SendOptions{}, message.FromText("**bold** <tag>"))
	if out.params["parse_mode"] != parseModeHTML {
		t.Errorf("parse_mode = %v, want HTML", out.params["parse_mode"])
	}
	if out.params["text"] != "<b>bold</b> &lt;tag&gt;" {
		t.Errorf("text = %q", out.params["text"])
	}
}

func TestCompose_SingleMediaMergesCaption(t *testing.T) {
	msg := message.Message{
		message.Text("at "),
		message.Photo(message.RemoteFile("https://example.com/p.png")).WithCaption("look "),
		message.Text("this"),
	}
	out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, msg)
	if out.method != "sendPhoto" {
		t.Fatalf("method = %s, want sendPhoto", out.method)
	}
	if out.params["photo"] != "https://example.com/p.png" {
		t.Errorf("photo = %v", out.params["photo"])
	}
	if out.params["caption"] != "look at this" {
		t.Errorf("caption = %q", out.params["caption"])
	}
	if len(out.files) != 0 {
		t.Errorf("files = %d, want 0", len(out.files))
	}
}

func TestCompose_MethodPerType(t *testing.T) {
	tests := []struct {
		seg    message.Segment
		method string
	}{
		{message.Audio(message.RemoteFile("a")), "sendAudio"},
		{message.Document(message.RemoteFile("d")), "sendDocument"},
		{message.Video(message.RemoteFile("v")), "sendVideo"},
		{message.Media(message.SegmentAnimation, message.RemoteFile("g")), "sendAnimation"},
		{message.Voice(message.RemoteFile("o")), "sendVoice"},
		{message.Media(message.SegmentVideoNote, message.RemoteFile("n")), "sendVideoNote"},
		{message.Sticker(message.RemoteFile("s")), "sendSticker"},
	}
	for _, tt := range tests {
		t.Run(tt.method, func(t *testing.T) {
			out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, message.Message{tt.seg})
			if out.method != tt.method {
				t.Errorf("method = %s, want %s", out.method, tt.method)
			}
			if out.params[string(tt.seg.Type)] != tt.seg.File.Ref {
				t.Errorf("%s = %v, want %s", tt.seg.Type, out.params[string(tt.seg.Type)], tt.seg.File.Ref)
			}
		})
	}
}

func TestCompose_StickerDropsCaption(t *testing.T) {
	msg := message.Message{message.Sticker(message.RemoteFile("s")), message.Text("caption?")}
	out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, msg)
	if _, set := out.params["caption"]; set {
		t.Errorf("caption = %v, want none", out.params["caption"])
	}
}

func TestCompose_MediaOutranksSticker(t *testing.T) {
	msg := message.Message{
		message.Sticker(message.RemoteFile("s")),
		message.Photo(message.RemoteFile("https://example.com/p.png")),
		message.Text("look"),
	}
	out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, msg)
	if out.method != "sendPhoto" {
		t.Fatalf("method = %s, want sendPhoto", out.method)
	}
	if out.params["photo"] != "https://example.com/p.png" {
		t.Errorf("photo = %v", out.params["photo"])
	}
	if out.params["caption"] != "look" {
		t.Errorf("caption = %v, want look", out.params["caption"])
	}
}

func TestCompose_Uploads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.pdf")
	if err := os.WriteFile(path, []byte("PDF"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		seg      message.Segment
		field    string
		wantName string
		wantData string
	}{
		{"local path", message.Document(message.LocalFile(path)), "document", "report.pdf", "PDF"},
		{"base64", message.Photo(message.ParseFile("base64://" + base64.StdEncoding.EncodeToString([]byte("PNG")))), "photo", "photo", "PNG"},
		{"bytes", message.Voice(message.BytesFile("note.ogg", []byte("OGG"))), "voice", "note.ogg", "OGG"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, message.Message{tt.seg})
			if len(out.files) != 1 {
				t.Fatalf("files = %d, want 1", len(out.files))
			}
			f := out.files[0]
			if f.Field != tt.field || f.Name != tt.wantName {
				t.Errorf("file = %s/%s, want %s/%s", f.Field, f.Name, tt.field, tt.wantName)
			}
			data, err := io.ReadAll(f.Reader)
			if err != nil || string(data) != tt.wantData {
				t.Errorf("data = %q (%v), want %q", data, err, tt.wantData)
			}
			if _, set := out.params[tt.field]; set {
				t.Errorf("%s param set alongside upload", tt.field)
			}
		})
	}
}

func TestCompose_BadBase64(t *testing.T) {
	_, err := composeFor(t, &composer{}, privateUpdate, SendOptions{}, message.Message{message.Photo(message.ParseFile("base64://!!!"))})
	if err == nil {
		t.Fatal("expected error")
	}
}

type fakePublisher struct {
	paths []string
	ttl   time.Duration
}

func (p *fakePublisher) Publish(path string, ttl time.Duration) string {
	p.paths = append(p.paths, path)
	p.ttl = ttl
	return "m1"
}

func TestCompose_MountMedia(t *testing.T) {
	pub := &fakePublisher{}
	c := &composer{media: pub, mediaBase: "https://bridge.example.com/", mediaTTL: time.Minute}
	out := mustCompose(t, c, privateUpdate, SendOptions{}, message.Message{message.Photo(message.LocalFile("/srv/p.png"))})

	if out.params["photo"] != "https://bridge.example.com/media/m1" {
		t.Errorf("photo = %v", out.params["photo"])
	}
	if len(out.files) != 0 {
		t.Error("mounted file was uploaded")
	}
	if len(pub.paths) != 1 || pub.paths[0] != "/srv/p.png" || pub.ttl != time.Minute {
		t.Errorf("published = %v ttl %v", pub.paths, pub.ttl)
	}
}

func TestCompose_MediaGroup(t *testing.T) {
	msg := message.Message{
		message.Photo(message.RemoteFile("https://example.com/1.png")),
		message.Text("album "),
		message.Photo(message.BytesFile("2.png", []byte("TWO"))),
		message.Text("caption"),
	}
	out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, msg)
	if out.method != "sendMediaGroup" || !out.group {
		t.Fatalf("method = %s group=%v", out.method, out.group)
	}
	items := out.params["media"].([]map[string]any)
	if len(items) != 2 {
		t.Fatalf("items = %d, want 2", len(items))
	}
	if items[0]["media"] != "https://example.com/1.png" || items[0]["caption"] != "album caption" {
		t.Errorf("item[0] = %v", items[0])
	}
	if items[1]["media"] != "attach://file1" || items[1]["type"] != "photo" {
		t.Errorf("item[1] = %v", items[1])
	}
	if _, set := items[1]["caption"]; set {
		t.Error("caption repeated on second item")
	}
	if len(out.files) != 1 || out.files[0].Field != "file1" {
		t.Errorf("files = %+v", out.files)
	}
}

func TestCompose_MediaGroupRejects(t *testing.T) {
	photo := message.Photo(message.RemoteFile("p"))
	tests := map[string]message.Segment{
		"sticker":  message.Sticker(message.RemoteFile("s")),
		"markup":   message.Markup([][]message.InlineButton{{{Text: "a", CallbackData: "b"}}}),
		"voice":    message.Voice(message.RemoteFile("v")),
		"callback": message.CallbackQuery("x"),
	}
	for name, seg := range tests {
		t.Run(name, func(t *testing.T) {
			msg := message.Message{photo, message.Video(message.RemoteFile("v")), seg}
			_, err := composeFor(t, &composer{}, privateUpdate, SendOptions{}, msg)
			var mns *MessageNotSupport
			if !errors.As(err, &mns) {
				t.Fatalf("error = %v, want *MessageNotSupport", err)
			}
			if mns.Type != seg.Type {
				t.Errorf("Type = %s, want %s", mns.Type, seg.Type)
			}
		})
	}
}

func TestCompose_Markup(t *testing.T) {
	msg := message.Message{
		message.Text("pick"),
		message.Markup([][]message.InlineButton{{{Text: "Yes", CallbackData: "y"}, {Text: "Docs", URL: "https://example.com"}}}),
	}
	out := mustCompose(t, &composer{}, privateUpdate, SendOptions{}, msg)
	kb, _ := out.params["reply_markup"].(InlineKeyboardMarkup)
	if len(kb.InlineKeyboard) != 1 || len(kb.InlineKeyboard[0]) != 2 {
		t.Fatalf("reply_markup = %+v", out.params["reply_markup"])
	}
	if kb.InlineKeyboard[0][0].CallbackData != "y" || kb.InlineKeyboard[0][1].URL != "https://example.com" {
		t.Errorf("buttons = %+v", kb.InlineKeyboard[0])
	}
}

func TestCompose_ReplyTarget(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		msg  message.Message
		opts SendOptions
		want any
	}{
		{"no reply", privateUpdate, message.FromText("x"), SendOptions{}, nil},
		{"reply to message", privateUpdate, message.FromText("x"), SendOptions{ReplyToOriginal: true}, int64(11)},
		{"reply from callback", callbackUpdate, message.FromText("x"), SendOptions{ReplyToOriginal: true}, int64(19)},
		{"explicit reply segment", privateUpdate, message.Message{message.Reply(5), message.Text("x")}, SendOptions{ReplyToOriginal: true}, int64(5)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := mustCompose(t, &composer{}, tt.raw, tt.opts, tt.msg)
			if got := out.params["reply_to_message_id"]; got != tt.want {
				t.Errorf("reply_to_message_id = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCompose_CallbackChat(t *testing.T) {
	out := mustCompose(t, &composer{}, callbackUpdate, SendOptions{}, message.FromText("x"))
	if out.params["chat_id"] != int64(-100) {
		t.Errorf("chat_id = %v, want -100", out.params["chat_id"])
	}
}

func TestCompose_Preconditions(t *testing.T) {
	if _, err := composeFor(t, &composer{}, inlineUpdate, SendOptions{}, message.FromText("x")); !errors.Is(err, ErrNoChat) {
		t.Errorf("inline callback: error = %v, want ErrNoChat", err)
	}
	if _, err := composeFor(t, &composer{}, privateUpdate, SendOptions{}, nil); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("empty: error = %v, want ErrEmptyMessage", err)
	}
	markupOnly := message.Message{message.Markup([][]message.InlineButton{{{Text: "a", CallbackData: "b"}}})}
	if _, err := composeFor(t, &composer{}, privateUpdate, SendOptions{}, markupOnly); !errors.Is(err, ErrEmptyMessage) {
		t.Errorf("markup only: error = %v, want ErrEmptyMessage", err)
	}
}
