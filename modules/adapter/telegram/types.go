package telegram

import "encoding/json"

// Update is one incoming update. Fields the bridge does not classify are
// kept raw.
type Update struct {
	UpdateID           int64           `json:"update_id"`
	Message            *Message        `json:"message,omitempty"`
	EditedMessage      *Message        `json:"edited_message,omitempty"`
	ChannelPost        *Message        `json:"channel_post,omitempty"`
	EditedChannelPost  *Message        `json:"edited_channel_post,omitempty"`
	CallbackQuery      *CallbackQuery  `json:"callback_query,omitempty"`
	InlineQuery        json.RawMessage `json:"inline_query,omitempty"`
	ChosenInlineResult json.RawMessage `json:"chosen_inline_result,omitempty"`
	MyChatMember       json.RawMessage `json:"my_chat_member,omitempty"`
	ChatMember         json.RawMessage `json:"chat_member,omitempty"`
	ChatJoinRequest    json.RawMessage `json:"chat_join_request,omitempty"`
}

// Message is a Telegram message.
type Message struct {
	MessageID       int64           `json:"message_id"`
	MessageThreadID int64           `json:"message_thread_id,omitempty"`
	From            *User           `json:"from,omitempty"`
	Chat            Chat            `json:"chat"`
	Date            int64           `json:"date"`
	ReplyToMessage  *Message        `json:"reply_to_message,omitempty"`
	Text            string          `json:"text,omitempty"`
	Entities        []MessageEntity `json:"entities,omitempty"`
	Caption         string          `json:"caption,omitempty"`
	CaptionEntities []MessageEntity `json:"caption_entities,omitempty"`

	Photo     PhotoSizes `json:"photo,omitempty"`
	Audio     *Audio     `json:"audio,omitempty"`
	Document  *Document  `json:"document,omitempty"`
	Animation *Animation `json:"animation,omitempty"`
	Video     *Video     `json:"video,omitempty"`
	VideoNote *VideoNote `json:"video_note,omitempty"`
	Voice     *Voice     `json:"voice,omitempty"`
	Sticker   *Sticker   `json:"sticker,omitempty"`
	Location  *Location  `json:"location,omitempty"`

	NewChatMembers   []User     `json:"new_chat_members,omitempty"`
	LeftChatMember   *User      `json:"left_chat_member,omitempty"`
	NewChatTitle     string     `json:"new_chat_title,omitempty"`
	NewChatPhoto     PhotoSizes `json:"new_chat_photo,omitempty"`
	DeleteChatPhoto  bool       `json:"delete_chat_photo,omitempty"`
	VideoChatStarted *struct{}  `json:"video_chat_started,omitempty"`
	VideoChatEnded   *ChatEnded `json:"video_chat_ended,omitempty"`
	// Older Bot API versions used the voice_chat_* names.
	VoiceChatStarted *struct{}  `json:"voice_chat_started,omitempty"`
	VoiceChatEnded   *ChatEnded `json:"voice_chat_ended,omitempty"`

	ReplyMarkup *InlineKeyboardMarkup `json:"reply_markup,omitempty"`
}

// ChatEnded is the service payload of an ended video chat.
type ChatEnded struct {
	Duration int `json:"duration"`
}

// Chat types.
const (
	ChatPrivate    = "private"
	ChatGroup      = "group"
	ChatSupergroup = "supergroup"
	ChatChannel    = "channel"
)

// Chat is a Telegram chat.
type Chat struct {
	ID        int64  `json:"id"`
	Type      string `json:"type"`
	Title     string `json:"title,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
}

// IsGroup reports whether the chat is a group or a supergroup.
func (c Chat) IsGroup() bool {
	return c.Type == ChatGroup || c.Type == ChatSupergroup
}

// User is a Telegram user or bot.
type User struct {
	ID        int64  `json:"id"`
	IsBot     bool   `json:"is_bot"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// DisplayName returns the first and last name joined by a space.
func (u User) DisplayName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// MessageEntity marks a span of text (mention, URL, command...).
// Offset and Length count UTF-16 code units.
type MessageEntity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
	URL    string `json:"url,omitempty"`
	User   *User  `json:"user,omitempty"`
}

// CallbackQuery is an inline keyboard button press.
type CallbackQuery struct {
	ID              string   `json:"id"`
	From            *User    `json:"from,omitempty"`
	Message         *Message `json:"message,omitempty"`
	InlineMessageID string   `json:"inline_message_id,omitempty"`
	ChatInstance    string   `json:"chat_instance"`
	Data            string   `json:"data,omitempty"`
}

// FileRef is anything that identifies a file stored by Telegram.
type FileRef interface {
	TelegramFileID() string
}

// FileID is a bare file identifier.
type FileID string

// TelegramFileID implements FileRef.
func (id FileID) TelegramFileID() string { return string(id) }

// PhotoSize is one resolution of a photo.
type PhotoSize struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// TelegramFileID implements FileRef.
func (p PhotoSize) TelegramFileID() string { return p.FileID }

// PhotoSizes lists the resolutions of one photo, smallest first.
type PhotoSizes []PhotoSize

// Largest returns the last, highest resolution size.
func (ps PhotoSizes) Largest() (PhotoSize, bool) {
	if len(ps) == 0 {
		return PhotoSize{}, false
	}
	return ps[len(ps)-1], true
}

// TelegramFileID implements FileRef with the largest size.
func (ps PhotoSizes) TelegramFileID() string {
	p, _ := ps.Largest()
	return p.FileID
}

// Audio is a music file.
type Audio struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Duration     int    `json:"duration"`
	Performer    string `json:"performer,omitempty"`
	Title        string `json:"title,omitempty"`
	FileName     string `json:"file_name,omitempty"`
	MIMEType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// TelegramFileID implements FileRef.
func (a Audio) TelegramFileID() string { return a.FileID }

// Document is a general file.
type Document struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileName     string `json:"file_name,omitempty"`
	MIMEType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// TelegramFileID implements FileRef.
func (d Document) TelegramFileID() string { return d.FileID }

// Animation is a GIF or a soundless H.264 video.
type Animation struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     int    `json:"duration"`
	FileName     string `json:"file_name,omitempty"`
	MIMEType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// TelegramFileID implements FileRef.
func (a Animation) TelegramFileID() string { return a.FileID }

// Video is a video file.
type Video struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Duration     int    `json:"duration"`
	FileName     string `json:"file_name,omitempty"`
	MIMEType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// TelegramFileID implements FileRef.
func (v Video) TelegramFileID() string { return v.FileID }

// VideoNote is a round video message.
type VideoNote struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Length       int    `json:"length"`
	Duration     int    `json:"duration"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// TelegramFileID implements FileRef.
func (v VideoNote) TelegramFileID() string { return v.FileID }

// Voice is a voice note.
type Voice struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Duration     int    `json:"duration"`
	MIMEType     string `json:"mime_type,omitempty"`
	FileSize     int64  `json:"file_size,omitempty"`
}

// TelegramFileID implements FileRef.
func (v Voice) TelegramFileID() string { return v.FileID }

// Sticker is a sticker.
type Sticker struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	Type         string `json:"type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	IsAnimated   bool   `json:"is_animated"`
	IsVideo      bool   `json:"is_video"`
	Emoji        string `json:"emoji,omitempty"`
	SetName      string `json:"set_name,omitempty"`
}

// TelegramFileID implements FileRef.
func (s Sticker) TelegramFileID() string { return s.FileID }

// Location is a point on the map.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// File is the result of getFile.
type File struct {
	FileID       string `json:"file_id"`
	FileUniqueID string `json:"file_unique_id"`
	FileSize     int64  `json:"file_size,omitempty"`
	FilePath     string `json:"file_path,omitempty"`
}

// InlineKeyboardMarkup is an inline keyboard attached to a message.
type InlineKeyboardMarkup struct {
	InlineKeyboard [][]InlineKeyboardButton `json:"inline_keyboard"`
}

// InlineKeyboardButton is one button of an inline keyboard.
type InlineKeyboardButton struct {
	Text         string `json:"text"`
	URL          string `json:"url,omitempty"`
	CallbackData string `json:"callback_data,omitempty"`
}

// apiResponse is the envelope of every Bot API reply.
type apiResponse struct {
	OK          bool                `json:"ok"`
	Result      json.RawMessage     `json:"result"`
	Description string              `json:"description,omitempty"`
	ErrorCode   int                 `json:"error_code,omitempty"`
	Parameters  *ResponseParameters `json:"parameters,omitempty"`
}

// ResponseParameters explains why a request failed.
type ResponseParameters struct {
	MigrateToChatID int64 `json:"migrate_to_chat_id,omitempty"`
	RetryAfter      int   `json:"retry_after,omitempty"`
}
