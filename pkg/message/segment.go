package message

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
)

// Segment is a flat union representing one piece of a message. Type
// decides which fields are meaningful.
type Segment struct {
	Type SegmentType

	// Text is the body of text segments, the data of callback_query
	// segments and the display name of at segments.
	Text string

	// File, Caption, MIMEType and Emoji describe media and sticker segments.
	File     *File
	Caption  string
	MIMEType string
	Emoji    string

	// Keyboard holds the rows of a markup segment.
	Keyboard [][]InlineButton

	// UserID and Username identify the target of an at segment.
	UserID   int64
	Username string

	// MessageID is the quoted message of a reply segment.
	MessageID int64
}

// Text creates a text segment.
func Text(s string) Segment {
	return Segment{Type: SegmentText, Text: s}
}

// Media creates a media or sticker segment of type t.
func Media(t SegmentType, f File) Segment {
	return Segment{Type: t, File: &f}
}

// Photo creates a photo segment.
func Photo(f File) Segment { return Media(SegmentPhoto, f) }

// Document creates a document segment.
func Document(f File) Segment { return Media(SegmentDocument, f) }

// Video creates a video segment.
func Video(f File) Segment { return Media(SegmentVideo, f) }

// Audio creates an audio segment.
func Audio(f File) Segment { return Media(SegmentAudio, f) }

// Voice creates a voice note segment.
func Voice(f File) Segment { return Media(SegmentVoice, f) }

// Sticker creates a sticker segment.
func Sticker(f File) Segment { return Media(SegmentSticker, f) }

// WithCaption returns a copy of s with the caption set.
func (s Segment) WithCaption(caption string) Segment {
	s.Caption = caption
	return s
}

// Markup creates an inline keyboard segment.
func Markup(rows [][]InlineButton) Segment {
	return Segment{Type: SegmentMarkup, Keyboard: rows}
}

// At mentions a user by ID. name is shown when the user has no username.
func At(userID int64, name string) Segment {
	return Segment{Type: SegmentAt, UserID: userID, Text: name}
}

// AtUsername mentions a user by username, without the leading "@".
func AtUsername(username string) Segment {
	return Segment{Type: SegmentAt, Username: username}
}

// Reply quotes the message with the given ID.
func Reply(messageID int64) Segment {
	return Segment{Type: SegmentReply, MessageID: messageID}
}

// CallbackQuery wraps the data of an inline button press.
func CallbackQuery(data string) Segment {
	return Segment{Type: SegmentCallbackQuery, Text: data}
}

// String returns the textual content of the segment: the body of text
// segments, the data of callback_query segments, "" otherwise.
func (s Segment) String() string {
	switch s.Type {
	case SegmentText, SegmentCallbackQuery:
		return s.Text
	default:
		return ""
	}
}

// IsText reports whether s is a text segment.
func (s Segment) IsText() bool { return s.Type == SegmentText }

// segmentData is the "data" object of the wire form.
type segmentData struct {
	Text         string           `json:"text,omitempty"`
	File         string           `json:"file,omitempty"`
	FileName     string           `json:"file_name,omitempty"`
	FileUniqueID string           `json:"file_unique_id,omitempty"`
	Caption      string           `json:"caption,omitempty"`
	MIMEType     string           `json:"mime_type,omitempty"`
	Emoji        string           `json:"emoji,omitempty"`
	Keyboard     [][]InlineButton `json:"inline_keyboard,omitempty"`
	ID           string           `json:"id,omitempty"`
	Username     string           `json:"username,omitempty"`
	Data         string           `json:"data,omitempty"`
}

type wireSegment struct {
	Type SegmentType `json:"type"`
	Data segmentData `json:"data"`
}

// MarshalJSON encodes the segment as {"type": ..., "data": {...}}, keeping
// only the fields its type uses.
func (s Segment) MarshalJSON() ([]byte, error) {
	if !s.Type.Known() {
		return nil, fmt.Errorf("message: unknown segment type %q", s.Type)
	}
	w := wireSegment{Type: s.Type}
	switch {
	case s.Type == SegmentText:
		w.Data.Text = s.Text
	case s.Type == SegmentCallbackQuery:
		w.Data.Data = s.Text
	case s.Type.CarriesFile():
		if s.File != nil {
			w.Data.File = s.File.String()
			w.Data.FileName = s.File.Name
			w.Data.FileUniqueID = s.File.UniqueID
		}
		w.Data.Caption = s.Caption
		w.Data.MIMEType = s.MIMEType
		w.Data.Emoji = s.Emoji
	case s.Type == SegmentMarkup:
		w.Data.Keyboard = s.Keyboard
	case s.Type == SegmentAt:
		if s.UserID != 0 {
			w.Data.ID = strconv.FormatInt(s.UserID, 10)
		}
		w.Data.Username = s.Username
		w.Data.Text = s.Text
	case s.Type == SegmentReply:
		w.Data.ID = strconv.FormatInt(s.MessageID, 10)
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the wire form produced by MarshalJSON.
func (s *Segment) UnmarshalJSON(b []byte) error {
	var w wireSegment
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	if !w.Type.Known() {
		return fmt.Errorf("message: unknown segment type %q", w.Type)
	}

	seg := Segment{Type: w.Type}
	switch {
	case w.Type == SegmentText:
		seg.Text = w.Data.Text
	case w.Type == SegmentCallbackQuery:
		seg.Text = w.Data.Data
	case w.Type.CarriesFile():
		if w.Data.File == "" {
			return fmt.Errorf("message: %s segment without file", w.Type)
		}
		f := ParseFile(w.Data.File)
		if w.Data.FileName != "" {
			f.Name = w.Data.FileName
		}
		f.UniqueID = w.Data.FileUniqueID
		seg.File = &f
		seg.Caption = w.Data.Caption
		seg.MIMEType = w.Data.MIMEType
		seg.Emoji = w.Data.Emoji
	case w.Type == SegmentMarkup:
		seg.Keyboard = w.Data.Keyboard
	case w.Type == SegmentAt:
		if w.Data.ID == "" && w.Data.Username == "" {
			return errors.New("message: at segment needs an id or a username")
		}
		if w.Data.ID != "" {
			id, err := strconv.ParseInt(w.Data.ID, 10, 64)
			if err != nil {
				return fmt.Errorf("message: at segment id: %w", err)
			}
			seg.UserID = id
		}
		seg.Username = w.Data.Username
		seg.Text = w.Data.Text
	case w.Type == SegmentReply:
		id, err := strconv.ParseInt(w.Data.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("message: reply segment id: %w", err)
		}
		seg.MessageID = id
	}
	*s = seg
	return nil
}
