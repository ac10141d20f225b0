// Package message defines the platform content model: a Message is an
// ordered list of Segments.
package message

// SegmentType discriminates the variants of Segment.
type SegmentType string

// Segment variants.
const (
	SegmentText      SegmentType = "text"
	SegmentPhoto     SegmentType = "photo"
	SegmentAudio     SegmentType = "audio"
	SegmentDocument  SegmentType = "document"
	SegmentVideo     SegmentType = "video"
	SegmentAnimation SegmentType = "animation"
	SegmentVoice     SegmentType = "voice"
	SegmentVideoNote SegmentType = "video_note"
	SegmentSticker   SegmentType = "sticker"
	SegmentMarkup    SegmentType = "markup"

	// SegmentAt mentions a user.
	SegmentAt SegmentType = "at"
	// SegmentReply quotes an earlier message.
	SegmentReply SegmentType = "reply"
	// SegmentCallbackQuery carries the data of an inline button press.
	SegmentCallbackQuery SegmentType = "callback_query"
)

var knownTypes = map[SegmentType]bool{
	SegmentText: true, SegmentPhoto: true, SegmentAudio: true, SegmentDocument: true,
	SegmentVideo: true, SegmentAnimation: true, SegmentVoice: true, SegmentVideoNote: true,
	SegmentSticker: true, SegmentMarkup: true, SegmentAt: true, SegmentReply: true,
	SegmentCallbackQuery: true,
}

// Known reports whether t is a recognized segment type.
func (t SegmentType) Known() bool { return knownTypes[t] }

// IsMedia reports whether t is a displayable media type that can be
// part of an album.
func (t SegmentType) IsMedia() bool {
	switch t {
	case SegmentPhoto, SegmentAudio, SegmentDocument, SegmentVideo,
		SegmentAnimation, SegmentVoice, SegmentVideoNote:
		return true
	}
	return false
}

// CarriesFile reports whether segments of type t reference a file.
func (t SegmentType) CarriesFile() bool {
	return t.IsMedia() || t == SegmentSticker
}

// InlineButton is one button of an inline keyboard. Exactly one of
// CallbackData and URL should be set.
type InlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}
