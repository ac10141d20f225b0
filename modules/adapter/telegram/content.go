package telegram

import (
	"strings"

	"github.com/flemzord/tgbridge/pkg/message"
)

// contentOf extracts the primary segment of m. When m carries nothing
// recognizable and is a reply, the replied-to message is tried instead.
// A message with no content at all yields a single empty text segment.
func contentOf(m *Message) message.Message {
	for cur := m; cur != nil; cur = cur.ReplyToMessage {
		if seg, ok := primarySegment(cur); ok {
			return message.Message{seg}
		}
	}
	return message.Message{message.Text("")}
}

// primarySegment checks the content fields in a fixed priority order.
func primarySegment(m *Message) (message.Segment, bool) {
	switch {
	case m.Text != "":
		return message.Text(m.Text), true
	case len(m.Photo) > 0:
		p, _ := m.Photo.Largest()
		return fileSegment(message.SegmentPhoto, p.FileID, p.FileUniqueID, "", "", m.Caption), true
	case m.Document != nil:
		d := m.Document
		return fileSegment(message.SegmentDocument, d.FileID, d.FileUniqueID, d.FileName, d.MIMEType, m.Caption), true
	case m.Sticker != nil:
		seg := fileSegment(message.SegmentSticker, m.Sticker.FileID, m.Sticker.FileUniqueID, "", "", "")
		seg.Emoji = m.Sticker.Emoji
		return seg, true
	case m.Voice != nil:
		v := m.Voice
		return fileSegment(message.SegmentVoice, v.FileID, v.FileUniqueID, "", v.MIMEType, m.Caption), true
	case m.Audio != nil:
		a := m.Audio
		return fileSegment(message.SegmentAudio, a.FileID, a.FileUniqueID, a.FileName, a.MIMEType, m.Caption), true
	case m.Animation != nil:
		a := m.Animation
		return fileSegment(message.SegmentAnimation, a.FileID, a.FileUniqueID, a.FileName, a.MIMEType, m.Caption), true
	case m.Video != nil:
		v := m.Video
		return fileSegment(message.SegmentVideo, v.FileID, v.FileUniqueID, v.FileName, v.MIMEType, m.Caption), true
	case m.VideoNote != nil:
		v := m.VideoNote
		return fileSegment(message.SegmentVideoNote, v.FileID, v.FileUniqueID, "", "", ""), true
	}
	return message.Segment{}, false
}

func fileSegment(t message.SegmentType, fileID, uniqueID, name, mime, caption string) message.Segment {
	f := message.RemoteFile(fileID)
	f.UniqueID = uniqueID
	f.Name = name
	seg := message.Media(t, f)
	seg.MIMEType = mime
	seg.Caption = caption
	return seg
}

// stripMention removes the first "@username" from text, matching
// case-insensitively and only at a word boundary, and trims the result.
func stripMention(text, username string) (string, bool) {
	if username == "" {
		return text, false
	}
	mention := "@" + username
	for i := 0; i+len(mention) <= len(text); i++ {
		if text[i] != '@' || !strings.EqualFold(text[i:i+len(mention)], mention) {
			continue
		}
		end := i + len(mention)
		if end < len(text) && isUsernameByte(text[end]) {
			continue
		}
		return strings.TrimSpace(text[:i] + text[end:]), true
	}
	return text, false
}

func isUsernameByte(b byte) bool {
	return b == '_' || (b >= '0' && b <= '9') || (b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z')
}
