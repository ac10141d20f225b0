package message

import "strings"

// Message is an ordered sequence of segments.
type Message []Segment

// FromText builds a message holding a single text segment.
func FromText(s string) Message {
	return Message{Text(s)}
}

// Plaintext concatenates the textual content of every segment.
func (m Message) Plaintext() string {
	var b strings.Builder
	for _, seg := range m {
		b.WriteString(seg.String())
	}
	return b.String()
}

// String implements fmt.Stringer.
func (m Message) String() string { return m.Plaintext() }

// Append returns m with segs added at the end.
func (m Message) Append(segs ...Segment) Message {
	return append(m, segs...)
}

// OfType returns the segments of type t, in order.
func (m Message) OfType(t SegmentType) []Segment {
	var out []Segment
	for _, seg := range m {
		if seg.Type == t {
			out = append(out, seg)
		}
	}
	return out
}

// MediaCount returns the number of displayable media segments.
func (m Message) MediaCount() int {
	n := 0
	for _, seg := range m {
		if seg.Type.IsMedia() {
			n++
		}
	}
	return n
}

// IsEmpty reports whether m has no segments.
func (m Message) IsEmpty() bool { return len(m) == 0 }
