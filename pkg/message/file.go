package message

import (
	"encoding/base64"
	"path/filepath"
	"strings"
)

// SourceKind tells how the bytes of a File are obtained.
type SourceKind string

const (
	// SourceRemote is a URL or a platform file identifier, passed through.
	SourceRemote SourceKind = "remote"
	// SourcePath is a file on the local disk.
	SourcePath SourceKind = "path"
	// SourceBase64 is a payload embedded in base64.
	SourceBase64 SourceKind = "base64"
	// SourceBytes is an in-memory buffer.
	SourceBytes SourceKind = "bytes"
)

const (
	fileScheme   = "file://"
	base64Scheme = "base64://"
)

// File is the source of a media segment.
type File struct {
	Kind SourceKind
	// Ref holds the URL, file identifier, path or base64 text depending on Kind.
	Ref string
	// Data holds the payload of SourceBytes files.
	Data []byte
	// Name is the file name used for uploads.
	Name string
	// UniqueID is the platform's stable identifier of received files.
	UniqueID string
}

// ParseFile interprets s the way segment JSON encodes files:
// "file://" for local paths, "base64://" for embedded payloads and anything
// else as a remote reference.
func ParseFile(s string) File {
	switch {
	case strings.HasPrefix(s, fileScheme):
		p := strings.TrimPrefix(s, fileScheme)
		return File{Kind: SourcePath, Ref: p, Name: filepath.Base(p)}
	case strings.HasPrefix(s, base64Scheme):
		return File{Kind: SourceBase64, Ref: strings.TrimPrefix(s, base64Scheme)}
	default:
		return File{Kind: SourceRemote, Ref: s}
	}
}

// RemoteFile references a URL or an identifier the platform already knows.
func RemoteFile(ref string) File { return File{Kind: SourceRemote, Ref: ref} }

// LocalFile references a file on disk.
func LocalFile(path string) File {
	return File{Kind: SourcePath, Ref: path, Name: filepath.Base(path)}
}

// BytesFile wraps an in-memory payload.
func BytesFile(name string, data []byte) File {
	return File{Kind: SourceBytes, Data: data, Name: name}
}

// String returns the URI form used in segment JSON.
func (f File) String() string {
	switch f.Kind {
	case SourcePath:
		return fileScheme + f.Ref
	case SourceBase64:
		return base64Scheme + f.Ref
	case SourceBytes:
		return base64Scheme + base64.StdEncoding.EncodeToString(f.Data)
	default:
		return f.Ref
	}
}

// NeedsUpload reports whether the file bytes must be sent in the request body.
func (f File) NeedsUpload() bool {
	return f.Kind != SourceRemote
}
