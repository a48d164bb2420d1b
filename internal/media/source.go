package media

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/kikiluvv/recapcannon/pkg/util"
)

// Source is a user-supplied input file
type Source struct {
	Path     string
	Size     int64
	MimeType string
}

var extraTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".mkv":  "video/x-matroska",
	".avi":  "video/x-msvideo",
	".mp3":  "audio/mpeg",
	".m4a":  "audio/mp4",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".srt":  "application/x-subrip",
}

// Stat describes the file at path
func Stat(path string) (Source, error) {
	size, err := util.FileSize(path)
	if err != nil {
		return Source{}, fmt.Errorf("stat source: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	mt, ok := extraTypes[ext]
	if !ok {
		mt = mime.TypeByExtension(ext)
	}
	if mt == "" {
		mt = "application/octet-stream"
	}

	return Source{Path: path, Size: size, MimeType: mt}, nil
}

// IsVideo reports whether the source carries a video MIME type
func (s Source) IsVideo() bool {
	return strings.HasPrefix(s.MimeType, "video/")
}

// IsAudio reports whether the source carries an audio MIME type
func (s Source) IsAudio() bool {
	return strings.HasPrefix(s.MimeType, "audio/")
}
