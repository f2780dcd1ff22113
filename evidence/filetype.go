package evidence

import (
	"path/filepath"
	"slices"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/flanksource/hse/models"
)

var (
	imageExtensions    = []string{".jpg", ".jpeg", ".png", ".gif", ".bmp", ".svg", ".webp"}
	documentExtensions = []string{".pdf", ".doc", ".docx", ".xls", ".xlsx", ".ppt", ".pptx", ".txt", ".csv"}
	videoExtensions    = []string{".mp4", ".avi", ".mov", ".wmv", ".flv", ".mkv"}
	audioExtensions    = []string{".mp3", ".wav", ".m4a", ".ogg"}
)

// AllowedExtensions is the upload allow-list.
var AllowedExtensions = slices.Concat(imageExtensions, documentExtensions, videoExtensions, audioExtensions)

func Extension(filename string) string {
	return strings.ToLower(filepath.Ext(filename))
}

func IsAllowed(filename string) bool {
	return slices.Contains(AllowedExtensions, Extension(filename))
}

// DetectFileType classifies by extension, falling back to sniffing the content.
func DetectFileType(filename string, content []byte) models.FileType {
	ext := Extension(filename)
	switch {
	case slices.Contains(imageExtensions, ext):
		return models.FileTypePhoto
	case slices.Contains(documentExtensions, ext):
		return models.FileTypeDocument
	case slices.Contains(videoExtensions, ext):
		return models.FileTypeVideo
	case slices.Contains(audioExtensions, ext):
		return models.FileTypeAudio
	}

	if len(content) == 0 {
		return models.FileTypeOther
	}

	mime := mimetype.Detect(content)
	for m := mime; m != nil; m = m.Parent() {
		switch {
		case strings.HasPrefix(m.String(), "image/"):
			return models.FileTypePhoto
		case strings.HasPrefix(m.String(), "video/"):
			return models.FileTypeVideo
		case strings.HasPrefix(m.String(), "audio/"):
			return models.FileTypeAudio
		case m.Is("application/pdf"):
			return models.FileTypeDocument
		}
	}
	return models.FileTypeOther
}
