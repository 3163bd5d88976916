package processor

import (
	"mime"
	"path/filepath"
	"strings"
)

// DetectMIME derives a MIME type from name's extension (spec.md §4.9:
// "Dispatch is keyed by MIME type derived from extension and/or sniffed
// bytes"). Byte-sniffing is left to a future backend-specific extension
// point; extension-based detection covers the stand-in processor shipped
// here.
func DetectMIME(name string) string {
	ext := filepath.Ext(name)
	if ext == "" {
		return "application/octet-stream"
	}
	if t := mime.TypeByExtension(ext); t != "" {
		if i := strings.IndexByte(t, ';'); i >= 0 {
			t = t[:i]
		}
		return t
	}
	switch strings.ToLower(ext) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".mp4":
		return "video/mp4"
	case ".mov":
		return "video/quicktime"
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
