package util

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// MediaKind classifies a candidate file by extension.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
)

var mediaKinds = map[string]MediaKind{
	".mp4":  MediaVideo,
	".mov":  MediaVideo,
	".jpg":  MediaImage,
	".jpeg": MediaImage,
	".png":  MediaImage,
}

// KindForName returns the media kind for a filename. The second return
// value is false for files outside the publishable allow-list.
func KindForName(name string) (MediaKind, bool) {
	ext := strings.ToLower(filepath.Ext(name))
	kind, ok := mediaKinds[ext]
	return kind, ok
}

// Fingerprint derives the dedup key for a storage item. It combines the
// storage-assigned id with the modification time so that a file replaced
// in place counts as new content.
func Fingerprint(id string, modified time.Time) string {
	return id + "_" + modified.UTC().Format(time.RFC3339)
}

// FormatSize renders a byte count as megabytes for notifications.
func FormatSize(bytes int64) string {
	return fmt.Sprintf("%.2fMB", float64(bytes)/1024/1024)
}
