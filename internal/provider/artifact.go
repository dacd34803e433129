package provider

import (
	"fmt"
	"strings"
	"time"
)

// ArtifactName builds the path-like filename of a generated image:
// YYYY/MM/DD/<prefix>_<unix seconds>.<ext>
func ArtifactName(now time.Time, prefix, ext string) string {
	return fmt.Sprintf("%s/%s_%d.%s", now.Format("2006/01/02"), prefix, now.Unix(), ext)
}

// imageContentType guesses the MIME type from an output format name.
func imageContentType(format string) string {
	switch strings.ToLower(format) {
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
