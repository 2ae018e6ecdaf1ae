package catalog

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/mmcdole/tonearm/internal/domain"
)

// SourceURLPattern matches the video URLs the server accepts for extraction.
var SourceURLPattern = regexp.MustCompile(
	`^(https?://)?(www\.)?(youtube|youtu|youtube-nocookie)\.(com|be)/` +
		`(watch\?v=|embed/|v/|.+\?v=)?([^&=%\?]{11})`)

// ValidateSourceURL trims url and checks it against SourceURLPattern.
func ValidateSourceURL(url string) (string, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", fmt.Errorf("%w: please provide a YouTube URL", domain.ErrValidationFailed)
	}
	if !SourceURLPattern.MatchString(url) {
		return "", fmt.Errorf("%w: invalid YouTube URL format", domain.ErrValidationFailed)
	}
	return url, nil
}
