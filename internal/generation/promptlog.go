package generation

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"agri-pipeline/internal/models"
)

// PromptLog appends prompt/response pairs to a text file. Media bytes are
// never written. A nil *PromptLog discards everything.
type PromptLog struct {
	path string
	mu   sync.Mutex
	now  func() time.Time
}

// NewPromptLog returns nil when path is empty.
func NewPromptLog(path string) *PromptLog {
	if path == "" {
		return nil
	}
	return &PromptLog{path: path, now: time.Now}
}

func (l *PromptLog) Write(model, prompt string, media *models.Media, response string) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return
	}
	defer f.Close()

	mediaLine := "none"
	if media != nil && len(media.Data) > 0 {
		mediaLine = fmt.Sprintf("[%s, %d bytes redacted]", media.MIMEType, len(media.Data))
	}

	entry := fmt.Sprintf("[%s] MODEL: %s\nMEDIA: %s\nPROMPT_TEXT:\n%s\n\nRESPONSE:\n%s\n%s\n",
		l.now().Format("2006-01-02 15:04:05"), model, mediaLine, prompt, response, strings.Repeat("-", 80))
	_, _ = f.WriteString(entry)
}
