// Package delivery hands finished digests to an outbound channel. The
// default drafter just logs, which keeps runs side-effect free until a real
// mail integration is configured.
package delivery

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// LogDrafter writes the digest to the process log.
type LogDrafter struct{}

func (LogDrafter) CreateDraft(_ context.Context, subject, markdown string) (string, error) {
	log.Printf("digest draft (not sent):\nSubject: %s\n%s", subject, markdown)
	return "log", nil
}

// FileDrafter writes each digest to a timestamped markdown file, useful for
// reviewing output before wiring a mail provider.
type FileDrafter struct {
	Dir string
}

func (d FileDrafter) CreateDraft(_ context.Context, subject, markdown string) (string, error) {
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return "", fmt.Errorf("delivery: creating %s: %w", d.Dir, err)
	}
	path := filepath.Join(d.Dir, fmt.Sprintf("digest-%s.md", time.Now().UTC().Format("20060102-150405")))
	content := fmt.Sprintf("Subject: %s\n\n%s", subject, markdown)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("delivery: writing %s: %w", path, err)
	}
	return path, nil
}
