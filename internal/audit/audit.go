// Package audit stores raw source payloads on disk for troubleshooting matches.
package audit

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/uuid"
)

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

type Auditor struct {
	AuditDir string
}

func NewAuditor(auditDir string) *Auditor {
	return &Auditor{
		AuditDir: auditDir,
	}
}

// SaveItem writes the raw payload of a source item as indented JSON and returns
// the file name. Names are unique per call so repeated snapshots never collide.
func (a *Auditor) SaveItem(itemID string, raw json.RawMessage) (string, error) {
	if err := a.ensureAuditDir(); err != nil {
		return "", fmt.Errorf("failed to ensure audit directory: %w", err)
	}

	var indented bytes.Buffer
	if err := json.Indent(&indented, raw, "", "  "); err != nil {
		return "", fmt.Errorf("item %s is not valid JSON: %w", itemID, err)
	}

	name := unsafeNameChars.ReplaceAllString(itemID, "_")
	if name == "" {
		name = "item"
	}
	filename := fmt.Sprintf("%s-%s.json", name, uuid.New().String()[:8])

	if err := os.WriteFile(filepath.Join(a.AuditDir, filename), indented.Bytes(), 0644); err != nil {
		return "", fmt.Errorf("failed to write audit file: %w", err)
	}

	return filename, nil
}

// ensureAuditDir creates the audit directory if it doesn't exist
func (a *Auditor) ensureAuditDir() error {
	if _, err := os.Stat(a.AuditDir); os.IsNotExist(err) {
		if err := os.MkdirAll(a.AuditDir, 0755); err != nil {
			return fmt.Errorf("failed to create audit directory: %w", err)
		}
	}
	return nil
}
