// Package manifest appends JSONL records describing a mirror run and every
// URL it attempted.
package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/chcolte/site-image-mirror/logger"
	"github.com/chcolte/site-image-mirror/models"
	"github.com/google/uuid"
)

const ToolVersion = "0.1.0"

// RunSessionID is generated once per process and stamped on every record.
var RunSessionID = uuid.New().String()

const (
	RecordTypeRunInfo  = "run_info"
	RecordTypeDownload = "download"
)

// Writer appends records to a single JSONL file. A Writer with an empty path
// discards everything.
type Writer struct {
	path string
	mu   sync.Mutex
}

func NewWriter(path string) *Writer {
	return &Writer{path: path}
}

// Enabled reports whether records are actually written.
func (w *Writer) Enabled() bool {
	return w != nil && w.path != ""
}

// saveRecord wraps data in the common envelope:
//   - record_id:    per-record UUID
//   - run_session:  RunSessionID
//   - saved_at:     RFC3339 timestamp
//   - record_type:  one of the RecordType constants
func (w *Writer) saveRecord(recordType string, data interface{}) error {
	if !w.Enabled() {
		return nil
	}

	envelope := struct {
		RecordID   string      `json:"record_id"`
		RunSession string      `json:"run_session"`
		SavedAt    string      `json:"saved_at"`
		RecordType string      `json:"record_type"`
		Data       interface{} `json:"data"`
	}{
		RecordID:   uuid.New().String(),
		RunSession: RunSessionID,
		SavedAt:    time.Now().Format(time.RFC3339),
		RecordType: recordType,
		Data:       data,
	}

	line, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	// ディレクトリを自動作成
	if err := os.MkdirAll(filepath.Dir(w.path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	// JSONL形式でappend
	f, err := os.OpenFile(w.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}

	logger.Debugf("Saved %s record to %s", recordType, w.path)
	return nil
}

// SaveRunInfo records the settings of the current invocation.
func (w *Writer) SaveRunInfo(mode, urlList, outputDir, remotePrefix string) error {
	return w.saveRecord(RecordTypeRunInfo, models.RunInfo{
		Software:     "site-image-mirror/" + ToolVersion,
		RunSessionID: RunSessionID,
		Mode:         mode,
		URLList:      urlList,
		OutputDir:    outputDir,
		RemotePrefix: remotePrefix,
	})
}

// SaveDownload records the outcome of one URL.
func (w *Writer) SaveDownload(rec models.DownloadRecord) error {
	return w.saveRecord(RecordTypeDownload, rec)
}
