package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// =============================================================================
// AUDIT EVENT TYPES
// =============================================================================

// AuditEventType defines the type of audit event
type AuditEventType string

const (
	// Gatekeeper verdicts
	AuditValidationPass AuditEventType = "validation_pass"
	AuditValidationFail AuditEventType = "validation_fail"
	AuditPayloadReject  AuditEventType = "payload_reject"

	// Duplicate detection
	AuditDuplicateFound     AuditEventType = "duplicate_found"
	AuditSimilarFound       AuditEventType = "similar_found"
	AuditCollaboratorFailed AuditEventType = "collaborator_unavailable"

	// Retrieval
	AuditContextSelected AuditEventType = "context_selected"
)

// AuditEvent is one JSON line in the audit log.
type AuditEvent struct {
	Timestamp  int64                  `json:"ts"`                // Unix milliseconds
	EventType  AuditEventType         `json:"event"`             // Event type
	RequestID  string                 `json:"req,omitempty"`     // Request correlation
	UniqueID   string                 `json:"unique_id,omitempty"`
	Collection string                 `json:"collection,omitempty"`
	Success    bool                   `json:"success"`
	DurationMs int64                  `json:"dur_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"msg,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// =============================================================================
// AUDIT LOGGER
// =============================================================================

var (
	auditSink io.WriteCloser
	auditMu   sync.Mutex
)

// AuditLogger writes audit events scoped to a request.
type AuditLogger struct {
	requestID string
}

// InitAudit opens the audit log. It is a no-op outside debug mode.
func InitAudit() error {
	if !IsDebugMode() {
		return nil
	}

	auditMu.Lock()
	defer auditMu.Unlock()

	if auditSink != nil {
		return nil // Already initialized
	}

	configMu.RLock()
	dir, maxSize, maxBackups := logsDir, config.MaxSizeMB, config.MaxBackups
	configMu.RUnlock()
	if dir == "" {
		return fmt.Errorf("audit log requires a logs directory")
	}
	if maxSize <= 0 {
		maxSize = 10
	}

	auditSink = &lumberjack.Logger{
		Filename:   filepath.Join(dir, "audit.jsonl"),
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		LocalTime:  true,
	}
	return nil
}

// CloseAudit closes the audit log
func CloseAudit() {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditSink != nil {
		auditSink.Close()
		auditSink = nil
	}
}

// Audit returns an unscoped audit logger
func Audit() *AuditLogger {
	return &AuditLogger{}
}

// AuditWithRequest creates an audit logger scoped to a request
func AuditWithRequest(requestID string) *AuditLogger {
	return &AuditLogger{requestID: requestID}
}

// Log writes an audit event
func (a *AuditLogger) Log(event AuditEvent) {
	auditMu.Lock()
	defer auditMu.Unlock()

	if auditSink == nil {
		return
	}

	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	if event.RequestID == "" {
		event.RequestID = a.requestID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	auditSink.Write(append(data, '\n'))
}

// =============================================================================
// CONVENIENCE METHODS
// =============================================================================

// Verdict records the outcome of a validation pass.
func (a *AuditLogger) Verdict(uniqueID string, valid bool, errors, warnings int, durationMs int64) {
	eventType := AuditValidationPass
	if !valid {
		eventType = AuditValidationFail
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		UniqueID:   uniqueID,
		Success:    valid,
		DurationMs: durationMs,
		Fields: map[string]interface{}{
			"errors":   errors,
			"warnings": warnings,
		},
	})
}

// PayloadRejected records an input rejected before validation.
func (a *AuditLogger) PayloadRejected(err error) {
	a.Log(AuditEvent{
		EventType: AuditPayloadReject,
		Error:     err.Error(),
	})
}

// Duplicate records a hard duplicate or a similar match.
func (a *AuditLogger) Duplicate(uniqueID, collection, matchType, matchID string, score float64) {
	eventType := AuditDuplicateFound
	if matchType == "similar" {
		eventType = AuditSimilarFound
	}
	a.Log(AuditEvent{
		EventType:  eventType,
		UniqueID:   uniqueID,
		Collection: collection,
		Fields: map[string]interface{}{
			"match_type": matchType,
			"match_id":   matchID,
			"score":      score,
		},
	})
}

// CollaboratorUnavailable records a lookup that could not be performed.
func (a *AuditLogger) CollaboratorUnavailable(check, collection string, err error) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	a.Log(AuditEvent{
		EventType:  AuditCollaboratorFailed,
		Collection: collection,
		Error:      msg,
		Message:    check,
	})
}

// ContextSelected records a budgeted retrieval selection.
func (a *AuditLogger) ContextSelected(agent string, selected, candidates, tokens, budget int) {
	a.Log(AuditEvent{
		EventType: AuditContextSelected,
		Success:   true,
		Fields: map[string]interface{}{
			"agent":      agent,
			"selected":   selected,
			"candidates": candidates,
			"tokens":     tokens,
			"budget":     budget,
		},
	})
}
