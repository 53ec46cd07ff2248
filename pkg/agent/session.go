package agent

import (
	"sync"

	"github.com/partforge/partforge/pkg/apperr"
)

// Session holds the identifiers of the CAD artifact being built: the
// document, its default workspace, and the active part studio element.
// One instance is owned by the Service that created it and passed by
// reference into tool executors; it is never shared across sessions.
// Fields are assigned only after the corresponding platform call
// succeeds, so an aborted call leaves them unset.
type Session struct {
	mu          sync.Mutex
	documentID  string
	workspaceID string
	elementID   string
}

// Snapshot is a copy of the session identifiers for reporting.
type Snapshot struct {
	DocumentID  string `json:"document_id,omitempty"`
	WorkspaceID string `json:"workspace_id,omitempty"`
	ElementID   string `json:"element_id,omitempty"`
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// SetDocument records a created or selected document and its default
// workspace. The part studio element is cleared: it belonged to the
// previous document.
func (s *Session) SetDocument(documentID, workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documentID = documentID
	s.workspaceID = workspaceID
	s.elementID = ""
}

// SetElement records the active part studio element.
func (s *Session) SetElement(elementID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.elementID = elementID
}

// Reset clears all identifiers.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.documentID = ""
	s.workspaceID = ""
	s.elementID = ""
}

// Snapshot returns a copy of the current identifiers.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		DocumentID:  s.documentID,
		WorkspaceID: s.workspaceID,
		ElementID:   s.elementID,
	}
}

// DocumentRef returns the active document and workspace ids, or a
// validation error when no document is active. The check is local; no
// network call is made.
func (s *Session) DocumentRef() (string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.documentID == "" || s.workspaceID == "" {
		return "", "", apperr.New(apperr.KindValidation, "no active document; create or select a document first")
	}
	return s.documentID, s.workspaceID, nil
}

// ElementRef returns the active document, workspace and part studio ids,
// or a validation error when no part studio is active.
func (s *Session) ElementRef() (string, string, string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.documentID == "" || s.workspaceID == "" {
		return "", "", "", apperr.New(apperr.KindValidation, "no active document; create or select a document first")
	}
	if s.elementID == "" {
		return "", "", "", apperr.New(apperr.KindValidation, "no active part studio; create a part studio first")
	}
	return s.documentID, s.workspaceID, s.elementID, nil
}
