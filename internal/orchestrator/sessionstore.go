package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentmesh/runtime/internal/storage"
	"github.com/agentmesh/runtime/pkg/types"
)

// ErrInvalidState is returned for a business-rule precondition failure
// (spec.md §7's invalid_state: compress with <4 messages, title on an
// empty session).
var ErrInvalidState = errors.New("orchestrator: invalid session state")

// reservedSessionNames are the sessions/ subdirectories that List must
// never mistake for a session id of the same name.
var reservedSessionNames = map[string]bool{"archive": true, "archived_sessions": true}

// SessionStore persists per-agent session transcripts under
// <agent_root>/sessions/, matching spec.md §6's filesystem layout.
type SessionStore struct {
	fs *storage.Storage
}

// NewSessionStore builds a SessionStore rooted at an agent's workspace
// root (the directory containing workspace/, memory/, sessions/, ...).
func NewSessionStore(agentRoot string) *SessionStore {
	return &SessionStore{fs: storage.New(agentRoot)}
}

// Create starts a new, empty session for agentID.
func (s *SessionStore) Create(ctx context.Context, agentID string) (*types.Session, error) {
	now := time.Now().UnixMilli()
	sess := &types.Session{ID: uuid.NewString(), AgentID: agentID, CreatedAt: now, UpdatedAt: now}
	if err := s.fs.Put(ctx, []string{"sessions", sess.ID}, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// Get loads a session by id, checking the active location first and
// falling back to archived_sessions.
func (s *SessionStore) Get(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	if err := s.fs.Get(ctx, []string{"sessions", id}, &sess); err == nil {
		return &sess, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if err := s.fs.Get(ctx, []string{"sessions", "archived_sessions", id}, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Put persists sess at the location its ArchivedAt implies.
func (s *SessionStore) Put(ctx context.Context, sess *types.Session) error {
	sess.UpdatedAt = time.Now().UnixMilli()
	if sess.IsArchived() {
		return s.fs.Put(ctx, []string{"sessions", "archived_sessions", sess.ID}, sess)
	}
	return s.fs.Put(ctx, []string{"sessions", sess.ID}, sess)
}

// List enumerates sessions for scope: "active", "archived", or "all".
func (s *SessionStore) List(ctx context.Context, scope string) ([]types.Session, error) {
	var out []types.Session

	if scope == "active" || scope == "all" {
		active, err := s.listAt(ctx, []string{"sessions"})
		if err != nil {
			return nil, err
		}
		out = append(out, active...)
	}
	if scope == "archived" || scope == "all" {
		archived, err := s.listAt(ctx, []string{"sessions", "archived_sessions"})
		if err != nil {
			return nil, err
		}
		out = append(out, archived...)
	}
	return out, nil
}

func (s *SessionStore) listAt(ctx context.Context, path []string) ([]types.Session, error) {
	ids, err := s.fs.List(ctx, path)
	if err != nil {
		return nil, err
	}
	var out []types.Session
	for _, id := range ids {
		if reservedSessionNames[id] {
			continue
		}
		var sess types.Session
		if err := s.fs.Get(ctx, append(append([]string{}, path...), id), &sess); err != nil {
			continue
		}
		out = append(out, sess)
	}
	return out, nil
}

// Delete removes a session from its active or archived location.
func (s *SessionStore) Delete(ctx context.Context, id string, archived bool) error {
	if archived {
		return s.fs.Delete(ctx, []string{"sessions", "archived_sessions", id})
	}
	return s.fs.Delete(ctx, []string{"sessions", id})
}

// Archive moves an active session into archived_sessions, stamping
// ArchivedAt.
func (s *SessionStore) Archive(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	if err := s.fs.Get(ctx, []string{"sessions", id}, &sess); err != nil {
		return nil, err
	}
	sess.ArchivedAt = time.Now().UnixMilli()
	if err := s.fs.Put(ctx, []string{"sessions", "archived_sessions", sess.ID}, &sess); err != nil {
		return nil, err
	}
	if err := s.fs.Delete(ctx, []string{"sessions", id}); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Restore moves an archived session back to the active location, clearing
// ArchivedAt.
func (s *SessionStore) Restore(ctx context.Context, id string) (*types.Session, error) {
	var sess types.Session
	if err := s.fs.Get(ctx, []string{"sessions", "archived_sessions", id}, &sess); err != nil {
		return nil, err
	}
	sess.ArchivedAt = 0
	if err := s.fs.Put(ctx, []string{"sessions", sess.ID}, &sess); err != nil {
		return nil, err
	}
	if err := s.fs.Delete(ctx, []string{"sessions", "archived_sessions", id}); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Compress snapshots the full session to sessions/archive/<id>_<ts>.json,
// then replaces its transcript with a compacted placeholder summary.
// Refuses (ErrInvalidState) sessions with fewer than four messages.
func (s *SessionStore) Compress(ctx context.Context, id string, summary string) (*types.Session, error) {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(sess.Messages) < 4 {
		return nil, fmt.Errorf("%w: session has fewer than 4 messages", ErrInvalidState)
	}

	ts := time.Now().UnixMilli()
	snapshotID := fmt.Sprintf("%s_%d", sess.ID, ts)
	if err := s.fs.Put(ctx, []string{"sessions", "archive", snapshotID}, sess); err != nil {
		return nil, err
	}

	sess.CompressedContext = summary
	sess.Messages = nil
	if err := s.Put(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// SetLiveResponse writes a transient streaming snapshot onto the session.
func (s *SessionStore) SetLiveResponse(ctx context.Context, id string, lr *types.LiveResponse) error {
	sess, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	sess.LiveResponse = lr
	return s.Put(ctx, sess)
}

// AppendMessages appends msgs to sess's transcript and persists it.
func (s *SessionStore) AppendMessages(ctx context.Context, sess *types.Session, msgs ...types.Message) error {
	sess.Messages = append(sess.Messages, msgs...)
	sess.LiveResponse = nil
	return s.Put(ctx, sess)
}

// SetTitle persists a generated title, once, onto sess.
func (s *SessionStore) SetTitle(ctx context.Context, sess *types.Session, title string) error {
	sess.Title = title
	return s.Put(ctx, sess)
}
