package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"studybuddy/internal/config"
	"studybuddy/internal/models"
	"studybuddy/internal/pdfinfo"
	"studybuddy/internal/textproc"
)

var (
	// ErrFileTooLarge is returned before any provider call when an upload
	// exceeds the configured size cap.
	ErrFileTooLarge = errors.New("file exceeds the maximum allowed size")

	// ErrUnsupportedType is returned before any provider call when an upload
	// has an extension outside the supported list.
	ErrUnsupportedType = errors.New("file type is not supported")

	// ErrFileNotFound is returned when an operation names a file the session
	// has not registered.
	ErrFileNotFound = errors.New("file not found in this session")

	// ErrNoFiles is returned when chat or quiz generation is requested
	// before any document has been uploaded.
	ErrNoFiles = errors.New("no documents uploaded yet")
)

// Workspace holds the provider-side handles backing one session: the vector
// store, the assistant bound to it, and the chat and quiz threads. Fields are
// filled lazily by the provider and empty until first use.
type Workspace struct {
	VectorStoreID string
	AssistantID   string
	ThreadID      string
	QuizThreadID  string
}

// Provider is the slice of the provider client a session needs. All calls
// are blocking; errors are surfaced to the caller verbatim, never retried.
type Provider interface {
	EnsureWorkspace(ctx context.Context, ws *Workspace) error
	UploadFile(ctx context.Context, name string, content []byte) (string, error)
	Attach(ctx context.Context, vectorStoreID, fileID string) error
	Detach(ctx context.Context, vectorStoreID, fileID string) error
	DeleteFile(ctx context.Context, fileID string) error
	Ask(ctx context.Context, ws *Workspace, question string) (string, models.Usage, error)
	GenerateQuiz(ctx context.Context, ws *Workspace, count int) (string, models.Usage, error)
}

// Session scopes all in-memory state for one user's interaction: the file
// registry, the provider workspace handles, and the chat transcript. All
// operations on a session are serialized by its mutex; a long provider call
// simply blocks the session until it returns or errors.
type Session struct {
	ID        string
	CreatedAt time.Time

	mu         sync.Mutex
	workspace  Workspace
	files      []*models.UploadedFile
	byKey      map[string]*models.UploadedFile // name + content hash
	transcript []models.ChatTurn
	log        zerolog.Logger
}

func newSession(id string, log zerolog.Logger) *Session {
	return &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		byKey:     make(map[string]*models.UploadedFile),
		log:       log.With().Str("session", id).Logger(),
	}
}

func registryKey(name, hash string) string {
	return name + "\x00" + hash
}

// RegisterUpload validates a document, uploads it to the provider, and
// attaches it to the session's vector store. Registration is idempotent per
// (name, content hash): a file already registered is returned as-is with
// existing=true and no provider call is made. Validation failures occur
// before any network traffic.
func (s *Session) RegisterUpload(ctx context.Context, provider Provider, name string, content []byte) (models.UploadedFile, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
	if !config.SupportedExtensions[ext] {
		return models.UploadedFile{}, false, fmt.Errorf("%w: .%s", ErrUnsupportedType, ext)
	}
	if int64(len(content)) > config.MaxFileSizeBytes {
		return models.UploadedFile{}, false, fmt.Errorf("%w: %d bytes", ErrFileTooLarge, len(content))
	}

	sum := sha256.Sum256(content)
	hash := hex.EncodeToString(sum[:])
	if existing, ok := s.byKey[registryKey(name, hash)]; ok {
		s.log.Debug().Str("file", name).Msg("duplicate upload, returning existing registration")
		return *existing, true, nil
	}

	pages := 0
	if ext == "pdf" {
		pages = pdfinfo.PageCount(content)
	}

	if err := provider.EnsureWorkspace(ctx, &s.workspace); err != nil {
		return models.UploadedFile{}, false, err
	}

	fileID, err := provider.UploadFile(ctx, name, content)
	if err != nil {
		return models.UploadedFile{}, false, err
	}
	if err := provider.Attach(ctx, s.workspace.VectorStoreID, fileID); err != nil {
		// The orphaned provider file is useless without a store attachment.
		if delErr := provider.DeleteFile(ctx, fileID); delErr != nil {
			s.log.Warn().Err(delErr).Str("fileId", fileID).Msg("cleanup of unattached file failed")
		}
		return models.UploadedFile{}, false, err
	}

	file := &models.UploadedFile{
		Name:        name,
		SizeBytes:   int64(len(content)),
		Extension:   ext,
		ContentHash: hash,
		FileID:      fileID,
		PageCount:   pages,
		UploadedAt:  time.Now().UTC(),
	}
	s.files = append(s.files, file)
	s.byKey[registryKey(name, hash)] = file
	s.log.Info().Str("file", name).Str("fileId", fileID).Int64("bytes", file.SizeBytes).Msg("registered upload")
	return *file, false, nil
}

// Files returns the registered uploads in registration order.
func (s *Session) Files() []models.UploadedFile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.UploadedFile, len(s.files))
	for i, f := range s.files {
		out[i] = *f
	}
	return out
}

// RemoveFile detaches a document from the vector store, deletes it on the
// provider side, and drops it from the registry. Provider failures are
// logged; local removal always proceeds.
func (s *Session) RemoveFile(ctx context.Context, provider Provider, name string) (models.UploadedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, f := range s.files {
		if f.Name == name {
			idx = i
			break
		}
	}
	if idx == -1 {
		return models.UploadedFile{}, ErrFileNotFound
	}
	file := s.files[idx]

	if s.workspace.VectorStoreID != "" && file.FileID != "" {
		if err := provider.Detach(ctx, s.workspace.VectorStoreID, file.FileID); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("detach from vector store failed")
		}
	}
	if file.FileID != "" {
		if err := provider.DeleteFile(ctx, file.FileID); err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("provider file delete failed")
		}
	}

	s.files = append(s.files[:idx], s.files[idx+1:]...)
	delete(s.byKey, registryKey(file.Name, file.ContentHash))
	s.log.Info().Str("file", name).Msg("removed file")
	return *file, nil
}

// Ask runs one blocking chat turn: the question is sent to the assistant,
// the raw answer's citation markers are resolved against the registry, and
// both turns are appended to the transcript. On provider error the
// transcript is left untouched.
func (s *Session) Ask(ctx context.Context, provider Provider, question string) (models.ChatTurn, models.Usage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) == 0 {
		return models.ChatTurn{}, models.Usage{}, ErrNoFiles
	}
	if err := provider.EnsureWorkspace(ctx, &s.workspace); err != nil {
		return models.ChatTurn{}, models.Usage{}, err
	}

	raw, usage, err := provider.Ask(ctx, &s.workspace, question)
	if err != nil {
		return models.ChatTurn{}, models.Usage{}, err
	}

	rendered, citations := textproc.ResolveCitations(raw, s.resolveFileID)

	now := time.Now().UTC()
	s.transcript = append(s.transcript,
		models.ChatTurn{Role: models.RoleUser, Text: question, CreatedAt: now},
		models.ChatTurn{Role: models.RoleAssistant, Text: rendered, Citations: citations, CreatedAt: now},
	)
	return s.transcript[len(s.transcript)-1], usage, nil
}

// GenerateQuiz requests a quiz of the given size and parses the provider's
// JSON-shaped output defensively. ok=false means the output was unusable and
// the caller should show a "could not generate quiz" notice.
func (s *Session) GenerateQuiz(ctx context.Context, provider Provider, count int) (items []models.QuizItem, ok bool, usage models.Usage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.files) == 0 {
		return nil, false, models.Usage{}, ErrNoFiles
	}
	if err := provider.EnsureWorkspace(ctx, &s.workspace); err != nil {
		return nil, false, models.Usage{}, err
	}

	raw, usage, err := provider.GenerateQuiz(ctx, &s.workspace, count)
	if err != nil {
		return nil, false, models.Usage{}, err
	}

	items, ok = textproc.ParseQuiz(raw)
	if !ok {
		s.log.Warn().Str("raw", truncate(raw, 200)).Msg("quiz output unparseable")
	}
	return items, ok, usage, nil
}

// Transcript returns a copy of the session transcript in submission order.
func (s *Session) Transcript() []models.ChatTurn {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.ChatTurn, len(s.transcript))
	copy(out, s.transcript)
	return out
}

// resolveFileID maps a provider file id back to the filename it was uploaded
// under. Caller must hold s.mu.
func (s *Session) resolveFileID(fileID string) (string, bool) {
	for _, f := range s.files {
		if f.FileID == fileID {
			return f.Name, true
		}
	}
	return "", false
}

func truncate(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit]) + "..."
}
