package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"studybuddy/internal/assistant"
	"studybuddy/internal/config"
	"studybuddy/internal/db"
	"studybuddy/internal/models"
	"studybuddy/internal/session"
)

const maxMultipartMemory = 8 << 20 // 8 MB

type Server struct {
	mux      *http.ServeMux
	sessions *session.Manager
	provider session.Provider
	activity *db.ActivityLog
	log      zerolog.Logger
}

// UploadResult reports the outcome of registering one uploaded file.
type UploadResult struct {
	Name    string               `json:"name"`
	Status  string               `json:"status"`
	Message string               `json:"message,omitempty"`
	File    *models.UploadedFile `json:"file,omitempty"`
}

const (
	UploadStatusOK        = "ok"
	UploadStatusDuplicate = "duplicate"
	UploadStatusError     = "error"
)

func NewServer(sessions *session.Manager, provider session.Provider, activity *db.ActivityLog, log zerolog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		sessions: sessions,
		provider: provider,
		activity: activity,
		log:      log,
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/sessions", s.handleCreateSession)
	s.mux.HandleFunc("/api/sessions/", s.handleSessionActions)
	s.mux.HandleFunc("/api/activity", s.handleActivity)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}

	sess := s.sessions.Create()

	exts := make([]string, 0, len(config.SupportedExtensions))
	for ext := range config.SupportedExtensions {
		exts = append(exts, ext)
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"sessionId":            sess.ID,
		"createdAt":            sess.CreatedAt.Format(timeLayout),
		"supportedExtensions":  exts,
		"maxFileSizeBytes":     config.MaxFileSizeBytes,
		"defaultQuizQuestions": config.DefaultQuizQuestions,
	})
}

func (s *Server) handleSessionActions(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/sessions/")
	path = strings.Trim(path, "/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}

	sess, ok := s.sessions.Get(parts[0])
	if !ok {
		writeError(w, http.StatusNotFound, session.ErrSessionNotFound.Error())
		return
	}

	switch {
	case len(parts) == 1:
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		s.handleEndSession(w, r, sess)
	case len(parts) == 2 && parts[1] == "files":
		switch r.Method {
		case http.MethodPost:
			s.handleUploadFiles(w, r, sess)
		case http.MethodGet:
			s.handleListFiles(w, r, sess)
		default:
			methodNotAllowed(w, http.MethodGet, http.MethodPost)
		}
	case len(parts) == 3 && parts[1] == "files":
		if r.Method != http.MethodDelete {
			methodNotAllowed(w, http.MethodDelete)
			return
		}
		s.handleRemoveFile(w, r, sess, parts[2])
	case len(parts) == 2 && parts[1] == "chat":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.handleChat(w, r, sess)
	case len(parts) == 2 && parts[1] == "transcript":
		if r.Method != http.MethodGet {
			methodNotAllowed(w, http.MethodGet)
			return
		}
		s.handleTranscript(w, r, sess)
	case len(parts) == 2 && parts[1] == "quiz":
		if r.Method != http.MethodPost {
			methodNotAllowed(w, http.MethodPost)
			return
		}
		s.handleQuiz(w, r, sess)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := s.sessions.End(r.Context(), sess.ID, s.provider); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ended"})
}

func (s *Server) handleUploadFiles(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	if form := r.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	files := r.MultipartForm.File["files"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "no files uploaded")
		return
	}

	results := make([]UploadResult, 0, len(files))
	for _, header := range files {
		result := UploadResult{Name: header.Filename, Status: UploadStatusError}

		// Size is checked before the content is even read, so an oversized
		// file never reaches the provider client.
		if header.Size > config.MaxFileSizeBytes {
			result.Message = fmt.Sprintf("%s: %d bytes", session.ErrFileTooLarge.Error(), header.Size)
			results = append(results, result)
			continue
		}

		src, err := header.Open()
		if err != nil {
			result.Message = err.Error()
			results = append(results, result)
			continue
		}
		content, err := io.ReadAll(src)
		src.Close()
		if err != nil {
			result.Message = err.Error()
			results = append(results, result)
			continue
		}

		file, existing, err := sess.RegisterUpload(r.Context(), s.provider, header.Filename, content)
		if err != nil {
			result.Message = err.Error()
			results = append(results, result)
			continue
		}

		result.File = &file
		if existing {
			result.Status = UploadStatusDuplicate
		} else {
			result.Status = UploadStatusOK
			s.record(r, sess.ID, models.ActivityUpload, file.Name, models.Usage{})
		}
		results = append(results, result)
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"files": sess.Files()})
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request, sess *session.Session, rawName string) {
	name, err := url.PathUnescape(rawName)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid file name")
		return
	}

	file, err := sess.RemoveFile(r.Context(), s.provider, name)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.record(r, sess.ID, models.ActivityRemove, file.Name, models.Usage{})
	writeJSON(w, http.StatusOK, map[string]any{"removed": file.Name})
}

type chatRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var payload chatRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid payload")
		return
	}
	message := strings.TrimSpace(payload.Message)
	if message == "" {
		writeError(w, http.StatusBadRequest, "message must not be empty")
		return
	}

	turn, usage, err := sess.Ask(r.Context(), s.provider, message)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.record(r, sess.ID, models.ActivityChat, message, usage)
	writeJSON(w, http.StatusOK, map[string]any{"turn": turn})
}

func (s *Server) handleTranscript(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	writeJSON(w, http.StatusOK, map[string]any{"transcript": sess.Transcript()})
}

type quizRequest struct {
	Count int `json:"count"`
}

func (s *Server) handleQuiz(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var payload quizRequest
	if r.Body != nil {
		// An empty body means the default question count.
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && err != io.EOF {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}

	count := payload.Count
	if count <= 0 {
		count = config.DefaultQuizQuestions
	}
	if count > config.MaxQuizQuestions {
		count = config.MaxQuizQuestions
	}

	items, ok, usage, err := sess.GenerateQuiz(r.Context(), s.provider, count)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	s.record(r, sess.ID, models.ActivityQuiz, fmt.Sprintf("%d questions requested", count), usage)

	response := map[string]any{"questions": items}
	if items == nil {
		response["questions"] = []models.QuizItem{}
	}
	if !ok || len(items) == 0 {
		response["notice"] = "could not generate quiz"
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}

	records, err := s.activity.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if records == nil {
		records = []models.ActivityRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": records})
}

// record appends to the activity log best effort; a logging failure never
// fails the user action it describes.
func (s *Server) record(r *http.Request, sessionID, kind, detail string, usage models.Usage) {
	if s.activity == nil {
		return
	}
	if err := s.activity.Record(r.Context(), sessionID, kind, detail, usage); err != nil {
		s.log.Warn().Err(err).Str("kind", kind).Msg("activity record failed")
	}
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, session.ErrUnsupportedType), errors.Is(err, session.ErrNoFiles):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrFileTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, session.ErrFileNotFound), errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case errors.Is(err, assistant.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		// Provider-side failures are surfaced to the UI verbatim.
		return http.StatusBadGateway
	}
}

const timeLayout = time.RFC3339

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}
