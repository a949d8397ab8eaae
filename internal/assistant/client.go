package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"

	"studybuddy/internal/config"
	"studybuddy/internal/models"
	"studybuddy/internal/session"
)

// ErrUnavailable is returned when the OpenAI integration is not configured.
var ErrUnavailable = errors.New("openai integration is not configured")

const (
	assistantName   = "Study Buddy"
	vectorStoreName = "StudyBuddyVectorStore"

	runPollInterval = time.Second
)

// runInstructions nudges each chat run toward grounded answers.
const runInstructions = "Use the file_search tool to ground answers in the uploaded documents."

// quizRunInstructions is attached to quiz runs only.
const quizRunInstructions = "Use the file_search tool to base questions on the uploaded document content. Return only JSON."

// Client is a thin adapter over the provider's Files, Vector Stores and
// Assistants APIs. Every call is a blocking round trip; provider errors are
// returned to the caller unchanged, with no retry and no response caching.
type Client struct {
	api        *openai.Client
	model      string
	runTimeout time.Duration
	log        zerolog.Logger
}

func NewClient(apiKey, apiEndpoint, model string, runTimeout time.Duration, log zerolog.Logger) *Client {
	if apiKey == "" {
		return &Client{log: log}
	}

	cfg := openai.DefaultConfig(apiKey)
	if apiEndpoint != "" {
		cfg.BaseURL = apiEndpoint
	}

	return &Client{
		api:        openai.NewClientWithConfig(cfg),
		model:      model,
		runTimeout: runTimeout,
		log:        log,
	}
}

func (c *Client) disabled() bool {
	return c.api == nil || c.model == ""
}

// EnsureWorkspace lazily creates the vector store, the file_search assistant
// bound to it, and the chat thread. Handles already present are kept, so the
// call is idempotent per session.
func (c *Client) EnsureWorkspace(ctx context.Context, ws *session.Workspace) error {
	if c.disabled() {
		return ErrUnavailable
	}

	if ws.VectorStoreID == "" {
		store, err := c.api.CreateVectorStore(ctx, openai.VectorStoreRequest{Name: vectorStoreName})
		if err != nil {
			return fmt.Errorf("create vector store: %w", err)
		}
		ws.VectorStoreID = store.ID
		c.log.Info().Str("vectorStore", store.ID).Msg("created vector store")
	}

	if ws.AssistantID == "" {
		name := assistantName
		instructions := config.AssistantInstructions
		resp, err := c.api.CreateAssistant(ctx, openai.AssistantRequest{
			Model:        c.model,
			Name:         &name,
			Instructions: &instructions,
			Tools:        []openai.AssistantTool{{Type: openai.AssistantToolTypeFileSearch}},
			ToolResources: &openai.AssistantToolResource{
				FileSearch: &openai.AssistantToolFileSearch{
					VectorStoreIDs: []string{ws.VectorStoreID},
				},
			},
		})
		if err != nil {
			return fmt.Errorf("create assistant: %w", err)
		}
		ws.AssistantID = resp.ID
		c.log.Info().Str("assistant", resp.ID).Msg("created assistant")
	}

	if ws.ThreadID == "" {
		thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return fmt.Errorf("create thread: %w", err)
		}
		ws.ThreadID = thread.ID
	}

	return nil
}

// UploadFile pushes document content to the provider's Files API and returns
// the assigned file id.
func (c *Client) UploadFile(ctx context.Context, name string, content []byte) (string, error) {
	if c.disabled() {
		return "", ErrUnavailable
	}

	file, err := c.api.CreateFileBytes(ctx, openai.FileBytesRequest{
		Name:    name,
		Bytes:   content,
		Purpose: openai.PurposeAssistants,
	})
	if err != nil {
		return "", fmt.Errorf("upload file %s: %w", name, err)
	}
	return file.ID, nil
}

// Attach binds an uploaded file to a vector store.
func (c *Client) Attach(ctx context.Context, vectorStoreID, fileID string) error {
	if c.disabled() {
		return ErrUnavailable
	}

	if _, err := c.api.CreateVectorStoreFile(ctx, vectorStoreID, openai.VectorStoreFileRequest{FileID: fileID}); err != nil {
		return fmt.Errorf("attach file to vector store: %w", err)
	}
	return nil
}

// Detach removes a file from a vector store.
func (c *Client) Detach(ctx context.Context, vectorStoreID, fileID string) error {
	if c.disabled() {
		return ErrUnavailable
	}

	if err := c.api.DeleteVectorStoreFile(ctx, vectorStoreID, fileID); err != nil {
		return fmt.Errorf("detach file from vector store: %w", err)
	}
	return nil
}

// DeleteFile removes a file from the provider's Files API.
func (c *Client) DeleteFile(ctx context.Context, fileID string) error {
	if c.disabled() {
		return ErrUnavailable
	}

	if err := c.api.DeleteFile(ctx, fileID); err != nil {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// Ask runs one chat turn on the session's chat thread and returns the answer
// text with provider annotations rewritten into [[doc:<file_id>]] markers.
func (c *Client) Ask(ctx context.Context, ws *session.Workspace, question string) (string, models.Usage, error) {
	if c.disabled() {
		return "", models.Usage{}, ErrUnavailable
	}

	return c.runTurn(ctx, ws.ThreadID, ws.AssistantID, question, runInstructions)
}

// GenerateQuiz runs the quiz prompt on a dedicated thread so quiz exchanges
// do not pollute the chat history, and returns the raw JSON-shaped text.
func (c *Client) GenerateQuiz(ctx context.Context, ws *session.Workspace, count int) (string, models.Usage, error) {
	if c.disabled() {
		return "", models.Usage{}, ErrUnavailable
	}

	if ws.QuizThreadID == "" {
		thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
		if err != nil {
			return "", models.Usage{}, fmt.Errorf("create quiz thread: %w", err)
		}
		ws.QuizThreadID = thread.ID
	}

	prompt := fmt.Sprintf(config.QuizPromptTemplate, count)
	return c.runTurn(ctx, ws.QuizThreadID, ws.AssistantID, prompt, quizRunInstructions)
}

// Teardown releases the provider-side resources a workspace accumulated.
// Every deletion is best effort; failures are logged and skipped.
func (c *Client) Teardown(ctx context.Context, ws *session.Workspace, fileIDs []string) {
	if c.disabled() {
		return
	}

	for _, fileID := range fileIDs {
		if ws.VectorStoreID != "" {
			if err := c.api.DeleteVectorStoreFile(ctx, ws.VectorStoreID, fileID); err != nil {
				c.log.Warn().Err(err).Str("fileId", fileID).Msg("teardown: detach failed")
			}
		}
		if err := c.api.DeleteFile(ctx, fileID); err != nil {
			c.log.Warn().Err(err).Str("fileId", fileID).Msg("teardown: file delete failed")
		}
	}
	if ws.AssistantID != "" {
		if _, err := c.api.DeleteAssistant(ctx, ws.AssistantID); err != nil {
			c.log.Warn().Err(err).Str("assistant", ws.AssistantID).Msg("teardown: assistant delete failed")
		}
	}
	for _, threadID := range []string{ws.ThreadID, ws.QuizThreadID} {
		if threadID == "" {
			continue
		}
		if _, err := c.api.DeleteThread(ctx, threadID); err != nil {
			c.log.Warn().Err(err).Str("thread", threadID).Msg("teardown: thread delete failed")
		}
	}
	if ws.VectorStoreID != "" {
		if _, err := c.api.DeleteVectorStore(ctx, ws.VectorStoreID); err != nil {
			c.log.Warn().Err(err).Str("vectorStore", ws.VectorStoreID).Msg("teardown: vector store delete failed")
		}
	}
}

// runTurn is the single blocking request/poll/fetch cycle shared by chat and
// quiz generation.
func (c *Client) runTurn(ctx context.Context, threadID, assistantID, content, instructions string) (string, models.Usage, error) {
	if _, err := c.api.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	}); err != nil {
		return "", models.Usage{}, fmt.Errorf("send message: %w", err)
	}

	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{
		AssistantID:  assistantID,
		Instructions: instructions,
	})
	if err != nil {
		return "", models.Usage{}, fmt.Errorf("create run: %w", err)
	}

	run, err = c.waitForRun(ctx, threadID, run.ID)
	if err != nil {
		return "", models.Usage{}, err
	}

	text, err := c.fetchRunText(ctx, threadID, run.ID)
	if err != nil {
		return "", models.Usage{}, err
	}

	usage := models.Usage{
		PromptTokens:     run.Usage.PromptTokens,
		CompletionTokens: run.Usage.CompletionTokens,
		TotalTokens:      run.Usage.TotalTokens,
	}
	return text, usage, nil
}

// waitForRun polls the run until it reaches a terminal status or the
// configured timeout expires.
func (c *Client) waitForRun(ctx context.Context, threadID, runID string) (openai.Run, error) {
	ctx, cancel := context.WithTimeout(ctx, c.runTimeout)
	defer cancel()

	ticker := time.NewTicker(runPollInterval)
	defer ticker.Stop()

	for {
		run, err := c.api.RetrieveRun(ctx, threadID, runID)
		if err != nil {
			return openai.Run{}, fmt.Errorf("retrieve run: %w", err)
		}

		switch run.Status {
		case openai.RunStatusCompleted:
			return run, nil
		case openai.RunStatusQueued, openai.RunStatusInProgress, openai.RunStatusCancelling:
			// keep polling
		default:
			if run.LastError != nil {
				return openai.Run{}, fmt.Errorf("run %s: %s", run.Status, run.LastError.Message)
			}
			return openai.Run{}, fmt.Errorf("run did not complete: %s", run.Status)
		}

		select {
		case <-ctx.Done():
			return openai.Run{}, fmt.Errorf("wait for run: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

// fetchRunText collects the assistant messages produced by a run, joining
// their text parts and normalizing citation annotations into inline markers.
func (c *Client) fetchRunText(ctx context.Context, threadID, runID string) (string, error) {
	list, err := c.api.ListMessage(ctx, threadID, nil, nil, nil, nil, &runID)
	if err != nil {
		return "", fmt.Errorf("list messages: %w", err)
	}

	var parts []string
	for _, msg := range list.Messages {
		if msg.Role != string(openai.ChatMessageRoleAssistant) {
			continue
		}
		for _, part := range msg.Content {
			if part.Text == nil {
				continue
			}
			parts = append(parts, rewriteAnnotations(part.Text.Value, part.Text.Annotations))
		}
	}
	if len(parts) == 0 {
		return "", errors.New("no assistant message returned")
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}

// messageAnnotation is the subset of the provider's loosely-typed annotation
// payload this system consumes.
type messageAnnotation struct {
	Type         string `json:"type"`
	Text         string `json:"text"`
	FileCitation *struct {
		FileID string `json:"file_id"`
	} `json:"file_citation"`
	FilePath *struct {
		FileID string `json:"file_id"`
	} `json:"file_path"`
}

// rewriteAnnotations replaces provider annotation tokens embedded in the text
// with canonical [[doc:<file_id>]] markers. Annotations that cannot be
// decoded or carry no file reference are left alone.
func rewriteAnnotations(value string, annotations []any) string {
	for _, raw := range annotations {
		encoded, err := json.Marshal(raw)
		if err != nil {
			continue
		}
		var ann messageAnnotation
		if err := json.Unmarshal(encoded, &ann); err != nil || ann.Text == "" {
			continue
		}

		fileID := ""
		switch {
		case ann.FileCitation != nil:
			fileID = ann.FileCitation.FileID
		case ann.FilePath != nil:
			fileID = ann.FilePath.FileID
		}
		if fileID == "" {
			continue
		}
		value = strings.ReplaceAll(value, ann.Text, "[[doc:"+fileID+"]]")
	}
	return value
}
