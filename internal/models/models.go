package models

import "time"

// UploadedFile tracks one document registered in a session, before and after
// the provider assigns it a file id.
type UploadedFile struct {
	Name        string    `json:"name"`
	SizeBytes   int64     `json:"sizeBytes"`
	Extension   string    `json:"extension"`
	ContentHash string    `json:"-"`
	FileID      string    `json:"fileId"`
	PageCount   int       `json:"pageCount,omitempty"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Citation is one resolved footnote in an assistant answer.
type Citation struct {
	Index    int    `json:"index"`
	FileID   string `json:"fileId"`
	Filename string `json:"filename"`
}

// ChatTurn is a single transcript entry. Turns are appended in submission
// order and never mutated afterwards.
type ChatTurn struct {
	Role      string     `json:"role"`
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// QuizItem is one validated multiple-choice question parsed out of provider
// output. Correct indexes into Options.
type QuizItem struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Correct  int      `json:"correct"`
}

// Usage carries the provider's token accounting for one run.
type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// ActivityRecord is one row of the persistent activity log.
type ActivityRecord struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"sessionId"`
	Kind      string    `json:"kind"`
	Detail    string    `json:"detail"`
	Usage     Usage     `json:"usage"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	ActivityUpload = "upload"
	ActivityChat   = "chat"
	ActivityQuiz   = "quiz"
	ActivityRemove = "remove"
)
