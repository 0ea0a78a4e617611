package domain

import "time"

// GenerationSession holds the artifact being produced by one generation request.
type GenerationSession struct {
	ID              int64  `json:"id"`
	MessageID       int64  `json:"messageId"`
	Prompt          string `json:"prompt"`
	TargetFile      string `json:"targetFile"`
	PreviousContent string `json:"-"`
	Editing         bool   `json:"editing"`
	FullCode        string `json:"-"`
	StreamedLength  int    `json:"streamedLength"`
}

// LiveCode returns the prefix of the artifact revealed so far.
func (g *GenerationSession) LiveCode() string {
	n := g.StreamedLength
	if n < 0 {
		n = 0
	}
	if n > len(g.FullCode) {
		n = len(g.FullCode)
	}
	return g.FullCode[:n]
}

// Chat is a persisted transcript.
type Chat struct {
	ID        string        `json:"id"`
	Title     string        `json:"title"`
	Messages  []ChatMessage `json:"messages,omitempty"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// File is a workspace artifact held by the file store.
type File struct {
	Path      string    `json:"path"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
