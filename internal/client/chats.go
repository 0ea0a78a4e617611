package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/store"
)

var _ store.ChatStore = (*Chats)(nil)

// Chats talks to a remote transcript store.
type Chats struct {
	base
}

// NewChats creates a transcript store client. A nil hc uses a default client.
func NewChats(baseURL string, hc *http.Client) *Chats {
	return &Chats{base: newBase(baseURL, hc)}
}

type chatBody struct {
	Title    *string              `json:"title,omitempty"`
	Messages []domain.ChatMessage `json:"messages,omitempty"`
}

// CreateChat stores a new transcript.
func (c *Chats) CreateChat(ctx context.Context, title string, messages []domain.ChatMessage) (*domain.Chat, error) {
	var chat domain.Chat
	if err := c.do(ctx, http.MethodPost, "/chats", chatBody{Title: &title, Messages: messages}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// UpdateChat patches a transcript. Nil fields are omitted from the request.
func (c *Chats) UpdateChat(ctx context.Context, id string, title *string, messages []domain.ChatMessage) (*domain.Chat, error) {
	var chat domain.Chat
	if err := c.do(ctx, http.MethodPatch, "/chats/"+url.PathEscape(id), chatBody{Title: title, Messages: messages}, &chat); err != nil {
		return nil, err
	}
	return &chat, nil
}

// GetChat returns a transcript with its messages.
func (c *Chats) GetChat(ctx context.Context, id string) (*domain.Chat, error) {
	var chat domain.Chat
	if err := c.do(ctx, http.MethodGet, "/chats/"+url.PathEscape(id), nil, &chat); err != nil {
		return nil, err
	}
	if chat.ID == "" {
		chat.ID = id
	}
	return &chat, nil
}
