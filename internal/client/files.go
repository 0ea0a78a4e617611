package client

import (
	"context"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/store"
)

var _ store.FileStore = (*Files)(nil)

// Files talks to a remote file store.
type Files struct {
	base
}

// NewFiles creates a file store client. A nil hc uses a default client.
func NewFiles(baseURL string, hc *http.Client) *Files {
	return &Files{base: newBase(baseURL, hc)}
}

type filesResponse struct {
	Files    []string          `json:"files"`
	Contents map[string]string `json:"contents"`
}

type fileBody struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

// ListFiles returns every remote file ordered by path.
func (c *Files) ListFiles(ctx context.Context) ([]domain.File, error) {
	var resp filesResponse
	if err := c.do(ctx, http.MethodGet, "/api/files", nil, &resp); err != nil {
		return nil, err
	}
	files := make([]domain.File, 0, len(resp.Files))
	for _, p := range resp.Files {
		files = append(files, domain.File{Path: p, Content: resp.Contents[p]})
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })
	return files, nil
}

// GetFile reads one remote file.
func (c *Files) GetFile(ctx context.Context, p string) (*domain.File, error) {
	p, err := store.CleanPath(p)
	if err != nil {
		return nil, err
	}
	segments := strings.Split(p, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	var resp fileBody
	if err := c.do(ctx, http.MethodGet, "/api/files/"+strings.Join(segments, "/"), nil, &resp); err != nil {
		return nil, err
	}
	return &domain.File{Path: resp.Path, Content: resp.Content}, nil
}

// PutFile creates or replaces a remote file.
func (c *Files) PutFile(ctx context.Context, p, content string) (*domain.File, error) {
	var resp fileBody
	if err := c.do(ctx, http.MethodPost, "/api/files", fileBody{Path: p, Content: content}, &resp); err != nil {
		return nil, err
	}
	return &domain.File{Path: resp.Path, Content: resp.Content}, nil
}
