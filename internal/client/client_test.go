package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/agentdash/internal/api"
	"github.com/ashureev/agentdash/internal/domain"
	"github.com/ashureev/agentdash/internal/execution"
	"github.com/ashureev/agentdash/internal/store"
)

func newCollaborator(t *testing.T) *httptest.Server {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "remote.db"), store.Options{})
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	r := chi.NewRouter()
	api.NewHandler(repo, repo, nil, nil).RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestFilesClient(t *testing.T) {
	srv := newCollaborator(t)
	c := NewFiles(srv.URL+"/", nil)
	ctx := context.Background()

	if _, err := c.PutFile(ctx, "src/components/Button.tsx", "export const Button = 1"); err != nil {
		t.Fatalf("PutFile failed: %v", err)
	}
	if _, err := c.PutFile(ctx, "package.json", `{"dependencies":{"react":"19"}}`); err != nil {
		t.Fatal(err)
	}

	files, err := c.ListFiles(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0].Path != "package.json" {
		t.Fatalf("ListFiles = %+v", files)
	}

	f, err := c.GetFile(ctx, "./src/components/Button.tsx")
	if err != nil || f.Content != "export const Button = 1" {
		t.Fatalf("GetFile = %+v, %v", f, err)
	}
	if _, err := c.GetFile(ctx, "missing.tsx"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	_, err = c.PutFile(ctx, "../escape", "x")
	var se *StatusError
	if !errors.As(err, &se) || se.Status != http.StatusBadRequest {
		t.Fatalf("expected 400 StatusError, got %v", err)
	}
}

func TestChatsClientCreateThenPatch(t *testing.T) {
	srv := newCollaborator(t)
	c := NewChats(srv.URL, nil)
	ctx := context.Background()

	msgs := []domain.ChatMessage{{ID: 1, Role: domain.RoleUser, Text: "hi", Kind: domain.KindText}}
	chat, err := c.CreateChat(ctx, "hi", msgs)
	if err != nil || chat.ID == "" {
		t.Fatalf("CreateChat = %+v, %v", chat, err)
	}

	msgs = append(msgs, domain.ChatMessage{ID: 2, Role: domain.RoleAssistant, Text: "hello", Kind: domain.KindText})
	if _, err := c.UpdateChat(ctx, chat.ID, nil, msgs); err != nil {
		t.Fatalf("UpdateChat failed: %v", err)
	}

	got, err := c.GetChat(ctx, chat.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Title != "hi" || len(got.Messages) != 2 || got.Messages[1].Text != "hello" {
		t.Fatalf("GetChat = %+v", got)
	}

	if _, err := c.GetChat(ctx, "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExecClientParsesNDJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/exec" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/x-ndjson")
		fmt.Fprintln(w, `{"type":"start"}`)
		fmt.Fprintln(w, ``)
		fmt.Fprintln(w, `not json`)
		fmt.Fprintln(w, `{"type":"stdout","text":"compiled"}`)
		fmt.Fprintln(w, `{"type":"stderr","text":"warn"}`)
		fmt.Fprintln(w, `{"type":"exit","code":2}`)
		fmt.Fprintln(w, `{"type":"stdout","text":"after exit"}`)
	}))
	defer srv.Close()

	var got []string
	for ev, err := range NewExec(srv.URL, nil).Run(context.Background(), execution.Command{Command: "npm", Args: []string{"run", "build"}}) {
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		got = append(got, string(ev.Type)+":"+ev.Text)
		if ev.Type == execution.EventExit && (ev.Code == nil || *ev.Code != 2) {
			t.Fatalf("exit code = %v", ev.Code)
		}
	}
	want := "start:,stdout:compiled,stderr:warn,exit:"
	if strings.Join(got, ",") != want {
		t.Fatalf("events = %v, want %s", got, want)
	}

	var out strings.Builder
	code, err := execution.Drain(context.Background(), NewExec(srv.URL, nil), execution.Command{Command: "npm"}, &out)
	if code != 2 || !errors.Is(err, execution.ErrCommandFailed) {
		t.Fatalf("Drain = %d, %v", code, err)
	}
	if out.String() != "compiled\nwarn\n" {
		t.Fatalf("Drain output = %q", out.String())
	}
}

func TestExecClientStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		api.Error(w, http.StatusBadRequest, "command is required")
	}))
	defer srv.Close()

	for _, err := range NewExec(srv.URL, nil).Run(context.Background(), execution.Command{}) {
		var se *StatusError
		if !errors.As(err, &se) || se.Message != "command is required" {
			t.Fatalf("expected StatusError, got %v", err)
		}
		return
	}
	t.Fatal("expected one error from Run")
}
