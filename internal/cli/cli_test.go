// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/turochat/internal/cloud"
	"github.com/jeranaias/turochat/internal/config"
	"github.com/jeranaias/turochat/internal/credential"
	"github.com/jeranaias/turochat/internal/export"
	"github.com/jeranaias/turochat/internal/model"
	"github.com/jeranaias/turochat/internal/session"
	"github.com/jeranaias/turochat/internal/storage"
)

const (
	testKey = "sk-test-1234567890abcd"
	okBody  = `{"id":"chatcmpl-1","object":"chat.completion","created":1,"model":"gpt-4o-mini",` +
		`"choices":[{"index":0,"message":{"role":"assistant","content":"Hi there"},"finish_reason":"stop"}]}`
)

func TestMain(m *testing.M) {
	ForceColorsEnabled(false)
	os.Exit(m.Run())
}

// =============================================================================
// TEST HARNESS
// =============================================================================

type testEnv struct {
	t          *testing.T
	configPath string
	dataDir    string
	requests   atomic.Int32
}

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(okBody))
}

func newTestEnv(t *testing.T, handler http.HandlerFunc) *testEnv {
	t.Helper()
	env := &testEnv{t: t}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.requests.Add(1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	dir := t.TempDir()
	env.dataDir = filepath.Join(dir, "data")
	env.configPath = filepath.Join(dir, "config.toml")
	body := fmt.Sprintf("[cloud]\nbase_url = %q\n\n[storage]\ndriver = \"file\"\npath = %q\n\n[log]\nlevel = \"error\"\n",
		server.URL, env.dataDir)
	require.NoError(t, os.WriteFile(env.configPath, []byte(body), 0600))
	return env
}

func (e *testEnv) run(args ...string) (stdout, stderr string, code int) {
	e.t.Helper()
	var out, errOut bytes.Buffer
	code = Execute(context.Background(), append([]string{"--config", e.configPath}, args...), &out, &errOut)
	return out.String(), errOut.String(), code
}

func (e *testEnv) login() {
	e.t.Helper()
	_, stderr, code := e.run("auth", "login", testKey)
	require.Equal(e.t, ExitSuccess, code, stderr)
}

func decodeList(t *testing.T, out string) ConversationListData {
	t.Helper()
	var resp struct {
		Success bool                 `json:"success"`
		Data    ConversationListData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.True(t, resp.Success)
	return resp.Data
}

// =============================================================================
// EXIT CODES
// =============================================================================

func TestGetExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, ExitSuccess},
		{"generic", errors.New("boom"), ExitGeneralError},
		{"cli validation", &ValidationError{Field: "format"}, ExitUsageError},
		{"session validation", &session.ValidationError{Field: "title"}, ExitUsageError},
		{"empty key", credential.ErrEmptyKey, ExitUsageError},
		{"bad key", fmt.Errorf("login: %w", credential.ErrInvalidKeyFormat), ExitUsageError},
		{"tty", &TTYRequiredError{Operation: "chat"}, ExitUsageError},
		{"config", fmt.Errorf("invalid config: %w", config.ValidateErrors{{Field: "log.level"}}), ExitConfigError},
		{"missing credential", cloud.ErrMissingCredential, ExitAuthError},
		{"not logged in", ErrNotLoggedIn, ExitAuthError},
		{"unauthorized", &cloud.UpstreamError{Status: http.StatusUnauthorized, Message: "bad key"}, ExitAuthError},
		{"upstream", &cloud.UpstreamError{Status: http.StatusInternalServerError, Message: "down"}, ExitUpstreamError},
		{"transport", &cloud.TransportError{Err: errors.New("refused")}, ExitNetworkError},
		{"not found", storage.ErrConversationNotFound, ExitNotFoundError},
		{"not found wrapper", &NotFoundError{Resource: "conversation", ID: "x"}, ExitNotFoundError},
		{"parse", &storage.ParseError{Key: "chats", Err: errors.New("eof")}, ExitStorageError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, GetExitCode(tt.err))
		})
	}
}

func TestDisplayError(t *testing.T) {
	var buf bytes.Buffer
	DisplayError(&buf, &NotFoundError{Resource: "conversation", ID: "conv_1"}, false)
	require.Equal(t, "[ERROR] conversation not found: conv_1\n", buf.String())

	buf.Reset()
	DisplayError(&buf, &cloud.UpstreamError{Status: 429, Message: "slow down"}, true)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &out))
	require.Equal(t, false, out["success"])
	require.Equal(t, "upstream_error", out["error_type"])
	require.EqualValues(t, 429, out["status"])
	require.EqualValues(t, ExitUpstreamError, out["exit_code"])
}

func TestValidationError_Message(t *testing.T) {
	err := ErrUnsupportedFormat("pdf", export.Formats)
	require.Contains(t, err.Error(), "invalid format")
	require.Contains(t, err.Error(), "(got: pdf)")
	require.Contains(t, err.Error(), "Example:")
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func TestJSONResponse(t *testing.T) {
	orig := nowFunc
	nowFunc = func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) }
	t.Cleanup(func() { nowFunc = orig })

	var buf bytes.Buffer
	require.NoError(t, OutputJSON(&buf, "version", map[string]string{"version": "1"}))
	require.JSONEq(t, `{"success":true,"data":{"version":"1"},"error":null,"timestamp":"2025-01-02T03:04:05Z","command":"version"}`, buf.String())

	buf.Reset()
	require.NoError(t, NewJSONErrorResponse("ask", errors.New("nope")).Write(&buf))
	require.JSONEq(t, `{"success":false,"data":null,"error":"nope","timestamp":"2025-01-02T03:04:05Z","command":"ask"}`, buf.String())
}

func TestWrapText(t *testing.T) {
	require.Equal(t, "one two\nthree", WrapText("one two three", 8))
	require.Equal(t, "short", WrapText("short", 80))
}

func TestParseSlashCommand(t *testing.T) {
	tests := []struct {
		in, name, rest string
	}{
		{"/help", "/help", ""},
		{"/LOAD conv_1", "/load", "conv_1"},
		{"  /rename   My new title  ", "/rename", "My new title"},
		{"/attach ./a b.png", "/attach", "./a b.png"},
	}
	for _, tt := range tests {
		name, rest := parseSlashCommand(tt.in)
		require.Equal(t, tt.name, name, tt.in)
		require.Equal(t, tt.rest, rest, tt.in)
	}
}

func TestCompleteSlashCommand(t *testing.T) {
	require.Equal(t, []string{"/list", "/load", "/logout"}, completeSlashCommand("/l"))
	require.Nil(t, completeSlashCommand("hello"))
	require.Nil(t, completeSlashCommand("/load conv"))
}

func TestMediaTypeFor(t *testing.T) {
	require.Equal(t, "image/png", mediaTypeFor("shot.PNG"))
	require.Equal(t, "image/jpeg", mediaTypeFor("/tmp/photo.jpg"))
	require.Equal(t, "text/html", mediaTypeFor("page.html"))
	require.Equal(t, "application/pdf", mediaTypeFor("notes.pdf"))
	require.Equal(t, "application/octet-stream", mediaTypeFor("blob.unknownext"))
}

func TestLastAssistant(t *testing.T) {
	msgs := []model.Message{
		model.NewUserMessage("a"),
		model.NewAssistantMessage("b"),
		model.NewUserMessage("c"),
	}
	require.Equal(t, "b", lastAssistant(msgs))
	require.Empty(t, lastAssistant(nil))
}

func TestResolveTheme(t *testing.T) {
	require.Equal(t, "dark", resolveTheme("DARK"))
	require.Equal(t, "light", resolveTheme("light"))
	require.Equal(t, "notty", resolveTheme("notty"))
	require.Contains(t, []string{"dark", "light"}, resolveTheme("auto"))
}

// =============================================================================
// COMMANDS
// =============================================================================

func TestRunsREPL(t *testing.T) {
	tests := []struct {
		args []string
		want bool
	}{
		{nil, true},
		{[]string{"--ephemeral"}, true},
		{[]string{"--json", "--ephemeral"}, true},
		{[]string{"chat"}, true},
		{[]string{"--config", "turochat.toml", "chat", "conv_1"}, true},
		{[]string{"--ephemeral", "ask", "hi"}, false},
		{[]string{"history", "list"}, false},
		{[]string{"auth", "status"}, false},
		{[]string{"bogus"}, false},
	}
	for _, tt := range tests {
		t.Run(strings.Join(tt.args, " "), func(t *testing.T) {
			require.Equal(t, tt.want, runsREPL(NewRootCommand(), tt.args))
		})
	}
}

func TestAsk_RequiresLogin(t *testing.T) {
	env := newTestEnv(t, okHandler)

	_, stderr, code := env.run("ask", "Hello")
	require.Equal(t, ExitAuthError, code)
	require.Contains(t, stderr, "turochat auth login")
	require.Zero(t, env.requests.Load())
}

func TestAuth_LoginRejectsBadKey(t *testing.T) {
	env := newTestEnv(t, okHandler)

	_, _, code := env.run("auth", "login", "not-a-key")
	require.Equal(t, ExitUsageError, code)

	out, _, code := env.run("auth", "status", "--json")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, `"logged_in": false`)
}

func TestAuth_LoginStatusLogout(t *testing.T) {
	env := newTestEnv(t, okHandler)
	env.login()

	out, _, code := env.run("auth", "status", "--json")
	require.Equal(t, ExitSuccess, code)
	var resp struct {
		Data WhoAmIData `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.True(t, resp.Data.LoggedIn)
	require.Equal(t, credential.Mask(testKey), resp.Data.Key)
	require.Equal(t, credential.Fingerprint(testKey), resp.Data.Fingerprint)
	require.Equal(t, config.DriverFile, resp.Data.Driver)
	require.NotContains(t, out, testKey)

	_, _, code = env.run("auth", "logout")
	require.Equal(t, ExitSuccess, code)

	out, _, _ = env.run("auth", "status")
	require.Contains(t, out, "Not logged in.")
}

func TestAsk_ConversationLifecycle(t *testing.T) {
	env := newTestEnv(t, okHandler)
	env.login()

	out, stderr, code := env.run("ask", "Hello")
	require.Equal(t, ExitSuccess, code, stderr)
	require.Equal(t, "Hi there\n", out)
	require.EqualValues(t, 1, env.requests.Load())

	out, _, code = env.run("history", "list", "--json")
	require.Equal(t, ExitSuccess, code)
	list := decodeList(t, out)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "Hello", list.Conversations[0].Title)
	id := list.Conversations[0].ID
	require.True(t, strings.HasPrefix(id, "conv_"))

	// Continue the same conversation.
	out, _, code = env.run("ask", "--json", "--chat", id, "Again")
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, `"conversation_id": "`+id+`"`)

	out, _, code = env.run("history", "show", id)
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "Hello")
	require.Contains(t, out, "Again")
	require.Equal(t, 2, strings.Count(out, "Hi there"))

	_, _, code = env.run("history", "rename", id, "Greetings", "thread")
	require.Equal(t, ExitSuccess, code)

	out, _, code = env.run("history", "export", id, "--format", "json")
	require.Equal(t, ExitSuccess, code)
	var conv storage.Conversation
	require.NoError(t, json.Unmarshal([]byte(out), &conv))
	require.Equal(t, "Greetings thread", conv.Title)
	require.Len(t, conv.Messages, 4)

	out, _, code = env.run("history", "export", id)
	require.Equal(t, ExitSuccess, code)
	require.True(t, strings.HasPrefix(out, "# Greetings thread"))

	out, _, code = env.run("history", "search", "again", "--json")
	require.Equal(t, ExitSuccess, code)
	require.Equal(t, 1, decodeList(t, out).Count)

	_, _, code = env.run("history", "delete", id)
	require.Equal(t, ExitSuccess, code)

	out, _, _ = env.run("history", "list", "--json")
	require.Equal(t, 0, decodeList(t, out).Count)

	_, _, code = env.run("history", "show", id)
	require.Equal(t, ExitNotFoundError, code)
}

func TestAsk_UpstreamFailureKeepsMessage(t *testing.T) {
	env := newTestEnv(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"Incorrect API key provided","type":"invalid_request_error"}}`))
	})
	env.login()

	_, stderr, code := env.run("ask", "Hello")
	require.Equal(t, ExitAuthError, code)
	require.Contains(t, stderr, "Incorrect API key provided")

	out, _, _ := env.run("history", "list", "--json")
	list := decodeList(t, out)
	require.Equal(t, 1, list.Count)
	require.Equal(t, "Hello", list.Conversations[0].Title)
}

func TestAsk_MissingChatIsNotFound(t *testing.T) {
	env := newTestEnv(t, okHandler)
	env.login()

	_, _, code := env.run("ask", "--chat", "conv_missing", "Hello")
	require.Equal(t, ExitNotFoundError, code)
	require.Zero(t, env.requests.Load())
}

func TestHistory_PartitionedByKey(t *testing.T) {
	env := newTestEnv(t, okHandler)
	env.login()
	_, _, code := env.run("ask", "Hello")
	require.Equal(t, ExitSuccess, code)

	_, _, code = env.run("auth", "login", "sk-other-0000000000zzzz")
	require.Equal(t, ExitSuccess, code)

	out, _, _ := env.run("history", "list", "--json")
	require.Equal(t, 0, decodeList(t, out).Count)

	env.login()
	out, _, _ = env.run("history", "list", "--json")
	require.Equal(t, 1, decodeList(t, out).Count)
}

func TestHistory_ClearRequiresConfirmation(t *testing.T) {
	env := newTestEnv(t, okHandler)
	env.login()
	_, _, code := env.run("ask", "Hello")
	require.Equal(t, ExitSuccess, code)

	_, _, code = env.run("history", "clear")
	require.Equal(t, ExitUsageError, code)

	_, _, code = env.run("history", "clear", "--yes")
	require.Equal(t, ExitSuccess, code)

	out, _, _ := env.run("history", "list", "--json")
	require.Equal(t, 0, decodeList(t, out).Count)
}

func TestHistory_ExportUnsupportedFormat(t *testing.T) {
	env := newTestEnv(t, okHandler)

	_, stderr, code := env.run("history", "export", "conv_1", "--format", "pdf")
	require.Equal(t, ExitUsageError, code)
	require.Contains(t, stderr, "invalid format")
}

func TestHistory_ExportToFile(t *testing.T) {
	env := newTestEnv(t, okHandler)
	env.login()
	_, _, code := env.run("ask", "Hello")
	require.Equal(t, ExitSuccess, code)

	out, _, _ := env.run("history", "list", "--json")
	id := decodeList(t, out).Conversations[0].ID

	target := filepath.Join(t.TempDir(), "chat.md")
	_, _, code = env.run("history", "export", id, "-o", target)
	require.Equal(t, ExitSuccess, code)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Contains(t, string(data), "Hi there")

	dir := t.TempDir()
	out, _, code = env.run("history", "export", id, "--format", "html", "-o", dir)
	require.Equal(t, ExitSuccess, code)
	require.Contains(t, out, "Exported to "+dir)
	matches, err := filepath.Glob(filepath.Join(dir, "conversation_Hello_*.html"))
	require.NoError(t, err)
	require.Len(t, matches, 1)
}

func TestFlags_Overrides(t *testing.T) {
	env := newTestEnv(t, okHandler)

	t.Run("ephemeral does not persist", func(t *testing.T) {
		_, _, code := env.run("--ephemeral", "auth", "login", testKey)
		require.Equal(t, ExitSuccess, code)

		out, _, _ := env.run("auth", "status", "--json")
		require.Contains(t, out, `"logged_in": false`)
	})

	t.Run("driver override", func(t *testing.T) {
		dbPath := filepath.Join(t.TempDir(), "chat.db")
		args := []string{"--driver", "sqlite", "--storage-path", dbPath}

		_, _, code := env.run(append(args, "auth", "login", testKey)...)
		require.Equal(t, ExitSuccess, code)

		out, _, _ := env.run(append(args, "auth", "status", "--json")...)
		require.Contains(t, out, `"driver": "sqlite"`)
		require.Contains(t, out, `"logged_in": true`)
		require.FileExists(t, dbPath)
	})

	t.Run("invalid driver", func(t *testing.T) {
		_, _, code := env.run("--driver", "floppy", "auth", "status")
		require.Equal(t, ExitConfigError, code)
	})
}

func TestChat_RequiresTTY(t *testing.T) {
	if IsTTY() {
		t.Skip("stdin is a terminal")
	}
	env := newTestEnv(t, okHandler)
	_, _, code := env.run("chat")
	require.Equal(t, ExitUsageError, code)
}

func TestVersion(t *testing.T) {
	env := newTestEnv(t, okHandler)
	out, _, code := env.run("version")
	require.Equal(t, ExitSuccess, code)
	require.True(t, strings.HasPrefix(out, "turochat "+Version))
}

func TestConfigShow_RedactsPassword(t *testing.T) {
	env := newTestEnv(t, okHandler)
	t.Setenv("TUROCHAT_REDIS_PASSWORD", "hunter2")

	out, _, code := env.run("config", "show")
	require.Equal(t, ExitSuccess, code)
	require.NotContains(t, out, "hunter2")
	require.Contains(t, out, "********")
}

// =============================================================================
// REPL SLASH COMMANDS
// =============================================================================

func newTestSession(t *testing.T) (*chatSession, *bytes.Buffer) {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(okHandler))
	t.Cleanup(server.Close)

	cfg := config.Default()
	cfg.Storage.Driver = config.DriverMemory
	cfg.Cloud.BaseURL = server.URL
	cfg.Log.Level = "error"

	ctx := context.Background()
	app, err := NewApp(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { app.Close() })
	require.NoError(t, app.Credentials.Set(ctx, testKey))

	var out bytes.Buffer
	return &chatSession{app: app, renderer: &Renderer{width: 80}, out: &out, errOut: &out}, &out
}

func TestSlash_HelpAndQuit(t *testing.T) {
	s, out := newTestSession(t)
	ctx := context.Background()

	cont, err := s.handleSlashCommand(ctx, "/help")
	require.NoError(t, err)
	require.True(t, cont)
	require.Contains(t, out.String(), "/attach PATH")

	cont, err = s.handleSlashCommand(ctx, "/quit")
	require.NoError(t, err)
	require.False(t, cont)

	cont, err = s.handleSlashCommand(ctx, "/bogus")
	require.True(t, cont)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestSlash_ConversationNavigation(t *testing.T) {
	s, out := newTestSession(t)
	ctx := context.Background()
	ctl := s.app.Controller

	s.send(ctx, "Hello")
	require.Contains(t, out.String(), "Hi there")
	id := ctl.ConversationID()
	require.NotEmpty(t, id)

	_, err := s.handleSlashCommand(ctx, "/rename Morning chat")
	require.NoError(t, err)
	conv, err := s.app.Conversations.Get(ctx, id, testKey)
	require.NoError(t, err)
	require.Equal(t, "Morning chat", conv.Title)

	_, err = s.handleSlashCommand(ctx, "/rename   ")
	var sessErr *session.ValidationError
	require.ErrorAs(t, err, &sessErr)

	out.Reset()
	_, err = s.handleSlashCommand(ctx, "/list")
	require.NoError(t, err)
	require.Contains(t, out.String(), "Morning chat")

	_, err = s.handleSlashCommand(ctx, "/new")
	require.NoError(t, err)
	require.Empty(t, ctl.ConversationID())
	require.Empty(t, ctl.Messages())

	_, err = s.handleSlashCommand(ctx, "/rename Anything")
	require.ErrorAs(t, err, new(*ValidationError))

	out.Reset()
	_, err = s.handleSlashCommand(ctx, "/load "+id)
	require.NoError(t, err)
	require.Equal(t, id, ctl.ConversationID())
	require.Contains(t, out.String(), "Hello")

	_, err = s.handleSlashCommand(ctx, "/load conv_missing")
	var nf *NotFoundError
	require.ErrorAs(t, err, &nf)
	require.Equal(t, id, ctl.ConversationID())

	_, err = s.handleSlashCommand(ctx, "/load")
	require.ErrorAs(t, err, new(*ValidationError))

	_, err = s.handleSlashCommand(ctx, "/delete")
	require.NoError(t, err)
	require.Empty(t, ctl.ConversationID())
	_, err = s.app.Conversations.Get(ctx, id, testKey)
	require.ErrorIs(t, err, storage.ErrConversationNotFound)
}

func TestSlash_Attach(t *testing.T) {
	s, out := newTestSession(t)
	ctx := context.Background()
	dir := t.TempDir()

	pdf := filepath.Join(dir, "notes.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4"), 0600))
	_, err := s.handleSlashCommand(ctx, "/attach "+pdf)
	var verr *session.ValidationError
	require.ErrorAs(t, err, &verr)
	require.Empty(t, s.app.Controller.Messages())

	png := filepath.Join(dir, "pic.png")
	require.NoError(t, os.WriteFile(png, []byte{0x89, 'P', 'N', 'G'}, 0600))
	_, err = s.handleSlashCommand(ctx, "/attach "+png)
	require.NoError(t, err)

	msgs := s.app.Controller.Messages()
	require.Len(t, msgs, 2)
	require.True(t, msgs[0].IsImage())
	require.Equal(t, "pic.png", msgs[0].AttachmentName)
	require.Contains(t, out.String(), "[attachment: pic.png (image/png)]")
	require.Contains(t, out.String(), "Hi there")

	_, err = s.handleSlashCommand(ctx, "/attach "+filepath.Join(dir, "missing.png"))
	require.ErrorAs(t, err, new(*CommandError))
}

func TestSlash_Logout(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	cont, err := s.handleSlashCommand(ctx, "/logout")
	require.NoError(t, err)
	require.False(t, cont)

	_, ok, err := s.app.Credentials.Get(ctx)
	require.NoError(t, err)
	require.False(t, ok)
}
