package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shaharia-lab/notifyd/internal/config"
	"github.com/shaharia-lab/notifyd/internal/notification"
	"github.com/shaharia-lab/notifyd/internal/storage"
)

func TestParseContext(t *testing.T) {
	got, err := parseContext([]string{"domain=example.com", "note=a=b", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"domain": "example.com", "note": "a=b", "empty": ""}, got)

	for _, bad := range []string{"novalue", "=x", " =x"} {
		_, err := parseContext([]string{bad})
		assert.Error(t, err, bad)
	}
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}

func TestConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{" yes \n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tt := range tests {
		var out bytes.Buffer
		assert.Equal(t, tt.want, confirm(strings.NewReader(tt.input), &out, "Proceed?"), "input %q", tt.input)
		assert.Equal(t, "Proceed? [y/N] ", out.String())
	}
}

func TestLoadTemplateFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
templates:
  - code: welcome
    name: welcome sms
    channels: [sms]
    variables: [name]
    content:
      sms: "Hi {{name}}"
`), 0600))

	templates, err := loadTemplateFile(path)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "welcome", templates[0].Code)
	assert.Equal(t, []string{"sms"}, templates[0].Channels)
	assert.Equal(t, "Hi {{name}}", templates[0].Content["sms"])

	empty := filepath.Join(t.TempDir(), "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("templates: []\n"), 0600))
	_, err = loadTemplateFile(empty)
	assert.Error(t, err)

	_, err = loadTemplateFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

type smsGateway struct {
	mu   sync.Mutex
	sent []map[string]string
}

func (g *smsGateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]string
	_ = json.NewDecoder(r.Body).Decode(&body)
	g.mu.Lock()
	g.sent = append(g.sent, body)
	g.mu.Unlock()
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"id":"gw-1"}`))
}

func runCLI(t *testing.T, cfg *config.AppConfig, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd(cfg)
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--no-color"}, args...))
	err := root.Execute()
	return out.String(), err
}

func TestCLI_EndToEnd(t *testing.T) {
	gw := &smsGateway{}
	srv := httptest.NewServer(gw)
	t.Cleanup(srv.Close)

	dataDir := t.TempDir()
	cfg := &config.AppConfig{
		DataDir:      dataDir,
		DispatchFile: filepath.Join(dataDir, "dispatch.yaml"),
		LogLevel:     "info",
		Workers:      2,
		MaxAttempts:  1,
	}
	cfg.SMS.GatewayURL = srv.URL

	tmplFile := filepath.Join(t.TempDir(), "templates.yaml")
	require.NoError(t, os.WriteFile(tmplFile, []byte(`
templates:
  - code: welcome
    name: welcome
    channels: [mail, sms]
    variables: [name]
    content:
      mail: "Welcome {{name}}"
      sms: "Hi {{name}}"
`), 0600))

	out, err := runCLI(t, cfg, "templates", "import", tmplFile)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1 template(s).")

	out, err = runCLI(t, cfg, "users", "add", "--name", "Ada", "--email", "ada@example.com", "--mobile", "+15550100")
	require.NoError(t, err)
	assert.Contains(t, out, "Created user 1 (Ada).")

	// mail has no SMTP server configured, so only sms survives the guards.
	out, err = runCLI(t, cfg, "send", "--code", "welcome", "--id", "1", "--ctx", "name=Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "sms")
	assert.Contains(t, out, "sent")
	assert.NotContains(t, out, "mail")

	gw.mu.Lock()
	require.Len(t, gw.sent, 1)
	assert.Equal(t, "Hi Ada", gw.sent[0]["text"])
	assert.Equal(t, "+15550100", gw.sent[0]["to"])
	gw.mu.Unlock()

	out, err = runCLI(t, cfg, "deliveries", "--status", "sent")
	require.NoError(t, err)
	assert.Contains(t, out, "gateway id gw-1")

	out, err = runCLI(t, cfg, "templates", "disable", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "Template 1 is now disabled.")

	out, err = runCLI(t, cfg, "send", "--code", "welcome", "--id", "1", "--ctx", "name=Ada")
	require.NoError(t, err)
	assert.Contains(t, out, "No channel accepted the notification.")
}

func TestSentDeliveries_IgnoresEarlierRecords(t *testing.T) {
	ctx := context.Background()
	db, _, err := storage.NewSQLiteDB(filepath.Join(t.TempDir(), "notifyd.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	store := storage.NewSQLiteDeliveryStore(db)

	last, err := lastDeliveryID(ctx, store)
	require.NoError(t, err)
	assert.Zero(t, last)

	earlier := &storage.DeliveryRecord{NotifiableType: "user", NotifiableID: 1, TemplateID: 1, Channel: "sms", Status: storage.DeliverySent, Message: "gateway id gw-1"}
	require.NoError(t, store.CreateDelivery(ctx, earlier))

	last, err = lastDeliveryID(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, earlier.ID, last)

	intent := notification.Intent{Code: "welcome", NotifiableType: "user", NotifiableID: 1}

	// The job was skipped by the worker and left no record.
	records, err := sentDeliveries(ctx, store, intent, last, 1)
	require.NoError(t, err)
	assert.Empty(t, records)

	fresh := &storage.DeliveryRecord{NotifiableType: "user", NotifiableID: 1, TemplateID: 1, Channel: "mail", Status: storage.DeliveryFailed, Message: "smtp down"}
	require.NoError(t, store.CreateDelivery(ctx, fresh))
	other := &storage.DeliveryRecord{NotifiableType: "user", NotifiableID: 2, TemplateID: 1, Channel: "mail", Status: storage.DeliverySent}
	require.NoError(t, store.CreateDelivery(ctx, other))

	records, err = sentDeliveries(ctx, store, intent, last, 2)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, fresh.ID, records[0].ID)
}

func TestCLI_SendRejectsInvalidIntent(t *testing.T) {
	dataDir := t.TempDir()
	cfg := &config.AppConfig{DataDir: dataDir, DispatchFile: filepath.Join(dataDir, "dispatch.yaml")}

	_, err := runCLI(t, cfg, "send", "--code", "welcome", "--id", "0")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "notifiable_id"), err.Error())
}

func TestCLI_UsersAddRejectsUnknownRole(t *testing.T) {
	cfg := &config.AppConfig{DataDir: t.TempDir()}
	_, err := runCLI(t, cfg, "users", "add", "--name", "Ada", "--role", "root")
	assert.Error(t, err)
}
