package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quickcart/usersync/internal/eventbus"
)

const createdYAML = `
type: user.created
object: event
data:
  id: user_1
  first_name: Ada
  last_name: null
  email_addresses:
    - email_address: ada@example.com
  image_url: https://img.example.com/ada.png
`

func writeEvent(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return stdout.String(), err
}

func decodeResponse(t *testing.T, out string) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	return resp
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "usersyncctl", cmd.Use)

	for _, name := range []string{"reconcile", "replay", "check"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}

	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
}

func TestInvalidFormat(t *testing.T) {
	t.Setenv("DATASTORE", "memory")
	_, err := execute(t, "check", "--format", "xml")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReconcile_AppliesEvent(t *testing.T) {
	t.Setenv("DATASTORE", "memory")
	path := writeEvent(t, "created.yaml", createdYAML)

	out, err := execute(t, "reconcile", "--file", path, "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	assert.Equal(t, "ok", resp.Status)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "user_1", data["userId"])
	assert.Equal(t, "created", data["outcome"])
	assert.Equal(t, "memory", data["backend"])
}

func TestReconcile_TextOutput(t *testing.T) {
	t.Setenv("DATASTORE", "memory")
	path := writeEvent(t, "deleted.json", `{"type":"user.deleted","data":{"id":"user_2"}}`)

	out, err := execute(t, "reconcile", "-f", path)
	require.NoError(t, err)
	assert.Equal(t, "user.deleted user_2: not_found (memory)\n", out)
}

func TestReconcile_RejectsInvalidEvents(t *testing.T) {
	t.Setenv("DATASTORE", "memory")

	missingEmail := writeEvent(t, "updated.json", `{"type":"user.updated","data":{"id":"user_3","email_addresses":[]}}`)
	out, err := execute(t, "reconcile", "--file", missingEmail, "--format", "json")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	resp := decodeResponse(t, out)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "E_validation", resp.Error.Code)

	unknown := writeEvent(t, "session.json", `{"type":"session.created","data":{"id":"sess_1"}}`)
	_, err = execute(t, "reconcile", "--file", unknown)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, err = execute(t, "reconcile", "--file", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReplay_SendsToEventBus(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/e/test-key", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		ids := make([]string, len(got))
		for i, ev := range got {
			ids[i], _ = ev["id"].(string)
		}
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(map[string]any{"ids": ids, "status": http.StatusOK}))
	}))
	defer srv.Close()

	t.Setenv("DATASTORE", "memory")
	t.Setenv("EVENTBUS_URL", srv.URL)
	t.Setenv("EVENTBUS_EVENT_KEY", "test-key")
	t.Setenv("EVENTBUS_DEV", "false")
	path := writeEvent(t, "created.yaml", createdYAML)

	out, err := execute(t, "replay", "--file", path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, eventbus.EventUserCreated, got[0]["name"])
	id, _ := got[0]["id"].(string)
	require.NotEmpty(t, id)
	assert.True(t, strings.HasPrefix(out, "clerk/user.created user_1 queued: "+id))
}

func TestReplay_RequiresEventKey(t *testing.T) {
	t.Setenv("DATASTORE", "memory")
	t.Setenv("EVENTBUS_EVENT_KEY", "")
	t.Setenv("EVENTBUS_DEV", "false")
	path := writeEvent(t, "created.yaml", createdYAML)

	_, err := execute(t, "replay", "--file", path)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.ErrorIs(t, err, eventbus.ErrMissingEventKey)
}

func TestCheck_MemoryStore(t *testing.T) {
	t.Setenv("DATASTORE", "memory")

	out, err := execute(t, "check", "--format", "json")
	require.NoError(t, err)

	resp := decodeResponse(t, out)
	data := resp.Data.(map[string]any)
	assert.Equal(t, "success", data["status"])
	assert.Equal(t, "memory", data["backend"])
	assert.Equal(t, []any{"users"}, data["collections"])
}

func TestReadEnvelope_YAMLNull(t *testing.T) {
	envelope, err := readEnvelope("-", strings.NewReader(createdYAML))
	require.NoError(t, err)

	assert.Equal(t, "user.created", envelope.Type)
	require.NotNil(t, envelope.Data.FirstName)
	assert.Equal(t, "Ada", *envelope.Data.FirstName)
	assert.Nil(t, envelope.Data.LastName)
	assert.Equal(t, "ada@example.com", envelope.Data.EmailAddresses[0].EmailAddress)

	_, err = readEnvelope("-", strings.NewReader(""))
	assert.Error(t, err)
}
