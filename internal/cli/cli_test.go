package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// useTempStorage points every command at a fresh sqlite file and export dir.
func useTempStorage(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CLIENTCORE_STORAGE_DRIVER", "sqlite")
	t.Setenv("CLIENTCORE_SQLITE_PATH", filepath.Join(dir, "clients.db"))
	t.Setenv("CLIENTCORE_EXPORT_DRIVER", "fs")
	t.Setenv("CLIENTCORE_EXPORT_FS_ROOT", filepath.Join(dir, "exports"))
	t.Setenv("CLIENTCORE_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}

func addClient(t *testing.T, args ...string) int64 {
	t.Helper()
	out, _, err := run(t, "", append([]string{"--format", "json", "add"}, args...)...)
	require.NoError(t, err)
	var resp struct {
		Status string `json:"status"`
		Data   struct {
			ID int64 `json:"id"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	require.Equal(t, "ok", resp.Status)
	return resp.Data.ID
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"add", "edit", "move", "rm", "list", "show", "export", "exports", "import", "pipeline", "watch", "serve"} {
		t.Run(name, func(t *testing.T) {
			sub, _, err := cmd.Find([]string{name})
			require.NoError(t, err)
			assert.Equal(t, name, sub.Name())
		})
	}
	format := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, format)
	assert.Equal(t, "text", format.DefValue)
	assert.Equal(t, "v", cmd.PersistentFlags().Lookup("verbose").Shorthand)
}

func TestInvalidFormatIsCommandError(t *testing.T) {
	useTempStorage(t)
	_, _, err := run(t, "", "--format", "xml", "list")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestAddEditMoveShowRemove(t *testing.T) {
	useTempStorage(t)
	id := addClient(t, "--name", "Ann", "--email", "ann@example.com", "--phone", "555", "--tag", "vip", "--tag", "repeat,customer")

	out, _, err := run(t, "", "edit", itoa(id), "--notes", "prefers email")
	require.NoError(t, err)
	assert.Contains(t, out, "prefers email")
	assert.Contains(t, out, "vip, repeat,customer")

	out, _, err = run(t, "", "move", itoa(id), "proposal")
	require.NoError(t, err)
	assert.Contains(t, out, "is now Proposal")

	out, _, err = run(t, "", "--format", "json", "show", itoa(id))
	require.NoError(t, err)
	var shown struct {
		Data struct {
			Name  string   `json:"name"`
			Stage string   `json:"stage"`
			Notes string   `json:"notes"`
			Tags  []string `json:"tags"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &shown))
	assert.Equal(t, "Ann", shown.Data.Name)
	assert.Equal(t, "Proposal", shown.Data.Stage)
	assert.Equal(t, "prefers email", shown.Data.Notes)
	assert.Equal(t, []string{"vip", "repeat,customer"}, shown.Data.Tags)

	_, _, err = run(t, "", "rm", itoa(id))
	require.NoError(t, err)
	_, _, err = run(t, "", "show", itoa(id))
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestFailureExitCodes(t *testing.T) {
	useTempStorage(t)
	_, _, err := run(t, "", "add", "--name", "NoPhone", "--email", "a@b")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	_, _, err = run(t, "", "show", "not-a-number")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, _, err = run(t, "", "move", "1", "Lead")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	out, _, err := run(t, "", "--format", "json", "rm", "12345")
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"code":"not_found"`)

	_, _, err = run(t, "", "list", "--stage", "Won")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	t.Setenv("CLIENTCORE_STORAGE_DRIVER", "redis")
	_, _, err = run(t, "", "list")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestListAndPipeline(t *testing.T) {
	useTempStorage(t)
	addClient(t, "--name", "Ann", "--email", "ann@example.com", "--phone", "1")
	addClient(t, "--name", "Bob", "--email", "bob@example.com", "--phone", "2")
	addClient(t, "--name", "Cid", "--email", "cid@example.com", "--phone", "3", "--stage", "Closed")

	out, _, err := run(t, "", "list", "--stage", "lead")
	require.NoError(t, err)
	assert.Contains(t, out, "Ann")
	assert.Contains(t, out, "Bob")
	assert.NotContains(t, out, "Cid")

	out, _, err = run(t, "", "list", "-q", "CID")
	require.NoError(t, err)
	assert.Contains(t, out, "cid@example.com")
	assert.NotContains(t, out, "Ann")

	out, _, err = run(t, "", "pipeline", "--width", "4")
	require.NoError(t, err)
	assert.Contains(t, out, "Lead      | #### 2")
	assert.Contains(t, out, "Closed    | ## 1")
	assert.Contains(t, out, "total 3")

	out, _, err = run(t, "", "--format", "json", "pipeline")
	require.NoError(t, err)
	assert.Contains(t, out, `"total":3`)
}

func TestExportImportRoundTrip(t *testing.T) {
	dir := useTempStorage(t)
	addClient(t, "--name", `Jane "The Closer" Doe`, "--email", "jane@example.com", "--phone", "555", "--tag", "vip", "--tag", "repeat,customer")

	out, _, err := run(t, "", "export")
	require.NoError(t, err)
	assert.Contains(t, out, `"Jane ""The Closer"" Doe"`)
	assert.Contains(t, out, `"vip;repeat,customer"`)

	file := filepath.Join(dir, "clients.csv")
	_, _, err = run(t, "", "export", "--out", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, strings.TrimSuffix(out, "\n"), string(data))

	out, _, err = run(t, "", "export", "--to-blob")
	require.NoError(t, err)
	assert.Contains(t, out, "stored exports/clients-")
	entries, err := os.ReadDir(filepath.Join(dir, "exports", "exports"))
	require.NoError(t, err)
	assert.NotEmpty(t, entries)

	out, _, err = run(t, "", "import", file)
	require.NoError(t, err)
	assert.Contains(t, out, "imported 1 clients")

	out, _, err = run(t, string(data)+"\n\"bad\",\"row\"", "--format", "json", "import", "-")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"inserted":1`)
	assert.Contains(t, out, `"line":3`)

	out, _, err = run(t, "", "--format", "json", "list")
	require.NoError(t, err)
	assert.Equal(t, 3, strings.Count(out, `"name":"Jane \"The Closer\" Doe"`))

	_, _, err = run(t, "", "export", "--out", file, "--to-blob")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	_, _, err = run(t, "", "import", filepath.Join(dir, "missing.csv"))
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestWatchRequiresNotifyingDriver(t *testing.T) {
	useTempStorage(t)
	_, _, err := run(t, "", "watch")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "change notification")
}

func TestTraceWritesSpans(t *testing.T) {
	useTempStorage(t)
	_, errOut, err := run(t, "", "--trace", "add", "--name", "Ann", "--email", "a@b", "--phone", "1")
	require.NoError(t, err)
	assert.Contains(t, errOut, `"operation":"insert"`)
}

func itoa(id int64) string {
	b, _ := json.Marshal(id)
	return string(b)
}

func TestStoredExportCommands(t *testing.T) {
	dir := useTempStorage(t)
	addClient(t, "--name", "Ann", "--email", "ann@example.com", "--phone", "555")

	out, _, err := run(t, "", "--format", "json", "export", "--to-blob")
	require.NoError(t, err)
	var stored struct {
		Data struct {
			Key string `json:"key"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &stored), out)
	name := filepath.Base(stored.Data.Key)
	require.True(t, strings.HasPrefix(name, "clients-"), name)

	out, _, err = run(t, "", "exports", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, name)

	out, _, err = run(t, "", "exports", "get", name)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "name,email,phone,tags,stage,notes,created\n\"Ann\""), out)

	file := filepath.Join(dir, "copy.csv")
	_, _, err = run(t, "", "exports", "get", name, "--out", file)
	require.NoError(t, err)
	data, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))

	out, _, err = run(t, "", "exports", "link", name)
	require.NoError(t, err)
	assert.Contains(t, out, stored.Data.Key)
	_, _, err = run(t, "", "exports", "link", name, "--expiry", "0s")
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	out, _, err = run(t, "", "exports", "rm", name)
	require.NoError(t, err)
	assert.Contains(t, out, "deleted "+name)

	out, _, err = run(t, "", "--format", "json", "exports", "rm", name)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `"not_found"`)
	_, _, err = run(t, "", "exports", "get", "../escape.csv")
	assert.Equal(t, ExitFailure, GetExitCode(err))
}
