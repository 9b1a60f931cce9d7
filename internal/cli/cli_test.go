package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns stdout and stderr.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	var out, errOut bytes.Buffer
	cmd := NewRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

// fileStore returns flags selecting a fresh file store.
func fileStore(t *testing.T, extra ...string) []string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "prefs.yaml")
	return append([]string{"--backend", "file", "--path", path}, extra...)
}

func TestPutGet(t *testing.T) {
	store := fileStore(t)

	out, _, err := execute(t, append([]string{"put", "key1", "hoge"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "put key1\n", out)

	_, _, err = execute(t, append([]string{"put", "key2", "68", "--type", "int"}, store...)...)
	require.NoError(t, err)

	out, _, err = execute(t, append([]string{"get", "key1"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "hoge\n", out)

	out, _, err = execute(t, append([]string{"get", "key2", "-t", "int"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "68\n", out)
}

func TestPutStringSet(t *testing.T) {
	store := fileStore(t)

	_, _, err := execute(t, append([]string{"put", "tags", "write", "read", "write", "--type", "string-set"}, store...)...)
	require.NoError(t, err)

	out, _, err := execute(t, append([]string{"get", "tags", "--type", "StringSet"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "read,write\n", out)

	out, _, err = execute(t, append([]string{"list"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "tags=[\"read\",\"write\"]\n", out)
}

func TestGetMissing(t *testing.T) {
	store := fileStore(t)

	_, stderr, err := execute(t, append([]string{"get", "nope"}, store...)...)
	require.Error(t, err)
	assert.Equal(t, ExitNotFound, GetExitCode(err))
	assert.Contains(t, stderr, ErrCodeNotFound)

	out, _, err := execute(t, append([]string{"get", "nope", "--default", "fallback"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "fallback\n", out)
}

func TestGetDecodeErrorIsNotDefault(t *testing.T) {
	store := fileStore(t)

	_, _, err := execute(t, append([]string{"put", "key1", "hoge"}, store...)...)
	require.NoError(t, err)

	out, stderr, err := execute(t, append([]string{"get", "key1", "--type", "int", "--default", "7"}, store...)...)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, stderr, ErrCodeDecode)
	assert.Empty(t, out)
}

func TestBadArguments(t *testing.T) {
	store := fileStore(t)

	tests := []struct {
		name string
		args []string
	}{
		{"UnknownType", []string{"put", "k", "v", "--type", "decimal"}},
		{"NotAnInt", []string{"put", "k", "many", "--type", "int"}},
		{"TwoValues", []string{"put", "k", "a", "b"}},
		{"IntOverflow", []string{"put", "k", "3000000000", "--type", "int"}},
		{"BadDefault", []string{"get", "k", "--type", "bool", "--default", "maybe"}},
		{"ClearWithoutYes", []string{"clear"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, stderr, err := execute(t, append(tt.args, store...)...)
			require.Error(t, err)
			assert.NotEqual(t, ExitSuccess, GetExitCode(err))
			assert.Contains(t, stderr, "Error [")
		})
	}
}

func TestJSONOutput(t *testing.T) {
	store := fileStore(t, "--format", "json")

	_, _, err := execute(t, append([]string{"put", "key3", "true", "-t", "bool"}, store...)...)
	require.NoError(t, err)

	out, _, err := execute(t, append([]string{"get", "key3", "-t", "bool"}, store...)...)
	require.NoError(t, err)

	var resp struct {
		Status string    `json:"status"`
		Data   GetResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "key3", resp.Data.Key)
	assert.Equal(t, "bool", resp.Data.Type)
	assert.Equal(t, true, resp.Data.Value)

	out, _, err = execute(t, append([]string{"get", "missing"}, store...)...)
	require.Error(t, err)

	var errResp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &errResp))
	assert.Equal(t, "error", errResp.Status)
	require.NotNil(t, errResp.Error)
	assert.Equal(t, ErrCodeNotFound, errResp.Error.Code)
}

func TestInvalidFormat(t *testing.T) {
	_, stderr, err := execute(t, append([]string{"list", "--format", "xml"}, fileStore(t)...)...)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "invalid format")
}

func TestDemo(t *testing.T) {
	out, _, err := execute(t, append([]string{"demo"}, fileStore(t)...)...)
	require.NoError(t, err)

	assert.Contains(t, out, "key1 (string) = hoge\n")
	assert.Contains(t, out, "key2 (int) = 68\n")
	assert.Contains(t, out, "key3 (bool) = true\n")
	assert.Contains(t, out, "nope (string) = fallback [default]\n")
	// The store only holds base64 text
	assert.Contains(t, out, "a2V5MQ===aG9nZQ==")
	assert.Contains(t, out, "a2V5Mg===Njg=")
	assert.Contains(t, out, "a2V5Mw===dHJ1ZQ==")
}

func TestRemoveAndClear(t *testing.T) {
	store := fileStore(t)

	_, _, err := execute(t, append([]string{"demo"}, store...)...)
	require.NoError(t, err)

	out, _, err := execute(t, append([]string{"rm", "key1", "key2"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "rm key1 key2\n", out)

	out, _, err = execute(t, append([]string{"list"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "key3=true\n", out)

	_, _, err = execute(t, append([]string{"clear", "--yes"}, store...)...)
	require.NoError(t, err)

	out, _, err = execute(t, append([]string{"list", "--raw"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "\n", out)
}

func TestAsyncPutIsWrittenBeforeExit(t *testing.T) {
	store := fileStore(t)

	_, _, err := execute(t, append([]string{"put", "key1", "hoge", "--async"}, store...)...)
	require.NoError(t, err)

	out, _, err := execute(t, append([]string{"get", "key1"}, store...)...)
	require.NoError(t, err)
	assert.Equal(t, "hoge\n", out)
}

func TestEncryptedCodecs(t *testing.T) {
	for _, name := range []string{"aes", "chacha"} {
		t.Run(name, func(t *testing.T) {
			store := fileStore(t, "--codec", name, "--secret", "correct horse")

			_, _, err := execute(t, append([]string{"put", "key1", "hoge"}, store...)...)
			require.NoError(t, err)

			out, _, err := execute(t, append([]string{"get", "key1"}, store...)...)
			require.NoError(t, err)
			assert.Equal(t, "hoge\n", out)

			raw, _, err := execute(t, append([]string{"list", "--raw"}, store...)...)
			require.NoError(t, err)
			assert.NotContains(t, raw, "key1")
			assert.NotContains(t, raw, "hoge")

			// Another secret derives other keys: the entry is simply not found
			other := append([]string{"get", "key1", "--default", "none"}, store...)
			other = append(other, "--secret", "battery staple")
			out, _, err = execute(t, other...)
			require.NoError(t, err)
			assert.Equal(t, "none\n", out)
		})
	}

	t.Run("MissingSecret", func(t *testing.T) {
		_, stderr, err := execute(t, append([]string{"list"}, fileStore(t, "--codec", "aes")...)...)
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, stderr, "needs a secret")
	})
}

func TestConfigSources(t *testing.T) {
	dir := t.TempDir()
	storePath := filepath.Join(dir, "store.yaml")
	configPath := filepath.Join(dir, "prefs.toml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
backend = "file"
path = "`+storePath+`"
codec = "hex"
`), 0o600))

	_, _, err := execute(t, "put", "key1", "hoge", "--config", configPath)
	require.NoError(t, err)

	raw, _, err := execute(t, "list", "--raw", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "6b657931=686f6765\n", raw)

	t.Run("EnvBeatsFile", func(t *testing.T) {
		t.Setenv("PREFS_CODEC", "identity")
		raw, _, err := execute(t, "list", "--raw", "--config", configPath)
		require.NoError(t, err)
		assert.Equal(t, "6b657931=686f6765\n", raw, "--raw is codec independent")

		out, _, err := execute(t, "list", "--config", configPath)
		require.NoError(t, err)
		assert.Equal(t, "6b657931=686f6765\n", out)
	})

	t.Run("FlagBeatsEnv", func(t *testing.T) {
		t.Setenv("PREFS_CODEC", "identity")
		out, _, err := execute(t, "get", "key1", "--config", configPath, "--codec", "hex")
		require.NoError(t, err)
		assert.Equal(t, "hoge\n", out)
	})

	t.Run("MissingConfigFile", func(t *testing.T) {
		_, stderr, err := execute(t, "list", "--config", filepath.Join(dir, "nope.toml"))
		require.Error(t, err)
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, stderr, ErrCodeConfig)
	})
}

func TestUnknownBackend(t *testing.T) {
	_, stderr, err := execute(t, "list", "--backend", "etcd")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, stderr, "unknown backend")
}

func TestPostgresNeedsURL(t *testing.T) {
	_, stderr, err := execute(t, "list", "--backend", "postgres")
	require.Error(t, err)
	assert.Contains(t, stderr, "database.url")
}

func TestWatchStopsAfterTimeout(t *testing.T) {
	start := time.Now()
	out, _, err := execute(t, append([]string{"watch", "--for", "50ms"}, fileStore(t)...)...)
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Less(t, time.Since(start), 5*time.Second)
}
