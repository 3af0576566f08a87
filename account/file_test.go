package account

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Zereker/cattlechat/logging"
)

func openTestFile(t *testing.T, content string) (*File, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "accounts")
	if content != "" {
		require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	}
	f, err := OpenFile(path, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f, path
}

func TestFile_Directory(t *testing.T) {
	f, _ := openTestFile(t, "")
	exerciseDirectory(t, f)
}

func TestFile_LoadsExisting(t *testing.T) {
	pw := HashPassword("pw")
	f, _ := openTestFile(t, "# comment without delimiter\nbob;"+pw.String()+"\n")

	r, err := f.Login(context.Background(), "bob", Proof(1, 2, pw), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, r)
}

func TestFile_DuplicateNameKeepsFirst(t *testing.T) {
	first, second := HashPassword("first"), HashPassword("second")
	f, _ := openTestFile(t, "bob;"+first.String()+"\nbob;"+second.String()+"\n")

	r, err := f.Login(context.Background(), "bob", Proof(1, 2, first), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, r)

	r, err = f.Login(context.Background(), "bob", Proof(1, 2, second), 1, 2)
	require.NoError(t, err)
	assert.Equal(t, LoginIncorrectPassword, r)
}

func TestFile_CreateAppends(t *testing.T) {
	f, path := openTestFile(t, "")
	pw := HashPassword("pw")

	r, err := f.Create(context.Background(), "carol", pw)
	require.NoError(t, err)
	require.Equal(t, CreateSuccess, r)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "carol;"+pw.String()+"\n", string(data))
}

func TestFile_RejectsBadHash(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts")
	require.NoError(t, os.WriteFile(path, []byte("bob;nothex\n"), 0o600))

	_, err := OpenFile(path, logging.Discard())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "line 1"), err.Error())
}

func TestFile_ReloadsOnExternalEdit(t *testing.T) {
	f, path := openTestFile(t, "")
	pw := HashPassword("pw")

	fh, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = fh.WriteString("dave;" + pw.String() + "\n")
	require.NoError(t, err)
	require.NoError(t, fh.Close())

	assert.Eventually(t, func() bool {
		r, err := f.Login(context.Background(), "dave", Proof(3, 4, pw), 3, 4)
		return err == nil && r == LoginSuccess
	}, 5*time.Second, 20*time.Millisecond)
}

func TestFile_ReloadKeepsAccountsOnError(t *testing.T) {
	pw := HashPassword("pw")
	f, path := openTestFile(t, "erin;"+pw.String()+"\n")

	require.NoError(t, os.WriteFile(path, []byte("erin;broken\n"), 0o600))
	assert.Error(t, f.Reload())

	r, err := f.Login(context.Background(), "erin", Proof(1, 1, pw), 1, 1)
	require.NoError(t, err)
	assert.Equal(t, LoginSuccess, r)
}
