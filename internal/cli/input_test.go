package cli

import (
	"bufio"
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stubTerminal(t *testing.T, terminal bool, pw string, err error) {
	t.Helper()
	origTerm, origRead := stdinIsTerminal, readPassword
	t.Cleanup(func() { stdinIsTerminal, readPassword = origTerm, origRead })

	stdinIsTerminal = func() bool { return terminal }
	readPassword = func(int) ([]byte, error) { return []byte(pw), err }
}

func unsetPasswordEnv(t *testing.T) {
	t.Helper()
	t.Setenv(PasswordEnv, "")
	require.NoError(t, os.Unsetenv(PasswordEnv))
}

func TestGetPassword_FromEnv(t *testing.T) {
	t.Setenv(PasswordEnv, "from-env")
	var out bytes.Buffer

	pw, err := GetPassword(bufio.NewReader(strings.NewReader("")), &out, "Master password")
	require.NoError(t, err)
	assert.Equal(t, "from-env", string(pw))
	assert.Empty(t, out.String(), "no prompt when the environment provides the password")
}

func TestGetPassword_Terminal(t *testing.T) {
	unsetPasswordEnv(t)
	stubTerminal(t, true, "typed", nil)
	var out bytes.Buffer

	pw, err := GetPassword(bufio.NewReader(strings.NewReader("")), &out, "Master password")
	require.NoError(t, err)
	assert.Equal(t, "typed", string(pw))
	assert.Equal(t, "Master password: \n", out.String())
}

func TestGetPassword_TerminalError(t *testing.T) {
	unsetPasswordEnv(t)
	boom := errors.New("boom")
	stubTerminal(t, true, "", boom)

	_, err := GetPassword(bufio.NewReader(strings.NewReader("")), &bytes.Buffer{}, "Master password")
	assert.ErrorIs(t, err, boom)
}

func TestGetPassword_Piped(t *testing.T) {
	unsetPasswordEnv(t)
	stubTerminal(t, false, "", nil)
	in := bufio.NewReader(strings.NewReader("first\r\nsecond"))

	pw, err := GetPassword(in, &bytes.Buffer{}, "p")
	require.NoError(t, err)
	assert.Equal(t, "first", string(pw))

	pw, err = GetPassword(in, &bytes.Buffer{}, "p")
	require.NoError(t, err)
	assert.Equal(t, "second", string(pw), "last line without newline")

	_, err = GetPassword(in, &bytes.Buffer{}, "p")
	assert.Error(t, err, "input exhausted")
}

func TestGetNewPassword(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{name: "matching", input: "s3cret\ns3cret\n", want: "s3cret"},
		{name: "mismatch", input: "s3cret\nother\n", wantErr: errPasswordMismatch},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetPasswordEnv(t)
			stubTerminal(t, false, "", nil)

			pw, err := GetNewPassword(bufio.NewReader(strings.NewReader(tt.input)), &bytes.Buffer{})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, string(pw))
		})
	}
}

func TestGetNewPassword_Empty(t *testing.T) {
	unsetPasswordEnv(t)
	stubTerminal(t, false, "", nil)

	_, err := GetNewPassword(bufio.NewReader(strings.NewReader("\n")), &bytes.Buffer{})
	assert.Error(t, err)
}
