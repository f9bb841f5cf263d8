package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// PasswordEnv, when set, is used instead of prompting. Meant for the daemon
// running without a terminal.
const PasswordEnv = "STORAGECRYPT_PASSWORD"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// stdinIsTerminal is a test seam for term.IsTerminal on stdin.
var stdinIsTerminal = func() bool { return term.IsTerminal(int(os.Stdin.Fd())) }

var errPasswordMismatch = errors.New("passwords do not match")

// GetPassword prints prompt to w and reads a password without echo. When
// stdin is not a terminal a single line is read from in instead.
//
// The returned byte slice should be wiped by the caller when no longer needed.
func GetPassword(in *bufio.Reader, w io.Writer, prompt string) ([]byte, error) {
	if v, ok := os.LookupEnv(PasswordEnv); ok {
		return []byte(v), nil
	}
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return nil, err
	}
	if !stdinIsTerminal() {
		line, err := in.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return nil, err
		}
		return []byte(strings.TrimRight(line, "\r\n")), nil
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	return pw, nil
}

// GetNewPassword asks for a password twice.
func GetNewPassword(in *bufio.Reader, w io.Writer) ([]byte, error) {
	pw, err := GetPassword(in, w, "New master password")
	if err != nil {
		return nil, err
	}
	if len(pw) == 0 {
		return nil, errors.New("empty password")
	}
	if _, ok := os.LookupEnv(PasswordEnv); ok {
		return pw, nil
	}
	again, err := GetPassword(in, w, "Repeat master password")
	if err != nil {
		return nil, err
	}
	if string(pw) != string(again) {
		return nil, errPasswordMismatch
	}
	return pw, nil
}
