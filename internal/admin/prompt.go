// Package admin implements the interactive operator commands, such as
// creating the first superuser.
package admin

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/artelie/backend/internal/common"
	"golang.org/x/term"
)

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// promptLine prints prompt to w and reads one trimmed line. A final line
// without a newline is accepted.
func promptLine(reader *bufio.Reader, prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return "", err
	}
	line, err := reader.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && len(line) > 0 {
			return strings.TrimSpace(line), nil
		}
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password from the terminal without echo.
func promptPassword(prompt string, w io.Writer) (string, error) {
	if _, err := fmt.Fprint(w, prompt+": "); err != nil {
		return "", err
	}
	pw, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return "", err
	}
	defer common.WipeByteArray(pw)
	return string(pw), nil
}
