package ui

import (
	"errors"

	"github.com/atotto/clipboard"
)

// ErrClipboardUnavailable means no clipboard utility was found.
var ErrClipboardUnavailable = errors.New("no clipboard available (install xclip, xsel or wl-clipboard)")

// CopyToClipboard puts text on the system clipboard.
func CopyToClipboard(text string) error {
	if clipboard.Unsupported {
		return ErrClipboardUnavailable
	}
	return clipboard.WriteAll(text)
}
