package session

import (
	"fmt"
	"os"
)

// AppendLine appends text and a trailing newline to the file at path,
// creating it if needed. The file is opened and closed per call so every
// completed line is on disk before the next segment is captured.
func AppendLine(path, text string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("session: open output %q: %w", path, err)
	}
	if _, err := f.WriteString(text + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("session: append to %q: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("session: close output %q: %w", path, err)
	}
	return nil
}

// Overwrite replaces the contents of path with text, truncating the file in
// place. Symlinks are followed and an existing file keeps its permissions.
func Overwrite(path, text string) error {
	if err := os.WriteFile(path, []byte(text), 0644); err != nil {
		return fmt.Errorf("session: write output %q: %w", path, err)
	}
	return nil
}
