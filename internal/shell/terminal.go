package shell

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
)

// LineReader supplies input lines. Prompt returns io.EOF or
// liner.ErrPromptAborted when the user ends the session.
type LineReader interface {
	Prompt(prompt string) (string, error)
	Close() error
}

// terminal owns the liner state and its history file for one session.
type terminal struct {
	state       *liner.State
	historyFile string
}

// openTerminal puts the tty into raw mode. Close must be called to restore it.
func openTerminal(historyFile string) *terminal {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	t := &terminal{state: state, historyFile: historyFile}
	if historyFile != "" {
		if f, err := os.Open(historyFile); err == nil {
			state.ReadHistory(f)
			f.Close()
		}
	}
	return t
}

func (t *terminal) Prompt(prompt string) (string, error) {
	line, err := t.state.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(line) != "" {
		t.state.AppendHistory(line)
	}
	return line, nil
}

// Close writes the history file and restores the terminal.
func (t *terminal) Close() error {
	var saveErr error
	if t.historyFile != "" {
		saveErr = t.saveHistory()
	}
	if err := t.state.Close(); err != nil {
		return err
	}
	return saveErr
}

func (t *terminal) saveHistory() error {
	if err := os.MkdirAll(filepath.Dir(t.historyFile), 0o755); err != nil {
		return fmt.Errorf("creating history directory: %w", err)
	}
	f, err := os.OpenFile(t.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("opening history file: %w", err)
	}
	defer f.Close()
	if _, err := t.state.WriteHistory(f); err != nil {
		return fmt.Errorf("writing history: %w", err)
	}
	return nil
}
