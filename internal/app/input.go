package app

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/peterh/liner"

	"comfypilot/internal/logging"
)

// HistoryFile is the REPL input history file name under the data directory.
const HistoryFile = "history"

const maxInputBytes = 1 << 20

// errInputClosed ends the REPL: end of input, or Ctrl-C at an idle prompt.
var errInputClosed = errors.New("input closed")

// lineReader reads one prompted line at a time.
type lineReader interface {
	ReadLine(prompt string) (string, error)
	Close() error
}

// newLineReader edits lines with liner when reading the terminal, and
// falls back to plain line scanning for any other reader.
func newLineReader(in io.Reader, out io.Writer, historyFile string) lineReader {
	if in == os.Stdin && out == os.Stdout && liner.TerminalSupported() {
		return newTerminalReader(historyFile)
	}
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 0, 64*1024), maxInputBytes)
	return &scanReader{scanner: s, out: out}
}

// terminalReader provides history and line editing for interactive input.
type terminalReader struct {
	line        *liner.State
	historyFile string
}

func newTerminalReader(historyFile string) *terminalReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	r := &terminalReader{line: line, historyFile: historyFile}
	if f, err := os.Open(historyFile); err == nil {
		if _, err := line.ReadHistory(f); err != nil {
			logging.Debug("failed to read input history", "error", err)
		}
		f.Close()
	}
	return r
}

func (r *terminalReader) ReadLine(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return "", errInputClosed
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves the history with owner-only permissions and restores the terminal.
func (r *terminalReader) Close() error {
	if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
		if _, err := r.line.WriteHistory(f); err != nil {
			logging.Debug("failed to write input history", "error", err)
		}
		f.Close()
	}
	return r.line.Close()
}

// scanReader reads scripted or piped input.
type scanReader struct {
	scanner *bufio.Scanner
	out     io.Writer
}

func (r *scanReader) ReadLine(prompt string) (string, error) {
	fmt.Fprint(r.out, prompt)
	if !r.scanner.Scan() {
		fmt.Fprintln(r.out)
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", errInputClosed
	}
	return r.scanner.Text(), nil
}

func (r *scanReader) Close() error { return nil }
