package iojson

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// FileReader decodes a T from the file named by its flag, or from stdin.
type FileReader[T any] struct {
	fileFlagValue string
	stdin         io.Reader
}

// Flag returns the --file flag bound to the reader.
func (fr *FileReader[T]) Flag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "file",
		Aliases:     []string{"f"},
		Usage:       "path to JSON file (reads from stdin if not provided or -)",
		Destination: &fr.fileFlagValue,
	}
}

// Read decodes the input. Reading from a terminal is refused so the
// command does not hang waiting for input.
func (fr *FileReader[T]) Read() (T, error) {
	var input T

	reader, closeFn, err := fr.open()
	if err != nil {
		return input, err
	}
	defer closeFn()

	if err := json.NewDecoder(reader).Decode(&input); err != nil {
		return input, fmt.Errorf("decode JSON: %w", err)
	}
	return input, nil
}

func (fr *FileReader[T]) open() (io.Reader, func(), error) {
	if fr.fileFlagValue != "" && fr.fileFlagValue != "-" {
		f, err := os.Open(fr.fileFlagValue)
		if err != nil {
			return nil, nil, fmt.Errorf("open file: %w", err)
		}
		return f, func() { _ = f.Close() }, nil
	}

	if fr.stdin != nil {
		return fr.stdin, func() {}, nil
	}
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return nil, nil, fmt.Errorf("no input provided (stdin is a terminal); use -f or pipe JSON input")
	}
	return os.Stdin, func() {}, nil
}
