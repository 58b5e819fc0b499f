// Package iojson reads and writes JSON for command line output.
package iojson

import (
	"encoding/json"
	"fmt"
	"io"
)

// Error is the JSON shape of a failed command.
type Error struct {
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// WriteLine writes obj as one line of JSON.
func WriteLine(w io.Writer, obj any) error {
	if err := json.NewEncoder(w).Encode(obj); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteIndent writes obj as indented JSON.
func WriteIndent(w io.Writer, obj any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(obj); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteError writes msg and data as an Error line. A payload that cannot be
// encoded is replaced by its encoding error.
func WriteError(w io.Writer, msg string, data map[string]any) error {
	if _, err := json.Marshal(data); err != nil {
		data = map[string]any{"json_error": err.Error()}
	}
	return WriteLine(w, Error{Message: msg, Data: data})
}
