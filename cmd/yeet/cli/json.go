// Copyright 2026 The Yeet Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"encoding/json"
	"io"
	"os"
	"reflect"

	"github.com/spf13/pflag"
)

// JSONOutput gives a listing command a --json flag:
//
//	output := cli.JSONOutput{Writer: env.stdout}
//	// Flags: output.AddJSONFlag(flagSet)
//	// Run:
//	if done, err := output.EmitJSON(views); done {
//		return err
//	}
//	// print the table
type JSONOutput struct {
	OutputJSON bool

	// Writer receives the JSON. Nil means stdout.
	Writer io.Writer
}

// AddJSONFlag registers --json on flagSet.
func (j *JSONOutput) AddJSONFlag(flagSet *pflag.FlagSet) {
	flagSet.BoolVar(&j.OutputJSON, "json", false, "output as JSON")
}

// EmitJSON writes result when --json was given and reports whether it
// did. A nil slice is written as [], never null, so scripts can
// always iterate the output.
func (j *JSONOutput) EmitJSON(result any) (bool, error) {
	if !j.OutputJSON {
		return false, nil
	}
	writer := j.Writer
	if writer == nil {
		writer = os.Stdout
	}
	return true, WriteJSON(writer, normalizeNilSlice(result))
}

// WriteJSON marshals value as indented JSON to w.
func WriteJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}

// normalizeNilSlice replaces a nil slice with an empty one of the
// same type.
func normalizeNilSlice(value any) any {
	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Slice && v.IsNil() {
		return reflect.MakeSlice(v.Type(), 0, 0).Interface()
	}
	return value
}
