package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE string

// Error is a configuration error, positioned in the config file when the
// schema check found it.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// IsConfigError reports whether err is a configuration error.
func IsConfigError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// checkSchema unifies the YAML document with #Config.
func checkSchema(filename string, data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return formatCUEError(filename, err)
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return formatCUEError(filename, err)
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return formatCUEError(filename, err)
	}
	return nil
}

// formatCUEError keeps the first error, positioned in filename when the
// error points into it.
func formatCUEError(filename string, err error) error {
	errs := errors.Errors(err)
	if len(errs) == 0 {
		return &Error{Field: "config", Message: err.Error()}
	}

	first := errs[0]
	field := "config"
	if path := errors.Path(first); len(path) > 0 {
		field = strings.TrimPrefix(strings.Join(path, "."), "#Config.")
	}
	format, args := first.Msg()
	e := &Error{Field: field, Message: fmt.Sprintf(format, args...)}
	for _, pos := range errors.Positions(first) {
		if !e.Pos.IsValid() {
			e.Pos = pos
		}
		if pos.Filename() == filename {
			e.Pos = pos
			break
		}
	}
	return e
}
