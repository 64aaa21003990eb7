package config

import (
	_ "embed"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
)

//go:embed schema.cue
var schemaCUE string

// SchemaError reports a config file that does not satisfy the schema.
type SchemaError struct {
	File    string
	Details string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("config %s does not match schema:\n%s", e.File, e.Details)
}

var (
	schemaOnce sync.Once
	schemaCtx  *cue.Context
	schemaDef  cue.Value
	schemaErr  error
)

func loadSchema() (*cue.Context, cue.Value, error) {
	schemaOnce.Do(func() {
		schemaCtx = cuecontext.New()
		v := schemaCtx.CompileString(schemaCUE, cue.Filename("schema.cue"))
		if err := v.Err(); err != nil {
			schemaErr = fmt.Errorf("compile config schema: %w", err)
			return
		}
		schemaDef = v.LookupPath(cue.ParsePath("#Config"))
		if err := schemaDef.Err(); err != nil {
			schemaErr = fmt.Errorf("lookup #Config: %w", err)
		}
	})
	return schemaCtx, schemaDef, schemaErr
}

// ValidateSchema checks raw YAML config data against the embedded CUE schema.
// The filename is only used for error positions.
func ValidateSchema(filename string, data []byte) error {
	ctx, def, err := loadSchema()
	if err != nil {
		return err
	}

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return &SchemaError{File: filename, Details: cueerrors.Details(err, nil)}
	}
	value := ctx.BuildFile(file)
	if err := value.Err(); err != nil {
		return &SchemaError{File: filename, Details: cueerrors.Details(err, nil)}
	}

	if err := def.Unify(value).Validate(cue.Concrete(true)); err != nil {
		return &SchemaError{File: filename, Details: cueerrors.Details(err, nil)}
	}
	return nil
}
