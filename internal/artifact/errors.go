package artifact

import (
	"fmt"
	"os"
)

// MissingError reports an artifact that does not exist when it is needed.
type MissingError struct {
	Kind Kind
	Path string
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("%s artifact missing: %s", e.Kind, e.Path)
}

// Unwrap lets callers match with errors.Is(err, os.ErrNotExist).
func (e *MissingError) Unwrap() error {
	return os.ErrNotExist
}

// DecodeError reports an artifact that exists but cannot be read as the
// expected format: a corrupt or truncated image, or an empty video.
type DecodeError struct {
	Kind Kind
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s artifact %s unreadable: %v", e.Kind, e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
