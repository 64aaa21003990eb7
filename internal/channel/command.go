package channel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidCommand is returned for commands that cannot be serialized into
// a single protocol line.
var ErrInvalidCommand = errors.New("invalid command")

// Command is one protocol line: a two-letter opcode followed by arguments.
type Command struct {
	Op   string
	Args []string
}

// Cmd builds a command, formatting numeric arguments with strconv.
// Supported argument types are string, int, int64, uint, float64 and bool
// (encoded as 1/0, the daemon's on/off convention).
func Cmd(op string, args ...any) Command {
	c := Command{Op: op, Args: make([]string, 0, len(args))}
	for _, a := range args {
		c.Args = append(c.Args, formatArg(a))
	}
	return c
}

func formatArg(a any) string {
	switch v := a.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		if v {
			return "1"
		}
		return "0"
	default:
		return fmt.Sprint(v)
	}
}

// Parse splits a protocol line into a Command.
func Parse(line string) (Command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}
	c := Command{Op: fields[0], Args: fields[1:]}
	if err := c.Validate(); err != nil {
		return Command{}, err
	}
	return c, nil
}

// Validate checks the opcode shape and that no argument would split or
// terminate the line.
func (c Command) Validate() error {
	if len(c.Op) != 2 || !isLowerASCII(c.Op) {
		return fmt.Errorf("%w: opcode %q must be two lowercase letters", ErrInvalidCommand, c.Op)
	}
	for i, a := range c.Args {
		if a == "" {
			return fmt.Errorf("%w: %s argument %d is empty", ErrInvalidCommand, c.Op, i)
		}
		if strings.ContainsAny(a, " \t\r\n") {
			return fmt.Errorf("%w: %s argument %d contains whitespace", ErrInvalidCommand, c.Op, i)
		}
	}
	return nil
}

// String renders the command without the line terminator.
func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Op
	}
	return c.Op + " " + strings.Join(c.Args, " ")
}

// Encode renders the command as a newline-terminated protocol line.
func (c Command) Encode() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return []byte(c.String() + "\n"), nil
}

func isLowerASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 'a' || s[i] > 'z' {
			return false
		}
	}
	return true
}
