package sigma

import (
	"errors"
	"fmt"
)

var (
	// ErrBlockNotFound is returned when an operation names a block that was
	// never compiled.
	ErrBlockNotFound = errors.New("block not found")

	// ErrBlockDuplicate is returned when a template declares the same block
	// name more than once, at any nesting depth.
	ErrBlockDuplicate = errors.New("duplicate block name")

	// ErrBlockExists is returned by AddBlock when the new block's name is
	// already taken.
	ErrBlockExists = errors.New("block already exists")

	// ErrPlaceholderNotFound is returned when no compiled block declares the
	// requested placeholder.
	ErrPlaceholderNotFound = errors.New("placeholder not found")

	// ErrPlaceholderDuplicate is returned when a placeholder that must have a
	// unique owner is declared by more than one block.
	ErrPlaceholderDuplicate = errors.New("placeholder present in more than one block")

	// ErrInvalidCallback is returned by RegisterCallback for a nil callable
	// or a name outside the configured function-name class.
	ErrInvalidCallback = errors.New("invalid callback")

	// ErrTemplateNotFound is returned when a template source or compiled
	// artifact is absent or unreadable.
	ErrTemplateNotFound = errors.New("template not found")

	// ErrCacheWrite is returned when a compiled artifact could not be
	// persisted. Cache writes are recoverable; rendering proceeds with the
	// in-memory tree.
	ErrCacheWrite = errors.New("cache write failed")

	// ErrUnknownOption is returned by SetOption for an unrecognized option
	// name.
	ErrUnknownOption = errors.New("unknown option")
)

// SyntaxError reports a malformed argument list in a template function call.
// Char is the offending character, or zero when the input ended mid-argument.
type SyntaxError struct {
	Block  string
	Offset int
	Char   rune
}

func (e *SyntaxError) Error() string {
	where := fmt.Sprintf("at offset %d", e.Offset)
	if e.Block != "" {
		where = fmt.Sprintf("in block %q %s", e.Block, where)
	}
	if e.Char == 0 {
		return "unexpected end of input in function arguments " + where
	}
	return fmt.Sprintf("unexpected character %q in function arguments %s", e.Char, where)
}
