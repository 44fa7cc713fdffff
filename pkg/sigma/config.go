package sigma

// Config holds the delimiter and identifier configuration for a Template.
// It is fixed at construction and used consistently by the compiler, the
// indexer and the render engine.
type Config struct {
	// OpenDelim and CloseDelim bracket every placeholder, e.g. "{name}".
	OpenDelim  string
	CloseDelim string

	// BlockNamePattern is the character class (as a regular expression) a
	// block name must match in BEGIN/END markers.
	BlockNamePattern string

	// VarNamePattern is the character class a placeholder name must match.
	VarNamePattern string

	// FuncNamePattern is the character class a callback name must match,
	// both in func_name(...) call sites and in {var:name} placeholders.
	FuncNamePattern string

	// FuncPrefix marks literal callback call sites in template text.
	FuncPrefix string

	// RemoveUnknownVariables strips placeholders that were never bound from
	// the output returned by Get.
	RemoveUnknownVariables bool

	// RemoveEmptyBlocks elides blocks that received no local binding and no
	// non-empty child output. The root block is always rendered.
	RemoveEmptyBlocks bool
}

// DefaultConfig returns the standard delimiter and identifier configuration.
func DefaultConfig() *Config {
	return &Config{
		OpenDelim:              "{",
		CloseDelim:             "}",
		BlockNamePattern:       `[0-9A-Za-z_-]+`,
		VarNamePattern:         `[0-9A-Za-z._-]+`,
		FuncNamePattern:        `[_a-zA-Z][A-Za-z_0-9]*`,
		FuncPrefix:             "func_",
		RemoveUnknownVariables: true,
		RemoveEmptyBlocks:      true,
	}
}
