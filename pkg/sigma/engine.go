package sigma

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"regexp"
	"strings"
)

// Template is one compilation unit of the engine: a compiled block tree plus
// the pending variable bindings and per-block render accumulators that feed
// successive render passes. A Template is not safe for concurrent use; see
// the package documentation for the ownership model.
type Template struct {
	logger *slog.Logger
	cfg    *Config
	source Source
	store  ArtifactStore

	// compiled state, rebuilt from scratch on every LoadTemplate/SetTemplate
	blocks    map[string]string
	children  map[string]map[string]struct{}
	variables map[string]map[string]struct{}
	functions map[string]map[string]functionCall
	triggers  map[string]string

	// render state
	rendered map[string]string
	pending  map[string]string
	globals  map[string]string
	touched  map[string]struct{}
	hidden   map[string]struct{}

	callbacks  map[string]callback
	rootParsed bool

	preserveData bool
	trimOnSave   bool

	reBegin       *regexp.Regexp
	reComment     *regexp.Regexp
	reInclude     *regexp.Regexp
	rePlaceholder *regexp.Regexp
	reFunction    *regexp.Regexp
	reUnknown     *regexp.Regexp
	reFuncName    *regexp.Regexp
}

// New creates a Template reading raw sources from src and persisting compiled
// artifacts to store. Either collaborator may be nil: a nil src restricts the
// Template to SetTemplate, a nil store disables artifact caching. A nil cfg
// uses DefaultConfig. By default all logs are discarded; see SetLogger.
func New(src Source, store ArtifactStore, cfg *Config) (*Template, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	t := &Template{
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		cfg:       cfg,
		source:    src,
		store:     store,
		globals:   make(map[string]string),
		callbacks: make(map[string]callback),
	}
	if err := t.compilePatterns(); err != nil {
		return nil, err
	}
	t.reset()
	return t, nil
}

// SetLogger sets the logger for the Template.
func (t *Template) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger
	}
}

func (t *Template) compilePatterns() error {
	open := regexp.QuoteMeta(t.cfg.OpenDelim)
	closing := regexp.QuoteMeta(t.cfg.CloseDelim)
	var err error
	if t.reBegin, err = regexp.Compile(`<!--\s*BEGIN\s+(` + t.cfg.BlockNamePattern + `)\s*-->`); err != nil {
		return fmt.Errorf("block name pattern: %w", err)
	}
	t.reComment = regexp.MustCompile(`(?s)<!--\s*COMMENT\s*-->.*?<!--\s*/COMMENT\s*-->`)
	t.reInclude = regexp.MustCompile(`<!--\s*INCLUDE\s+(\S+)\s*-->`)
	if t.rePlaceholder, err = regexp.Compile(open + `(` + t.cfg.VarNamePattern + `)(?::(` + t.cfg.FuncNamePattern + `))?` + closing); err != nil {
		return fmt.Errorf("variable name pattern: %w", err)
	}
	if t.reFunction, err = regexp.Compile(regexp.QuoteMeta(t.cfg.FuncPrefix) + `(` + t.cfg.FuncNamePattern + `)\(`); err != nil {
		return fmt.Errorf("function name pattern: %w", err)
	}
	if t.reUnknown, err = regexp.Compile(open + t.cfg.VarNamePattern + closing); err != nil {
		return fmt.Errorf("variable name pattern: %w", err)
	}
	if t.reFuncName, err = regexp.Compile(`^(?:` + t.cfg.FuncNamePattern + `)$`); err != nil {
		return fmt.Errorf("function name pattern: %w", err)
	}
	return nil
}

// reset discards all compiled and render state. Global variables and
// registered callbacks survive across template loads.
func (t *Template) reset() {
	t.blocks = make(map[string]string)
	t.children = make(map[string]map[string]struct{})
	t.variables = make(map[string]map[string]struct{})
	t.functions = make(map[string]map[string]functionCall)
	t.triggers = make(map[string]string)
	t.rendered = make(map[string]string)
	t.pending = make(map[string]string)
	t.touched = make(map[string]struct{})
	t.hidden = make(map[string]struct{})
	t.rootParsed = false
}

// install commits a compiled unit into the Template. Block names must not
// collide with blocks already installed; compilation checks this while
// building, the check here covers units deserialized from the artifact store.
func (t *Template) install(u *unit) error {
	for name := range u.blocks {
		if _, dup := t.blocks[name]; dup {
			return fmt.Errorf("%w: %q", ErrBlockDuplicate, name)
		}
	}
	maps.Copy(t.blocks, u.blocks)
	maps.Copy(t.children, u.children)
	maps.Copy(t.variables, u.variables)
	maps.Copy(t.functions, u.functions)
	maps.Copy(t.triggers, u.triggers)
	return nil
}

// LoadTemplate discards any previously compiled tree, compiles the named
// source file (or restores it from the artifact store when fresh) and
// resolves its inclusion directives.
func (t *Template) LoadTemplate(filename string) error {
	if t.source == nil {
		return fmt.Errorf("%w: %q: no source configured", ErrTemplateNotFound, filename)
	}
	t.reset()
	u, err := t.loadUnit(filename, RootBlock)
	if err != nil {
		return err
	}
	if err := t.install(u); err != nil {
		return err
	}
	if err := t.resolveTriggers(); err != nil {
		t.reset()
		return err
	}
	t.logger.Info("template loaded", "file", filename, "blocks", len(t.blocks))
	return nil
}

// SetTemplate discards any previously compiled tree and compiles content as
// the new template. Inclusion directives are resolved through the configured
// source; the compiled tree is not persisted.
func (t *Template) SetTemplate(content string) error {
	t.reset()
	u, err := t.compileUnit(content, RootBlock)
	if err != nil {
		return err
	}
	if err := t.install(u); err != nil {
		return err
	}
	if err := t.resolveTriggers(); err != nil {
		t.reset()
		return err
	}
	return nil
}

// SetVariable binds a value to name for the next render pass of whichever
// block declares it. The binding is consumed by that pass; consuming it is
// what marks the block non-empty.
func (t *Template) SetVariable(name, value string) {
	t.pending[name] = value
}

// SetVariables binds every entry of vars as with SetVariable.
func (t *Template) SetVariables(vars map[string]string) {
	maps.Copy(t.pending, vars)
}

// SetGlobalVariable binds a value visible to every block that declares name.
// Global bindings persist across render passes and never make a block
// non-empty on their own.
func (t *Template) SetGlobalVariable(name, value string) {
	t.globals[name] = value
}

// SetGlobalVariables binds every entry of vars as with SetGlobalVariable.
func (t *Template) SetGlobalVariables(vars map[string]string) {
	maps.Copy(t.globals, vars)
}

// RemoveGlobalVariable deletes a global binding.
func (t *Template) RemoveGlobalVariable(name string) {
	delete(t.globals, name)
}

// TouchBlock forces the next render pass of block to produce output even if
// it would be elided as empty. The flag is consumed by that pass. Touch and
// hide override each other; the last one applied wins.
func (t *Template) TouchBlock(block string) error {
	if !t.BlockExists(block) {
		return fmt.Errorf("%w: %q", ErrBlockNotFound, block)
	}
	delete(t.hidden, block)
	t.touched[block] = struct{}{}
	return nil
}

// HideBlock suppresses the next render pass of block even if it is
// non-empty. The block's pending bindings are still consumed by that pass.
func (t *Template) HideBlock(block string) error {
	if !t.BlockExists(block) {
		return fmt.Errorf("%w: %q", ErrBlockNotFound, block)
	}
	delete(t.touched, block)
	t.hidden[block] = struct{}{}
	return nil
}

// SetOption toggles a runtime option: "preserve_data" masks placeholder
// delimiters inside substituted values so data is never re-read as markup,
// "trim_on_save" trims trailing horizontal whitespace per line in persisted
// artifacts.
func (t *Template) SetOption(name string, enabled bool) error {
	switch name {
	case "preserve_data":
		t.preserveData = enabled
	case "trim_on_save":
		t.trimOnSave = enabled
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOption, name)
	}
	return nil
}

// BlockExists reports whether a block of that name was compiled.
func (t *Template) BlockExists(block string) bool {
	_, ok := t.blocks[block]
	return ok
}

// Blocks returns the names of all compiled blocks, sorted.
func (t *Template) Blocks() []string {
	return sortedKeys(t.blocks)
}

// Placeholders returns the sorted placeholder names a block declares,
// including the synthetic child and function placeholders.
func (t *Template) Placeholders(block string) ([]string, error) {
	if !t.BlockExists(block) {
		return nil, fmt.Errorf("%w: %q", ErrBlockNotFound, block)
	}
	return sortedKeys(t.variables[block]), nil
}

// blockWithPlaceholder finds the single block declaring the given
// placeholder name.
func (t *Template) blockWithPlaceholder(name string) (string, error) {
	owner := ""
	for block, vars := range t.variables {
		if _, ok := vars[name]; !ok {
			continue
		}
		if owner != "" {
			return "", fmt.Errorf("%w: %q", ErrPlaceholderDuplicate, name)
		}
		owner = block
	}
	if owner == "" {
		return "", fmt.Errorf("%w: %q", ErrPlaceholderNotFound, name)
	}
	return owner, nil
}

// AddBlock compiles content as a new block named block and grafts it into
// the tree where the variable placeholder occurs, replacing it. The
// placeholder must be declared by exactly one block.
func (t *Template) AddBlock(placeholder, block, content string) error {
	u, parent, err := t.compileGraft(placeholder, block, content)
	if err != nil {
		return err
	}
	return t.graft(u, parent, placeholder, block)
}

// AddBlockFile is AddBlock reading the block's content from the configured
// source, through the artifact store when fresh.
func (t *Template) AddBlockFile(placeholder, block, filename string) error {
	if t.BlockExists(block) {
		return fmt.Errorf("%w: %q", ErrBlockExists, block)
	}
	parent, err := t.blockWithPlaceholder(placeholder)
	if err != nil {
		return err
	}
	u, err := t.loadUnit(filename, block)
	if err != nil {
		return err
	}
	return t.graft(u, parent, placeholder, block)
}

func (t *Template) compileGraft(placeholder, block, content string) (*unit, string, error) {
	if t.BlockExists(block) {
		return nil, "", fmt.Errorf("%w: %q", ErrBlockExists, block)
	}
	parent, err := t.blockWithPlaceholder(placeholder)
	if err != nil {
		return nil, "", err
	}
	u, err := t.compileUnit(content, block)
	if err != nil {
		return nil, "", err
	}
	return u, parent, nil
}

func (t *Template) graft(u *unit, parent, placeholder, block string) error {
	if err := t.install(u); err != nil {
		return err
	}
	t.blocks[parent] = strings.ReplaceAll(t.blocks[parent], t.delimited(placeholder), t.delimited("__"+block+"__"))
	delete(t.variables[parent], placeholder)
	setAdd(t.variables, parent, "__"+block+"__")
	setAdd(t.children, parent, block)
	if err := t.resolveTriggers(); err != nil {
		// undo the graft; a failed inclusion must not leave the new
		// block behind with unresolved triggers
		t.removeBlockTree(block)
		delete(t.children[parent], block)
		delete(t.variables[parent], "__"+block+"__")
		t.blocks[parent] = strings.ReplaceAll(t.blocks[parent], t.delimited("__"+block+"__"), t.delimited(placeholder))
		setAdd(t.variables, parent, placeholder)
		t.triggers = make(map[string]string)
		return err
	}
	return nil
}

// ReplaceBlock throws away an existing block's compiled subtree and
// recompiles content in its place. The block keeps its position in its
// parent. keepRendered preserves the block's accumulated output. A failed
// recompile leaves the old subtree untouched.
func (t *Template) ReplaceBlock(block, content string, keepRendered bool) error {
	if block == RootBlock || !t.BlockExists(block) {
		return fmt.Errorf("%w: %q", ErrBlockNotFound, block)
	}
	old := t.detachBlockTree(block)
	u, err := t.compileUnit(content, block)
	if err != nil {
		t.reattach(old)
		return err
	}
	return t.swapBlockTree(block, u, old, keepRendered)
}

// ReplaceBlockFile is ReplaceBlock reading the new content from the
// configured source.
func (t *Template) ReplaceBlockFile(block, filename string, keepRendered bool) error {
	if block == RootBlock || !t.BlockExists(block) {
		return fmt.Errorf("%w: %q", ErrBlockNotFound, block)
	}
	old := t.detachBlockTree(block)
	u, err := t.loadUnit(filename, block)
	if err != nil {
		t.reattach(old)
		return err
	}
	return t.swapBlockTree(block, u, old, keepRendered)
}

// swapBlockTree installs a recompiled block where its detached predecessor
// stood, restoring the predecessor if installation or inclusion fails.
func (t *Template) swapBlockTree(block string, u *unit, old *detached, keepRendered bool) error {
	if err := t.install(u); err != nil {
		t.reattach(old)
		return err
	}
	if err := t.resolveTriggers(); err != nil {
		t.removeBlockTree(block)
		t.triggers = make(map[string]string)
		t.reattach(old)
		return err
	}
	if keepRendered {
		t.rendered[block] = old.rendered[block]
	}
	return nil
}

// detached holds a subtree moved out of the compiled maps, keyed the same
// way, so a failed replacement can be undone.
type detached struct {
	blocks    map[string]string
	children  map[string]map[string]struct{}
	variables map[string]map[string]struct{}
	functions map[string]map[string]functionCall
	rendered  map[string]string
	touched   map[string]struct{}
	hidden    map[string]struct{}
}

func (t *Template) detachBlockTree(block string) *detached {
	d := &detached{
		blocks:    make(map[string]string),
		children:  make(map[string]map[string]struct{}),
		variables: make(map[string]map[string]struct{}),
		functions: make(map[string]map[string]functionCall),
		rendered:  make(map[string]string),
		touched:   make(map[string]struct{}),
		hidden:    make(map[string]struct{}),
	}
	t.detachInto(d, block)
	return d
}

func (t *Template) detachInto(d *detached, block string) {
	for child := range t.children[block] {
		t.detachInto(d, child)
	}
	if v, ok := t.blocks[block]; ok {
		d.blocks[block] = v
	}
	if v, ok := t.children[block]; ok {
		d.children[block] = v
	}
	if v, ok := t.variables[block]; ok {
		d.variables[block] = v
	}
	if v, ok := t.functions[block]; ok {
		d.functions[block] = v
	}
	if v, ok := t.rendered[block]; ok {
		d.rendered[block] = v
	}
	if _, ok := t.touched[block]; ok {
		d.touched[block] = struct{}{}
	}
	if _, ok := t.hidden[block]; ok {
		d.hidden[block] = struct{}{}
	}
	delete(t.blocks, block)
	delete(t.children, block)
	delete(t.variables, block)
	delete(t.functions, block)
	delete(t.rendered, block)
	delete(t.touched, block)
	delete(t.hidden, block)
}

func (t *Template) reattach(d *detached) {
	maps.Copy(t.blocks, d.blocks)
	maps.Copy(t.children, d.children)
	maps.Copy(t.variables, d.variables)
	maps.Copy(t.functions, d.functions)
	maps.Copy(t.rendered, d.rendered)
	maps.Copy(t.touched, d.touched)
	maps.Copy(t.hidden, d.hidden)
}

// removeBlockTree deletes a block and its whole subtree from the compiled
// maps. The parent's child reference is left to the caller.
func (t *Template) removeBlockTree(block string) {
	for child := range t.children[block] {
		t.removeBlockTree(child)
	}
	delete(t.blocks, block)
	delete(t.children, block)
	delete(t.variables, block)
	delete(t.functions, block)
	delete(t.rendered, block)
	delete(t.touched, block)
	delete(t.hidden, block)
}

func (t *Template) delimited(name string) string {
	return t.cfg.OpenDelim + name + t.cfg.CloseDelim
}
