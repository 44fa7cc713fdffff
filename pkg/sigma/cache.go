package sigma

import (
	"encoding/json"
	"fmt"
	"strings"
)

// artifact is the serialized form of a compiled unit. Ownership of the data
// transfers to the Template on load; nothing keeps referencing store
// internals afterwards.
type artifact struct {
	Root      string                             `json:"root"`
	Blocks    map[string]string                  `json:"blocks"`
	Variables map[string][]string                `json:"variables"`
	Children  map[string][]string                `json:"children"`
	Functions map[string]map[string]functionCall `json:"functions"`
	Triggers  map[string]string                  `json:"triggers,omitempty"`
}

// loadUnit returns the compiled unit for filename rooted at root, restored
// from the artifact store when fresh and recompiled from source otherwise.
// Cache failures are recoverable: an unreadable artifact falls back to
// recompilation and a failed write only logs a warning.
func (t *Template) loadUnit(filename, root string) (*unit, error) {
	if t.isFresh(filename) {
		u, err := t.loadArtifact(filename, root)
		if err == nil {
			t.logger.Debug("compiled template restored from cache", "file", filename)
			return u, nil
		}
		t.logger.Warn("discarding unreadable compiled artifact", "file", filename, "error", err)
	}
	raw, err := t.source.Read(filename)
	if err != nil {
		return nil, err
	}
	u, err := t.compileUnit(string(raw), root)
	if err != nil {
		return nil, err
	}
	if t.store != nil {
		if err := t.storeArtifact(filename, u); err != nil {
			t.logger.Warn("failed to cache compiled template", "file", filename, "error", err)
		}
	}
	return u, nil
}

// isFresh reports whether a cached artifact exists whose timestamp equals
// the live source's modification time. Equality, not ordering: coarse
// filesystem timestamps or a clock rollback can mask staleness, a known
// limitation kept for compatibility.
func (t *Template) isFresh(filename string) bool {
	if t.store == nil || t.source == nil {
		return false
	}
	cached, err := t.store.ModTime(filename)
	if err != nil {
		return false
	}
	live, err := t.source.ModTime(filename)
	if err != nil {
		return false
	}
	return cached.Equal(live)
}

func (t *Template) storeArtifact(filename string, u *unit) error {
	data, err := json.Marshal(u.toArtifact(t.trimOnSave))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCacheWrite, err)
	}
	if err := t.store.WriteAtomic(filename, data); err != nil {
		return err
	}
	mtime, err := t.source.ModTime(filename)
	if err != nil {
		return err
	}
	// the artifact carries the source's timestamp, not "now", so freshness
	// comparison stays valid across regenerations racing with clock changes
	return t.store.Chtimes(filename, mtime)
}

func (t *Template) loadArtifact(filename, root string) (*unit, error) {
	data, err := t.store.Read(filename)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrTemplateNotFound, filename, err)
	}
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrTemplateNotFound, filename, err)
	}
	if a.Root != root {
		a.rename(a.Root, root)
	}
	u := newUnit(root)
	if a.Blocks != nil {
		u.blocks = a.Blocks
	}
	for name, vars := range a.Variables {
		set := make(map[string]struct{}, len(vars))
		for _, v := range vars {
			set[v] = struct{}{}
		}
		u.variables[name] = set
	}
	for name, kids := range a.Children {
		set := make(map[string]struct{}, len(kids))
		for _, k := range kids {
			set[k] = struct{}{}
		}
		u.children[name] = set
	}
	if a.Functions != nil {
		u.functions = a.Functions
	}
	if a.Triggers != nil {
		u.triggers = a.Triggers
	}
	return u, nil
}

func (u *unit) toArtifact(trim bool) *artifact {
	a := &artifact{
		Root:      u.root,
		Blocks:    make(map[string]string, len(u.blocks)),
		Variables: make(map[string][]string, len(u.variables)),
		Children:  make(map[string][]string, len(u.children)),
		Functions: u.functions,
	}
	for name, content := range u.blocks {
		if trim {
			content = trimTrailingSpace(content)
		}
		a.Blocks[name] = content
	}
	for name, set := range u.variables {
		a.Variables[name] = sortedKeys(set)
	}
	for name, set := range u.children {
		a.Children[name] = sortedKeys(set)
	}
	if len(u.triggers) > 0 {
		a.Triggers = u.triggers
	}
	return a
}

// rename rekeys the root block of a deserialized artifact, so an artifact
// cached for one inclusion placeholder can serve another.
func (a *artifact) rename(from, to string) {
	if content, ok := a.Blocks[from]; ok {
		delete(a.Blocks, from)
		a.Blocks[to] = content
	}
	if vars, ok := a.Variables[from]; ok {
		delete(a.Variables, from)
		a.Variables[to] = vars
	}
	if kids, ok := a.Children[from]; ok {
		delete(a.Children, from)
		a.Children[to] = kids
	}
	if funcs, ok := a.Functions[from]; ok {
		delete(a.Functions, from)
		a.Functions[to] = funcs
	}
	a.Root = to
}

func trimTrailingSpace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.Join(lines, "\n")
}
