package sigma

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"maps"
	"strconv"
	"strings"
)

// pullTriggers replaces INCLUDE directives with unique trigger placeholders
// and records the deferred (placeholder, filename) pairs on the unit. The
// included files themselves are not read until resolveTriggers runs, after
// the current unit has finished compiling and, when caching, after its
// pre-inclusion artifact has been written.
func (t *Template) pullTriggers(u *unit, content string) string {
	for {
		loc := t.reInclude.FindStringSubmatchIndex(content)
		if loc == nil {
			return content
		}
		filename := content[loc[2]:loc[3]]
		name := triggerName(filename, len(u.triggers))
		u.triggers[name] = filename
		content = content[:loc[0]] + t.delimited(name) + content[loc[1]:]
	}
}

// triggerName derives a stable placeholder for an inclusion, so recompiling
// identical content yields the same placeholder and the same cache entry.
func triggerName(filename string, seq int) string {
	sum := md5.Sum([]byte(filename + "#" + strconv.Itoa(seq)))
	return "trigger_" + hex.EncodeToString(sum[:])[:10]
}

// resolveTriggers expands every deferred inclusion recorded during
// compilation. Included files may themselves carry INCLUDE directives, so
// resolution loops until no trigger remains. Failure of any one inclusion
// aborts the whole step.
func (t *Template) resolveTriggers() error {
	for len(t.triggers) > 0 {
		for _, name := range sortedKeys(t.triggers) {
			filename := t.triggers[name]
			delete(t.triggers, name)
			if err := t.resolveTrigger(name, filename); err != nil {
				return err
			}
		}
	}
	return nil
}

func (t *Template) resolveTrigger(placeholder, filename string) error {
	if t.source == nil {
		return fmt.Errorf("%w: %q: no source configured", ErrTemplateNotFound, filename)
	}
	parent, err := t.blockWithPlaceholder(placeholder)
	if err != nil {
		return err
	}
	u, err := t.loadUnit(filename, placeholder)
	if err != nil {
		return err
	}
	if err := t.install(u); err != nil {
		return err
	}
	t.mergeBlock(parent, placeholder)
	t.logger.Debug("inclusion resolved", "file", filename, "into", parent)
	return nil
}

// mergeBlock splices a resolved inclusion, compiled as a block named name,
// into its parent: content substituted in place of the placeholder, declared
// variables, children and functions folded into the parent's, and the
// standalone block discarded.
func (t *Template) mergeBlock(parent, name string) {
	t.blocks[parent] = strings.ReplaceAll(t.blocks[parent], t.delimited(name), t.blocks[name])
	delete(t.variables[parent], name)
	for v := range t.variables[name] {
		setAdd(t.variables, parent, v)
	}
	for c := range t.children[name] {
		setAdd(t.children, parent, c)
	}
	if len(t.functions[name]) > 0 {
		if t.functions[parent] == nil {
			t.functions[parent] = make(map[string]functionCall)
		}
		maps.Copy(t.functions[parent], t.functions[name])
	}
	delete(t.blocks, name)
	delete(t.variables, name)
	delete(t.children, name)
	delete(t.functions, name)
}
