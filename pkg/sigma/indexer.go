package sigma

import (
	"crypto/md5"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// indexBlock scans a compiled block for placeholders and function call sites.
// Plain {name} placeholders register name as a declared variable of the
// block; {name:func} placeholders and literal func_name(...) call sites are
// rewritten to {__function_ID__} placeholders with the call recorded under a
// content-derived identifier. Children are indexed recursively.
func (t *Template) indexBlock(u *unit, block string) error {
	vars := make(map[string]struct{})
	funcs := make(map[string]functionCall)
	content, err := t.extractFunctions(block, u.blocks[block], vars, funcs)
	if err != nil {
		return err
	}
	for _, m := range t.rePlaceholder.FindAllStringSubmatch(content, -1) {
		name, callee := m[1], m[2]
		vars[name] = struct{}{}
		if callee == "" {
			continue
		}
		call := functionCall{Name: callee, Args: []string{t.delimited(name)}}
		id := functionID(call)
		content = strings.ReplaceAll(content,
			t.cfg.OpenDelim+name+":"+callee+t.cfg.CloseDelim,
			t.delimited(functionPlaceholder(id)))
		vars[functionPlaceholder(id)] = struct{}{}
		funcs[id] = call
	}
	u.blocks[block] = content
	u.variables[block] = vars
	u.functions[block] = funcs
	for child := range u.children[block] {
		if err := t.indexBlock(u, child); err != nil {
			return err
		}
	}
	return nil
}

// extractFunctions rewrites literal func_name(...) call sites to function
// placeholders. Placeholders appearing inside the raw arguments are also
// registered as declared variables of the block, so they can be consumed and
// substituted into the arguments at render time.
func (t *Template) extractFunctions(block, content string, vars map[string]struct{}, funcs map[string]functionCall) (string, error) {
	for cursor := 0; cursor < len(content); {
		loc := t.reFunction.FindStringSubmatchIndex(content[cursor:])
		if loc == nil {
			break
		}
		callee := content[cursor+loc[2] : cursor+loc[3]]
		argStart := cursor + loc[1] // just past the opening parenthesis
		args, n, err := parseArguments(content[argStart:])
		if err != nil {
			var syn *SyntaxError
			if errors.As(err, &syn) {
				syn.Block = block
				syn.Offset += argStart
			}
			return "", err
		}
		call := functionCall{Name: callee, Args: args}
		id := functionID(call)
		placeholder := t.delimited(functionPlaceholder(id))
		content = content[:cursor+loc[0]] + placeholder + content[argStart+n:]
		vars[functionPlaceholder(id)] = struct{}{}
		funcs[id] = call
		for _, arg := range args {
			for _, am := range t.rePlaceholder.FindAllStringSubmatch(arg, -1) {
				vars[am[1]] = struct{}{}
			}
		}
		cursor += loc[0] + len(placeholder)
	}
	return content, nil
}

func functionPlaceholder(id string) string { return "__function_" + id + "__" }

// functionID derives a stable identifier from the callee and raw arguments,
// so identical calls collapse to one entry and recompiling identical content
// yields identical artifacts.
func functionID(c functionCall) string {
	h := md5.New()
	_, _ = io.WriteString(h, c.Name)
	for _, a := range c.Args {
		_, _ = h.Write([]byte{0})
		_, _ = io.WriteString(h, a)
	}
	return hex.EncodeToString(h.Sum(nil))[:10]
}
