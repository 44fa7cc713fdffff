package sigma

import (
	"fmt"
	"io"
	"strings"
)

const preservedMark = "%preserved%"

// renderPass carries the substitution table for one outermost Parse call. It
// accumulates local bindings, global bindings and memoized function results
// as the recursion walks the block tree, and is dropped when the outermost
// call returns.
type renderPass struct {
	subs map[string]string
}

func newRenderPass() *renderPass {
	return &renderPass{subs: make(map[string]string)}
}

func (p *renderPass) set(key, value string) {
	p.subs[key] = value
}

func (p *renderPass) has(key string) bool {
	_, ok := p.subs[key]
	return ok
}

// apply substitutes every accumulated binding into s in a single pass.
// Replaced text is not rescanned, so values never act as markup; with
// preserve_data even literal delimiters inside values are masked until Get.
func (p *renderPass) apply(t *Template, s string) string {
	if len(p.subs) == 0 {
		return s
	}
	pairs := make([]string, 0, len(p.subs)*2)
	for k, v := range p.subs {
		if t.preserveData {
			v = t.maskDelimiters(v)
		}
		pairs = append(pairs, k, v)
	}
	return strings.NewReplacer(pairs...).Replace(s)
}

// Parse renders block once, appending the result to the block's accumulator.
// Successive calls before the parent consumes the block accumulate output,
// which is how repeated rows of the same block are built. Parse reports
// ErrBlockNotFound for an unknown block; rendering itself cannot fail.
func (t *Template) Parse(block string) error {
	_, err := t.render(block, newRenderPass(), false, false)
	return err
}

// render is one pass of the recursive render algorithm. It returns whether
// the block stayed empty this pass: no local binding was consumed and no
// child produced output. A suppressed pass drains pending bindings and
// touch/hide bookkeeping without materializing any text.
func (t *Template) render(block string, pass *renderPass, recursion, suppressed bool) (bool, error) {
	outer, ok := t.blocks[block]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrBlockNotFound, block)
	}
	if block == RootBlock {
		t.rootParsed = true
	}
	if _, ok := t.rendered[block]; !ok {
		t.rendered[block] = ""
	}

	empty := true

	// Local bindings are consumed on first read; a binding can make at most
	// one block pass non-empty.
	for name := range t.variables[block] {
		value, bound := t.pending[name]
		if !bound {
			continue
		}
		pass.set(t.delimited(name), value)
		delete(t.pending, name)
		empty = false
	}

	for _, child := range sortedKeys(t.children[block]) {
		placeholder := t.delimited("__" + child + "__")
		if _, hid := t.hidden[child]; hid {
			// still drain the hidden child's pending bindings
			if _, err := t.render(child, pass, true, true); err != nil {
				return false, err
			}
			delete(t.hidden, child)
			outer = strings.ReplaceAll(outer, placeholder, "")
			continue
		}
		if _, err := t.render(child, pass, true, suppressed); err != nil {
			return false, err
		}
		if t.rendered[child] != "" {
			empty = false
		}
		outer = strings.ReplaceAll(outer, placeholder, t.rendered[child])
		t.rendered[child] = ""
	}

	// Globals are visible wherever declared but never flip the empty flag.
	for name, value := range t.globals {
		if _, declared := t.variables[block][name]; declared {
			pass.set(t.delimited(name), value)
		}
	}

	if suppressed {
		return empty, nil
	}

	_, touch := t.touched[block]
	if !empty || block == RootBlock || !t.cfg.RemoveEmptyBlocks || touch {
		for _, id := range sortedKeys(t.functions[block]) {
			placeholder := t.delimited(functionPlaceholder(id))
			if pass.has(placeholder) {
				// resolved earlier this pass; the outermost substitution
				// replaces any remaining occurrences
				continue
			}
			call := t.functions[block][id]
			args := make([]string, len(call.Args))
			preserve := t.callbacks[call.Name].preserveArgs
			for i, arg := range call.Args {
				if preserve {
					args[i] = arg
				} else {
					args[i] = pass.apply(t, arg)
				}
			}
			// the result enters the substitution table like any binding, so
			// the single outermost pass replaces it without rescanning it
			pass.set(placeholder, t.invoke(call.Name, args))
		}
		// variables substitute only at the outermost call, so bindings
		// consumed by inner blocks reach content spliced anywhere above them
		if !recursion {
			outer = pass.apply(t, outer)
		}
		t.rendered[block] += outer
		delete(t.touched, block)
	}

	return empty, nil
}

// Get returns the accumulated output of a block, the empty string if it was
// never rendered. Requesting the root block renders it first if no render
// pass has run yet. clear resets the block's accumulator.
func (t *Template) Get(block string, clear bool) (string, error) {
	if !t.BlockExists(block) {
		return "", fmt.Errorf("%w: %q", ErrBlockNotFound, block)
	}
	if block == RootBlock && !t.rootParsed {
		if err := t.Parse(RootBlock); err != nil {
			return "", err
		}
	}
	out := t.rendered[block]
	if clear {
		delete(t.rendered, block)
	}
	if t.cfg.RemoveUnknownVariables {
		out = t.reUnknown.ReplaceAllString(out, "")
	}
	if t.preserveData {
		out = t.unmaskDelimiters(out)
	}
	return out, nil
}

// Show renders the root block if needed and writes the result to w.
func (t *Template) Show(w io.Writer) error {
	out, err := t.Get(RootBlock, false)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, out)
	return err
}

func (t *Template) maskDelimiters(s string) string {
	if !strings.Contains(s, t.cfg.OpenDelim) {
		return s
	}
	return strings.ReplaceAll(s, t.cfg.OpenDelim, t.cfg.OpenDelim+preservedMark+t.cfg.CloseDelim)
}

func (t *Template) unmaskDelimiters(s string) string {
	return strings.ReplaceAll(s, t.cfg.OpenDelim+preservedMark+t.cfg.CloseDelim, t.cfg.OpenDelim)
}
