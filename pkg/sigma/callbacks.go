package sigma

import (
	"bytes"
	"fmt"
	"html"
	"net/url"

	"github.com/yuin/goldmark"
)

// CallbackFunc is the single capability a template callback needs: take the
// call's arguments (raw, or with the current substitutions applied) and
// produce the replacement text.
type CallbackFunc func(args []string) string

type callback struct {
	fn           CallbackFunc
	preserveArgs bool
}

// RegisterCallback makes fn available under name to func_name(...) call
// sites and {var:name} placeholders. preserveArgs disables variable
// substitution inside the call's arguments. Registration fails fast, so an
// unregistered callee at render time degrades to plain substitution instead
// of erroring.
func (t *Template) RegisterCallback(name string, fn CallbackFunc, preserveArgs bool) error {
	if fn == nil {
		return fmt.Errorf("%w: %q: nil callable", ErrInvalidCallback, name)
	}
	if !t.reFuncName.MatchString(name) {
		return fmt.Errorf("%w: %q: name outside the function name class", ErrInvalidCallback, name)
	}
	t.callbacks[name] = callback{fn: fn, preserveArgs: preserveArgs}
	return nil
}

// invoke runs a registered callback. An unregistered callee echoes its first
// argument.
func (t *Template) invoke(name string, args []string) string {
	cb, ok := t.callbacks[name]
	if !ok {
		t.logger.Debug("no callback registered", "callee", name)
		if len(args) > 0 {
			return args[0]
		}
		return ""
	}
	return cb.fn(args)
}

// HTMLEscape is a callback adapter escaping its first argument for HTML.
func HTMLEscape(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return html.EscapeString(args[0])
}

// URLEncode is a callback adapter query-escaping its first argument.
func URLEncode(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return url.QueryEscape(args[0])
}

// Markdown is a callback adapter converting its first argument from Markdown
// to HTML. On conversion failure the argument passes through unchanged.
func Markdown(args []string) string {
	if len(args) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(args[0]), &buf); err != nil {
		return args[0]
	}
	return buf.String()
}
