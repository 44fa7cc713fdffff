package sigma

import (
	"fmt"
	"regexp"
)

// RootBlock is the implicit block wrapping the whole document.
const RootBlock = "__global__"

// functionCall records one indexed template function invocation: the callee
// name and the raw argument strings exactly as written in the source.
type functionCall struct {
	Name string   `json:"callee"`
	Args []string `json:"args"`
}

// unit is a compilation staging area. A unit is built and indexed in full and
// only then installed into the Template, so a failed compile never leaves a
// partial block tree behind.
type unit struct {
	root      string
	blocks    map[string]string
	children  map[string]map[string]struct{}
	variables map[string]map[string]struct{}
	functions map[string]map[string]functionCall
	triggers  map[string]string
}

func newUnit(root string) *unit {
	return &unit{
		root:      root,
		blocks:    make(map[string]string),
		children:  make(map[string]map[string]struct{}),
		variables: make(map[string]map[string]struct{}),
		functions: make(map[string]map[string]functionCall),
		triggers:  make(map[string]string),
	}
}

// compileUnit compiles raw template text into a detached unit rooted at root.
// Comment regions are stripped first, non-recursively, then the block tree is
// extracted and every block indexed for placeholders and function calls.
func (t *Template) compileUnit(source, root string) (*unit, error) {
	u := newUnit(root)
	wrapped := t.beginTag(root) + t.reComment.ReplaceAllString(source, "") + t.endTag(root)
	if _, err := t.buildBlocks(u, wrapped); err != nil {
		return nil, err
	}
	if err := t.indexBlock(u, root); err != nil {
		return nil, err
	}
	return u, nil
}

// buildBlocks extracts every BEGIN/END region from content, leftmost-first,
// and returns the names of the top-level regions found. Each region is
// registered in the unit with its directly nested regions replaced by
// {__name__} placeholders. Matching is name-exact and never recurses into a
// region's own delimiters. A name seen twice anywhere, including blocks
// already installed in the Template, is a compile error.
func (t *Template) buildBlocks(u *unit, content string) ([]string, error) {
	var found []string
	for cursor := 0; cursor < len(content); {
		loc := t.reBegin.FindStringSubmatchIndex(content[cursor:])
		if loc == nil {
			break
		}
		name := content[cursor+loc[2] : cursor+loc[3]]
		endLoc := t.endRegion(name).FindStringIndex(content[cursor+loc[1]:])
		if endLoc == nil {
			// an unterminated BEGIN stays in place as literal text
			cursor += loc[1]
			continue
		}
		if _, dup := u.blocks[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrBlockDuplicate, name)
		}
		if _, dup := t.blocks[name]; dup {
			return nil, fmt.Errorf("%w: %q", ErrBlockDuplicate, name)
		}
		region := content[cursor+loc[1] : cursor+loc[1]+endLoc[0]]
		// a same-name BEGIN before the matching END means the name repeats
		// inside its own region; pairing must not cross it
		if t.beginMarker(name).MatchString(region) {
			return nil, fmt.Errorf("%w: %q", ErrBlockDuplicate, name)
		}
		inner := t.pullTriggers(u, region)
		children, err := t.buildBlocks(u, inner)
		if err != nil {
			return nil, err
		}
		for _, child := range children {
			inner = t.blockRegion(child).ReplaceAllString(inner, t.delimited("__"+child+"__"))
			setAdd(u.children, name, child)
		}
		u.blocks[name] = inner
		found = append(found, name)
		cursor += loc[1] + endLoc[1]
	}
	return found, nil
}

func (t *Template) beginTag(name string) string { return "<!-- BEGIN " + name + " -->" }
func (t *Template) endTag(name string) string   { return "<!-- END " + name + " -->" }

func (t *Template) beginMarker(name string) *regexp.Regexp {
	return regexp.MustCompile(`<!--\s*BEGIN\s+` + regexp.QuoteMeta(name) + `\s*-->`)
}

func (t *Template) endRegion(name string) *regexp.Regexp {
	return regexp.MustCompile(`<!--\s*END\s+` + regexp.QuoteMeta(name) + `\s*-->`)
}

func (t *Template) blockRegion(name string) *regexp.Regexp {
	quoted := regexp.QuoteMeta(name)
	return regexp.MustCompile(`(?s)<!--\s*BEGIN\s+` + quoted + `\s*-->.*?<!--\s*END\s+` + quoted + `\s*-->`)
}

func setAdd(m map[string]map[string]struct{}, key, value string) {
	if m[key] == nil {
		m[key] = make(map[string]struct{})
	}
	m[key][value] = struct{}{}
}
