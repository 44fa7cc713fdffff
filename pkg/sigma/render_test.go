package sigma

import (
	"errors"
	"strings"
	"testing"
)

func TestRenderRepeatedRows(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `Hello {user}!
<!-- BEGIN row -->- {item}
<!-- END row -->bye`)

	tpl.SetVariable("user", "Ann")
	for _, item := range []string{"one", "two"} {
		tpl.SetVariable("item", item)
		if err := tpl.Parse("row"); err != nil {
			t.Fatalf("Parse(row) error = %v", err)
		}
	}
	want := "Hello Ann!\n- one\n- two\nbye"
	if out := mustGet(t, tpl, RootBlock, false); out != want {
		t.Errorf("Get() = %q, want %q", out, want)
	}
}

func TestRenderEmptyBlockElision(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `a<!-- BEGIN opt -->[{v}]<!-- END opt -->b`)

	// never parsed, never bound: the block leaves no trace
	if out := mustGet(t, tpl, RootBlock, false); out != "ab" {
		t.Errorf("Get() = %q, want %q", out, "ab")
	}

	// explicitly parsed but still without bindings: still elided
	tpl2 := newTestTemplate(t)
	mustSetTemplate(t, tpl2, `a<!-- BEGIN opt -->[{v}]<!-- END opt -->b`)
	if err := tpl2.Parse("opt"); err != nil {
		t.Fatalf("Parse(opt) error = %v", err)
	}
	if out := mustGet(t, tpl2, RootBlock, false); out != "ab" {
		t.Errorf("Get() after empty Parse = %q, want %q", out, "ab")
	}
}

func TestRenderKeepEmptyBlocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RemoveEmptyBlocks = false
	tpl, err := New(nil, nil, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mustSetTemplate(t, tpl, `a<!-- BEGIN opt -->[x]<!-- END opt -->b`)
	// the root pass renders opt once even though it was never parsed
	if out := mustGet(t, tpl, RootBlock, false); out != "a[x]b" {
		t.Errorf("Get() = %q, want %q", out, "a[x]b")
	}
}

func TestGlobalsDoNotUnemptyBlocks(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `a<!-- BEGIN opt -->[{site}]<!-- END opt -->b {site}`)

	tpl.SetGlobalVariable("site", "example")
	if err := tpl.Parse("opt"); err != nil {
		t.Fatalf("Parse(opt) error = %v", err)
	}
	// opt stays empty, but the global still substitutes at the root
	if out := mustGet(t, tpl, RootBlock, false); out != "ab example" {
		t.Errorf("Get() = %q, want %q", out, "ab example")
	}
}

func TestGlobalSubstitutionInsideParsedBlock(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `<!-- BEGIN row -->{site}/{page}<!-- END row -->`)

	tpl.SetGlobalVariable("site", "example.org")
	tpl.SetVariable("page", "index")
	if err := tpl.Parse("row"); err != nil {
		t.Fatalf("Parse(row) error = %v", err)
	}
	if out := mustGet(t, tpl, RootBlock, false); out != "example.org/index" {
		t.Errorf("Get() = %q, want %q", out, "example.org/index")
	}
}

func TestTouchBlockForcesOutput(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `a<!-- BEGIN opt -->[x]<!-- END opt -->b`)

	if err := tpl.TouchBlock("opt"); err != nil {
		t.Fatalf("TouchBlock() error = %v", err)
	}
	if err := tpl.Parse("opt"); err != nil {
		t.Fatalf("Parse(opt) error = %v", err)
	}
	if out := mustGet(t, tpl, RootBlock, true); out != "a[x]b" {
		t.Errorf("Get() = %q, want %q", out, "a[x]b")
	}

	// the touch flag is consumed: the next pass elides again
	if err := tpl.Parse("opt"); err != nil {
		t.Fatalf("Parse(opt) error = %v", err)
	}
	if err := tpl.Parse(RootBlock); err != nil {
		t.Fatalf("Parse(root) error = %v", err)
	}
	if out := mustGet(t, tpl, RootBlock, false); out != "ab" {
		t.Errorf("Get() after consumed touch = %q, want %q", out, "ab")
	}

	if err := tpl.TouchBlock("nope"); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("TouchBlock(unknown) error = %v, want ErrBlockNotFound", err)
	}
}

func TestHideBlockSuppressesOutput(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `a<!-- BEGIN opt -->[{v}]<!-- END opt -->b{v2}`)

	tpl.SetVariable("v", "gone")
	if err := tpl.HideBlock("opt"); err != nil {
		t.Fatalf("HideBlock() error = %v", err)
	}
	if out := mustGet(t, tpl, RootBlock, false); out != "ab" {
		t.Errorf("Get() = %q, want %q", out, "ab")
	}
	// the suppressed pass must have drained the binding
	if _, still := tpl.pending["v"]; still {
		t.Error("hidden block's pending binding was not consumed")
	}
	if err := tpl.HideBlock("nope"); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("HideBlock(unknown) error = %v, want ErrBlockNotFound", err)
	}
}

func TestTouchHideLastAppliedWins(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `a<!-- BEGIN opt -->[x]<!-- END opt -->b`)

	if err := tpl.HideBlock("opt"); err != nil {
		t.Fatalf("HideBlock() error = %v", err)
	}
	if err := tpl.TouchBlock("opt"); err != nil {
		t.Fatalf("TouchBlock() error = %v", err)
	}
	if out := mustGet(t, tpl, RootBlock, false); out != "a[x]b" {
		t.Errorf("hide-then-touch Get() = %q, want %q", out, "a[x]b")
	}

	tpl2 := newTestTemplate(t)
	mustSetTemplate(t, tpl2, `a<!-- BEGIN opt -->[x]<!-- END opt -->b`)
	if err := tpl2.TouchBlock("opt"); err != nil {
		t.Fatalf("TouchBlock() error = %v", err)
	}
	if err := tpl2.HideBlock("opt"); err != nil {
		t.Fatalf("HideBlock() error = %v", err)
	}
	if out := mustGet(t, tpl2, RootBlock, false); out != "ab" {
		t.Errorf("touch-then-hide Get() = %q, want %q", out, "ab")
	}
}

func TestGetClearResetsAccumulator(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `<!-- BEGIN row -->{v};<!-- END row -->`)

	tpl.SetVariable("v", "a")
	if err := tpl.Parse("row"); err != nil {
		t.Fatalf("Parse(row) error = %v", err)
	}
	if out := mustGet(t, tpl, "row", true); out != "a;" {
		t.Errorf("Get(row, clear) = %q, want %q", out, "a;")
	}
	if out := mustGet(t, tpl, "row", false); out != "" {
		t.Errorf("Get(row) after clear = %q, want empty", out)
	}
	if _, err := tpl.Get("nope", false); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("Get(unknown) error = %v, want ErrBlockNotFound", err)
	}
}

func TestUnknownVariableHandling(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `x {never-set} y`)
	if out := mustGet(t, tpl, RootBlock, false); out != "x  y" {
		t.Errorf("Get() = %q, want unknown placeholder stripped", out)
	}

	cfg := DefaultConfig()
	cfg.RemoveUnknownVariables = false
	tpl2, err := New(nil, nil, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mustSetTemplate(t, tpl2, `x {never-set} y`)
	if out := mustGet(t, tpl2, RootBlock, false); out != "x {never-set} y" {
		t.Errorf("Get() = %q, want unknown placeholder kept", out)
	}
}

func TestSubstitutedValuesAreNotRescanned(t *testing.T) {
	// keep unknown placeholders so the {b} carried in by a's value is
	// visible in the output instead of being stripped
	cfg := DefaultConfig()
	cfg.RemoveUnknownVariables = false
	tpl, err := New(nil, nil, cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	mustSetTemplate(t, tpl, `{a}{b}`)
	tpl.SetVariables(map[string]string{"a": "{b}", "b": "B"})
	if out := mustGet(t, tpl, RootBlock, false); out != "{b}B" {
		t.Errorf("Get() = %q, want %q", out, "{b}B")
	}
}

func TestPreserveDataMasksDelimiters(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `{a} {never-set}`)
	if err := tpl.SetOption("preserve_data", true); err != nil {
		t.Fatalf("SetOption() error = %v", err)
	}
	tpl.SetVariable("a", "literal {never-set} stays")
	// the masked braces inside the value must survive unknown-variable
	// stripping and come back intact from Get
	if out := mustGet(t, tpl, RootBlock, false); out != "literal {never-set} stays " {
		t.Errorf("Get() = %q", out)
	}
}

func TestInlineFilterPlaceholder(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `{name:h}`)
	if err := tpl.RegisterCallback("h", HTMLEscape, false); err != nil {
		t.Fatalf("RegisterCallback() error = %v", err)
	}
	tpl.SetVariable("name", `<b>&`)
	if out := mustGet(t, tpl, RootBlock, false); out != "&lt;b&gt;&amp;" {
		t.Errorf("Get() = %q, want %q", out, "&lt;b&gt;&amp;")
	}
}

func TestFunctionCallSite(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `func_join('a', {mid}, "c")`)
	if err := tpl.RegisterCallback("join", func(args []string) string {
		return strings.Join(args, "+")
	}, false); err != nil {
		t.Fatalf("RegisterCallback() error = %v", err)
	}
	tpl.SetVariable("mid", "b")
	if out := mustGet(t, tpl, RootBlock, false); out != "a+b+c" {
		t.Errorf("Get() = %q, want %q", out, "a+b+c")
	}
}

func TestUnregisteredFunctionFallsBackToFirstArgument(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `[func_missing('kept', 'dropped')][func_bare()]`)
	if out := mustGet(t, tpl, RootBlock, false); out != "[kept][]" {
		t.Errorf("Get() = %q, want %q", out, "[kept][]")
	}
}

func TestFunctionMemoizedAcrossPass(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `func_stamp('x') func_stamp('x')`)
	calls := 0
	if err := tpl.RegisterCallback("stamp", func(args []string) string {
		calls++
		return args[0]
	}, false); err != nil {
		t.Fatalf("RegisterCallback() error = %v", err)
	}
	if out := mustGet(t, tpl, RootBlock, false); out != "x x" {
		t.Errorf("Get() = %q, want %q", out, "x x")
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1 (identical calls share one site)", calls)
	}
}

func TestFunctionMemoizedAcrossBlocks(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `<!-- BEGIN a -->{v1}:func_stamp('x')<!-- END a --><!-- BEGIN b -->{v2}:func_stamp('x')<!-- END b -->`)
	calls := 0
	if err := tpl.RegisterCallback("stamp", func(args []string) string {
		calls++
		return args[0]
	}, false); err != nil {
		t.Fatalf("RegisterCallback() error = %v", err)
	}
	// both blocks render inside the root's single pass, so the identical
	// call site in the second block reuses the first block's result
	tpl.SetVariables(map[string]string{"v1": "A", "v2": "B"})
	if out := mustGet(t, tpl, RootBlock, false); out != "A:xB:x" {
		t.Errorf("Get() = %q, want %q", out, "A:xB:x")
	}
	if calls != 1 {
		t.Errorf("callback ran %d times, want 1 (identical call sites across blocks share one result)", calls)
	}
}

func TestPreserveArgsSkipsSubstitution(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `func_raw('{a}')`)
	if err := tpl.RegisterCallback("raw", func(args []string) string {
		return args[0]
	}, true); err != nil {
		t.Fatalf("RegisterCallback() error = %v", err)
	}
	tpl.SetVariable("a", "value")
	// with preserveArgs the callback sees the raw argument text; the
	// placeholder inside the result is then stripped as unknown on Get
	out := mustGet(t, tpl, RootBlock, false)
	if out != "" {
		t.Errorf("Get() = %q, want the raw placeholder stripped", out)
	}
}

func TestParseUnknownBlock(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `x`)
	if err := tpl.Parse("nope"); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("Parse(unknown) error = %v, want ErrBlockNotFound", err)
	}
}

func TestNestedBlockBindingSubstitutesAtOuterPass(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `<!-- BEGIN outer -->o:{x}<!-- BEGIN inner -->i:{y}<!-- END inner --><!-- END outer -->`)

	tpl.SetVariable("y", "Y")
	if err := tpl.Parse("inner"); err != nil {
		t.Fatalf("Parse(inner) error = %v", err)
	}
	tpl.SetVariable("x", "X")
	if err := tpl.Parse("outer"); err != nil {
		t.Fatalf("Parse(outer) error = %v", err)
	}
	if out := mustGet(t, tpl, RootBlock, false); out != "o:Xi:Y" {
		t.Errorf("Get() = %q, want %q", out, "o:Xi:Y")
	}
}

func TestNonEmptyChildMakesParentNonEmpty(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `a<!-- BEGIN outer -->[<!-- BEGIN inner -->{v}<!-- END inner -->]<!-- END outer -->b`)

	tpl.SetVariable("v", "V")
	if err := tpl.Parse("outer"); err != nil {
		t.Fatalf("Parse(outer) error = %v", err)
	}
	if out := mustGet(t, tpl, RootBlock, false); out != "a[V]b" {
		t.Errorf("Get() = %q, want %q", out, "a[V]b")
	}
}

func TestShowWritesRoot(t *testing.T) {
	tpl := newTestTemplate(t)
	mustSetTemplate(t, tpl, `hi {who}`)
	tpl.SetVariable("who", "world")
	var sb strings.Builder
	if err := tpl.Show(&sb); err != nil {
		t.Fatalf("Show() error = %v", err)
	}
	if sb.String() != "hi world" {
		t.Errorf("Show() wrote %q, want %q", sb.String(), "hi world")
	}
}
