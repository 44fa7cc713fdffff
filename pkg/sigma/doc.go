/*
Package sigma implements a block-based text template engine. Templates are
plain text with named, nestable BEGIN/END regions ("blocks"), {placeholder}
variables and func_name(...) callback invocations. A template is compiled once
into an in-memory block tree and then rendered any number of times against
caller-supplied variable bindings, with repeated passes over the same block
accumulating output (the classic way to build table rows).

Blocks that receive no local binding and no non-empty child output are elided
from the rendered result by default; TouchBlock and HideBlock override that
decision for exactly one render pass. Compiled templates can be persisted to
an ArtifactStore and reloaded without recompiling as long as the source file's
modification time is unchanged.

A Template is a single compilation unit and is not safe for concurrent use.
Compilation and rendering are synchronous, in-memory traversals; hosts that
want concurrency must give each goroutine its own Template instance, which
share nothing except, optionally, the artifact store (safe, because artifacts
are only ever replaced atomically).
*/
package sigma
