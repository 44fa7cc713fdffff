/*
Package sourcecache provides an SQLite-backed cache of raw template sources.

Reading templates from slow or remote storage on every load is wasteful when
sources rarely change. CachedSource wraps any sigma.Source and memoizes the
bytes it returns, keyed by path and modification time: a cached entry is
served only while its recorded modification time still equals the live
source's, so a touched file is always re-read.

The cache is an optimization layer. Every failure inside it degrades to
reading the wrapped source directly.
*/
package sourcecache
