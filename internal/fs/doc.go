// Package fs is the filesystem seam under a linkdb directory. The config
// document, the page block files, the page directories and the lock file are
// all reached through a [FileSystem].
//
// [LocalFS] is the production implementation and [Default] holds it.
// [FaultyFS] wraps another FileSystem and fails reads, writes, syncs, opens,
// truncates or renames of files whose path contains a pattern:
//
//	ffs := fs.NewFaultyFS(nil)
//	ffs.AddRule(".blk", fs.Fault{FailOnRead: true, FailAfterBytes: -1})
//
// Nothing here takes a context.Context; local file calls cannot be
// interrupted once issued.
package fs
