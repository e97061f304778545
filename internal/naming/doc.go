// Package naming maps source recordings to their output and scratch
// locations. The mapping is purely mechanical: outputs mirror the source's
// position under the destination root, with the basename carrying the
// _compressed.mp4 marker that discovery also uses to skip finished work.
// FolderID extracts the first-level folder the scheduler interleaves on.
package naming
