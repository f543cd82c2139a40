// Package testutil provides filesystem fixtures for hierosoft tests.
//
// Trees are described as map[string]string keyed by slash-separated
// relative paths:
//   - "dir/"          an empty directory (value ignored)
//   - "a/b.txt"       a regular file holding the value
//   - "link" : "-> t" a symlink pointing at t
//
// TreeSnapshot reads a directory back into the same shape so whole trees
// can be compared with assert.Equal.
package testutil
