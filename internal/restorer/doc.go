// Package restorer downloads SSTable objects into a local directory tree.
//
// Matches are split into groups. Each group is handled by a single worker,
// which downloads the objects of the group one after another. Several workers
// run concurrently. A failed object is counted and reported but never stops
// the other downloads.
//
// Target paths mirror the object key below the snapshot base prefix followed
// by the keyspace and table directories:
//
//   <dst>/snapshots/<host>/sstables/<keyspace>/<table>/<name>
//
// or, when flattening, just <dst>/<name>.
package restorer
