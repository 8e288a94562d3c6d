// Package cache stores synthesized audio keyed by a fingerprint of the
// spoken text, the voice options and the audio format.
//
// Backends share the Store interface: an in-memory LRU, a zstd-compressed
// directory of files, a SQLite database, and a tiered store that fronts the
// disk store with memory. AudioCache adapts any Store to the
// text/options/format vocabulary used by the loader.
package cache
