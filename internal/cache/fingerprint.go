package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"

	"github.com/adrianlyjak/obsidian-aloud-tts-sub000/internal/tts"
	"golang.org/x/text/unicode/norm"
)

// keyVersion is bumped whenever the key layout changes, orphaning old entries.
const keyVersion = "v1"

// Fingerprint returns the cache key for text spoken with opts and encoded as
// format. text is the normalized chunk text, never the raw source, so that
// markup-only edits keep hitting the same entry.
func Fingerprint(opts tts.Options, format tts.AudioFormat, text string) string {
	h := sha256.New()
	for _, part := range []string{
		keyVersion,
		opts.Serialize(),
		string(format),
		norm.NFC.String(text),
	} {
		_, _ = io.WriteString(h, part)
		_, _ = h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))
}
