// Package audio decodes synthesized audio into playable buffers and plays
// them through interchangeable sinks: the system output device (oto/v3), a
// raw PCM writer, and a mock for tests.
package audio
