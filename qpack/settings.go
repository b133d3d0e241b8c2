package qpack

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Settings is this module's typed view of the two peer-exchanged knobs
// from §6, plus local tuning that has no wire representation.
type Settings struct {
	// MaxTableCapacity is the upper bound the local decoder will accept
	// via SetDynamicTableCapacity (SETTINGS_QPACK_MAX_TABLE_CAPACITY).
	MaxTableCapacity uint64 `yaml:"max_table_capacity"`
	// BlockedStreams is the maximum number of streams that may be
	// simultaneously blocked on pending inserts (SETTINGS_QPACK_BLOCKED_STREAMS).
	BlockedStreams uint64 `yaml:"blocked_streams"`
	// MaxStringLiteralLength bounds the length prefix of a single name or
	// value literal (for a Huffman-coded literal, its encoded length), so a
	// malicious or buggy peer can't make the decoder buffer an unbounded
	// literal before the length check fails.
	MaxStringLiteralLength uint64 `yaml:"max_string_literal_length"`
	// HuffmanPreference controls whether the encoder Huffman-encodes
	// outgoing literals. Accepts "auto", "always" or "never" in YAML.
	HuffmanPreference HuffmanPreference `yaml:"huffman_preference"`
}

// DefaultSettings returns the defaults this module ships with: a 4096-byte
// dynamic table, 16 concurrently blocked streams, a 64KiB literal buffer,
// and Huffman-when-smaller encoding. These match common HTTP/3 stack
// defaults and require no I/O.
func DefaultSettings() *Settings {
	return &Settings{
		MaxTableCapacity:       4096,
		BlockedStreams:         16,
		MaxStringLiteralLength: 65536,
		HuffmanPreference:      HuffmanAuto,
	}
}

// LoadSettings parses a YAML document of Settings, applying
// DefaultSettings for any field the document omits.
func LoadSettings(r io.Reader) (*Settings, error) {
	settings := DefaultSettings()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("qpack: read settings: %w", err)
	}
	if len(raw) == 0 {
		return settings, nil
	}

	var doc rawSettingsDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("qpack: parse settings: %w", err)
	}

	if doc.MaxTableCapacity != nil {
		settings.MaxTableCapacity = *doc.MaxTableCapacity
	}
	if doc.BlockedStreams != nil {
		settings.BlockedStreams = *doc.BlockedStreams
	}
	if doc.MaxStringLiteralLength != nil {
		settings.MaxStringLiteralLength = *doc.MaxStringLiteralLength
	}
	if doc.HuffmanPreference != "" {
		pref, err := parseHuffmanPreference(doc.HuffmanPreference)
		if err != nil {
			return nil, err
		}
		settings.HuffmanPreference = pref
	}

	return settings, nil
}

// rawSettingsDoc mirrors Settings with optional fields, so LoadSettings can
// tell "absent" apart from "explicitly zero".
type rawSettingsDoc struct {
	MaxTableCapacity       *uint64 `yaml:"max_table_capacity"`
	BlockedStreams         *uint64 `yaml:"blocked_streams"`
	MaxStringLiteralLength *uint64 `yaml:"max_string_literal_length"`
	HuffmanPreference      string  `yaml:"huffman_preference"`
}

func parseHuffmanPreference(s string) (HuffmanPreference, error) {
	switch s {
	case "auto":
		return HuffmanAuto, nil
	case "always":
		return HuffmanAlways, nil
	case "never":
		return HuffmanNever, nil
	default:
		return 0, fmt.Errorf("qpack: invalid huffman_preference %q", s)
	}
}
