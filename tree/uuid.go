package tree

import (
	"strings"

	"github.com/google/uuid"
)

// shortUUIDBase is the Bluetooth SIG base UUID; 16-bit and 32-bit short-form UUIDs
// (e.g. "180d", "2a37") are expanded against it before being stored, so that every UUID
// Value in the tree is a canonical 128-bit, dashed string.
const shortUUIDBase = "00000000-0000-1000-8000-00805f9b34fb"

// Canonical normalizes a UUID string to its dashed, lowercase, 128-bit form. Short-form
// 16-bit/32-bit BLE UUIDs ("180d", "2a37", "0000180d") are expanded against the
// Bluetooth base UUID. Unparsable input is lower-cased and returned unchanged so that a
// malformed UUID is still usable as a stable map key rather than silently dropped.
func Canonical(s string) string {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "" {
		return trimmed
	}

	bare := strings.ReplaceAll(trimmed, "-", "")
	switch len(bare) {
	case 4:
		if u, err := uuid.Parse("0000" + bare + shortUUIDBase[8:]); err == nil {
			return u.String()
		}
	case 8:
		if u, err := uuid.Parse(bare + shortUUIDBase[8:]); err == nil {
			return u.String()
		}
	case 32:
		if u, err := uuid.Parse(dash(bare)); err == nil {
			return u.String()
		}
	}

	if u, err := uuid.Parse(trimmed); err == nil {
		return u.String()
	}
	return trimmed
}

func dash(bare string) string {
	return bare[0:8] + "-" + bare[8:12] + "-" + bare[12:16] + "-" + bare[16:20] + "-" + bare[20:32]
}
