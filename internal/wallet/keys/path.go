package keys

import (
	"strconv"
	"strings"

	"github/chapool/wallet-core/internal/wallet/errs"
)

// HardenedOffset is added to an index to mark it hardened.
const HardenedOffset uint32 = 0x80000000

// ParsePath parses a derivation path into child indices.
// Example: "m/44'/60'/0'/0/0" -> [2147483692, 2147483708, 2147483648, 0, 0]
// Both ' and h mark a hardened segment.
func ParsePath(path string) ([]uint32, error) {
	path = strings.TrimSpace(path)
	if path != "m" && !strings.HasPrefix(path, "m/") {
		return nil, errs.KeyDerivation("invalid derivation path %q: must start with m/", path)
	}

	if path == "m" {
		return []uint32{}, nil
	}

	parts := strings.Split(path[2:], "/")
	indices := make([]uint32, 0, len(parts))

	for _, part := range parts {
		hardened := false
		if strings.HasSuffix(part, "'") || strings.HasSuffix(part, "h") || strings.HasSuffix(part, "H") {
			hardened = true
			part = part[:len(part)-1]
		}

		if part == "" {
			return nil, errs.KeyDerivation("invalid derivation path %q: empty segment", path)
		}

		index, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return nil, errs.KeyDerivation("invalid path segment %q", part)
		}

		if uint32(index) >= HardenedOffset {
			return nil, errs.KeyDerivation("path index %d out of range", index)
		}

		if hardened {
			index += uint64(HardenedOffset)
		}

		indices = append(indices, uint32(index))
	}

	return indices, nil
}

// IsHardened reports whether index carries the hardened flag.
func IsHardened(index uint32) bool {
	return index >= HardenedOffset
}
