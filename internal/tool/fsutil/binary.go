package fsutil

// BinarySampleSize is how many leading bytes IsBinary inspects.
const BinarySampleSize = 8192

// IsBinary reports whether content looks binary: a NUL byte within the
// sample, unless the content starts with a UTF-16 or UTF-32 byte order mark.
func IsBinary(content []byte) bool {
	if len(content) >= 2 {
		if (content[0] == 0xFF && content[1] == 0xFE) || (content[0] == 0xFE && content[1] == 0xFF) {
			return false
		}
	}
	if len(content) >= 4 && content[0] == 0x00 && content[1] == 0x00 && content[2] == 0xFE && content[3] == 0xFF {
		return false
	}

	n := min(len(content), BinarySampleSize)
	for i := range n {
		if content[i] == 0 {
			return true
		}
	}
	return false
}
