package core

import "fmt"

// Byte size units.
const (
	BytesPerKB int64 = 1024
	BytesPerMB       = 1024 * BytesPerKB
	BytesPerGB       = 1024 * BytesPerMB
)

// FormatBytes returns a human-readable size such as "1.50 GB". Negative
// values format as zero.
func FormatBytes(bytes int64) string {
	if bytes < 0 {
		bytes = 0
	}
	switch {
	case bytes >= BytesPerGB:
		return fmt.Sprintf("%.2f GB", float64(bytes)/float64(BytesPerGB))
	case bytes >= BytesPerMB:
		return fmt.Sprintf("%.2f MB", float64(bytes)/float64(BytesPerMB))
	case bytes >= BytesPerKB:
		return fmt.Sprintf("%.2f KB", float64(bytes)/float64(BytesPerKB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
