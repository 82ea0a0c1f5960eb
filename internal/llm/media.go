package llm

import (
	"encoding/base64"
)

// DataURL encodes data as an RFC 2397 base64 data URL.
func DataURL(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// Base64 is the bare encoding used for inline payloads.
func Base64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}
