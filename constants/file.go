package constants

import (
	"mime"
	"path/filepath"
	"strings"
)

const (
	ContentTypePDF         = "application/pdf"
	ContentTypeOctetStream = "application/octet-stream"

	// MaxUploadMBDefault caps a single submitted file.
	MaxUploadMBDefault = 20
	// MaxFlagReasonLength caps the review note stored with a flag, in characters.
	MaxFlagReasonLength = 500
	// MaxImageDimDefault is the longest edge sent to the extraction service.
	MaxImageDimDefault = 2048
)

// AllowedExtensions holds the default file extensions picked up by directory and watch-folder intake.
var AllowedExtensions = map[string]struct{}{
	"pdf":  {},
	"jpg":  {},
	"jpeg": {},
	"png":  {},
	"gif":  {},
	"webp": {},
	"heic": {},
	"tif":  {},
	"tiff": {},
	"bmp":  {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// BaseContentType drops parameters and lowercases a Content-Type value.
func BaseContentType(ct string) string {
	if mt, _, err := mime.ParseMediaType(ct); err == nil {
		return mt
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// IsSupportedContentType accepts any image type and PDF.
func IsSupportedContentType(ct string) bool {
	ct = BaseContentType(ct)
	return ct == ContentTypePDF || (strings.HasPrefix(ct, "image/") && len(ct) > len("image/"))
}

func IsImage(ct string) bool {
	return strings.HasPrefix(BaseContentType(ct), "image/")
}

// ContentTypeFromName guesses a content type from a file name extension.
func ContentTypeFromName(name string) string {
	ext := NormalizeExt(filepath.Ext(name))
	switch ext {
	case "":
		return ""
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "pdf":
		return ContentTypePDF
	case "heic":
		return "image/heic"
	case "webp":
		return "image/webp"
	case "tif", "tiff":
		return "image/tiff"
	}
	return BaseContentType(mime.TypeByExtension("." + ext))
}

// ExtForContentType picks the storage extension, falling back to the file name.
func ExtForContentType(ct, fileName string) string {
	switch BaseContentType(ct) {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return "jpg"
	case "image/png":
		return "png"
	case ContentTypePDF:
		return "pdf"
	case "image/heic", "image/heif":
		return "heic"
	case "image/webp":
		return "webp"
	case "image/gif":
		return "gif"
	case "image/tiff":
		return "tiff"
	case "image/bmp":
		return "bmp"
	}
	if ext := NormalizeExt(filepath.Ext(fileName)); ext != "" {
		return ext
	}
	if sub := strings.TrimPrefix(BaseContentType(ct), "image/"); sub != "" && !strings.ContainsAny(sub, "/+.") {
		return sub
	}
	return "bin"
}
