package storage

import (
	"path"
	"strings"

	"itou_backend/platform/apperr"
)

// AllowedContentTypes lists the MIME types accepted for prolongation reports.
var AllowedContentTypes = map[string]bool{
	"application/pdf": true,
}

// ValidateContentType checks if the content type is allowed.
func ValidateContentType(contentType string) error {
	// Drop parameters such as charset.
	normalized := strings.Split(contentType, ";")[0]
	normalized = strings.TrimSpace(strings.ToLower(normalized))

	if !AllowedContentTypes[normalized] {
		return apperr.ValidationField("content_type", "only PDF reports are accepted")
	}
	return nil
}

// ValidateFileSize checks that sizeBytes is positive and at most maxSize.
func ValidateFileSize(sizeBytes, maxSize int64) error {
	if sizeBytes <= 0 {
		return apperr.ValidationField("size_bytes", "file size must be greater than 0")
	}
	if maxSize > 0 && sizeBytes > maxSize {
		return apperr.ValidationField("size_bytes", "file exceeds the maximum allowed size")
	}
	return nil
}

// ObjectKey builds a unique key under folder for fileName. Directory parts
// of fileName are dropped and suffix is inserted before the extension.
func ObjectKey(folder, fileName, suffix string) string {
	base := path.Base(strings.ReplaceAll(fileName, "\\", "/"))
	if base == "." || base == "/" {
		base = "report"
	}
	ext := path.Ext(base)
	name := strings.TrimSuffix(base, ext)
	return path.Join(folder, name+"_"+suffix+ext)
}
