package imaging

import "net/http"

// DetectMIME sniffs the media type from magic bytes for uploads that arrive
// without a usable declared type. net/http.DetectContentType covers JPEG and
// PNG; WebP is checked separately because the WHATWG sniff spec (and
// therefore the stdlib) has no WebP signature. Only types on the accepted
// allow-list are reported.
func DetectMIME(data []byte) (string, bool) {
	if isWebP(data) {
		return "image/webp", true
	}
	switch mime := http.DetectContentType(data); mime {
	case "image/jpeg", "image/png":
		return mime, true
	}
	return "", false
}

// isWebP reports whether data is a WebP image (RIFF container with "WEBP" at
// offset 8).
func isWebP(data []byte) bool {
	return len(data) >= 12 &&
		string(data[0:4]) == "RIFF" &&
		string(data[8:12]) == "WEBP"
}
