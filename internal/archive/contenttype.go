package archive

// ContentType maps a short format token to its MIME type. Unknown formats
// resolve to an empty string and the object is stored without one.
func ContentType(format string) string {
	switch format {
	case "json":
		return "application/json"
	case "xml":
		return "application/xml"
	case "zpl":
		return "text/plain"
	case "png":
		return "image/png"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "gif":
		return "image/gif"
	case "bmp":
		return "image/bmp"
	case "pdf":
		return "application/pdf"
	default:
		return ""
	}
}
