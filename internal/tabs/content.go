package tabs

import "strings"

// ResolveContentType maps a declared content type to the body editor mode.
func ResolveContentType(contentType string) (BodyType, RawType) {
	ct := strings.ToLower(strings.TrimSpace(contentType))
	switch {
	case strings.Contains(ct, "multipart/form-data"):
		return BodyFormData, ""
	case strings.Contains(ct, "application/x-www-form-urlencoded"):
		return BodyFormURLEncoded, ""
	case strings.Contains(ct, "application/json"):
		return BodyRaw, RawJSON
	case strings.Contains(ct, "application/xml"), strings.Contains(ct, "text/xml"):
		return BodyRaw, RawXML
	case strings.Contains(ct, "text/html"):
		return BodyRaw, RawHTML
	case strings.Contains(ct, "application/javascript"), strings.Contains(ct, "text/javascript"):
		return BodyRaw, RawJavaScript
	case strings.HasPrefix(ct, "text/"):
		return BodyRaw, RawText
	case strings.Contains(ct, "octet-stream"), strings.HasPrefix(ct, "image/"),
		strings.Contains(ct, "pdf"), strings.Contains(ct, "zip"):
		return BodyBinary, ""
	default:
		return BodyRaw, RawText
	}
}

// bodyTypeFor picks the editor mode from the first consumed content type.
func bodyTypeFor(consumes []string) (BodyType, RawType) {
	for _, ct := range consumes {
		if strings.TrimSpace(ct) != "" {
			return ResolveContentType(ct)
		}
	}
	return BodyNone, ""
}
