package oauth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/tidwall/gjson"
)

// DecodeAccountID reads claimKey from the object found at claimPath inside
// the token's payload segment. The signature is not verified; the result is an
// identity hint only. Any failure yields "".
func DecodeAccountID(token string, claimPath []string, claimKey string) string {
	if claimKey == "" {
		return ""
	}
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return ""
	}
	payload, err := jwt.NewParser().DecodeSegment(parts[1])
	if err != nil || !gjson.ValidBytes(payload) {
		return ""
	}

	components := make([]string, 0, len(claimPath)+1)
	for _, key := range claimPath {
		components = append(components, escapePathComponent(key))
	}
	components = append(components, escapePathComponent(claimKey))

	value := gjson.GetBytes(payload, strings.Join(components, "."))
	if value.Type != gjson.String {
		return ""
	}
	return value.Str
}

// escapePathComponent makes a literal key safe for a gjson path. Claim names
// such as "https://api.example.com/auth" contain path syntax.
func escapePathComponent(key string) string {
	var b strings.Builder
	b.Grow(len(key))
	for _, r := range key {
		isWord := r == '_' || r == '-' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r > 0x7f
		if !isWord {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
