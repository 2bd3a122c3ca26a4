package cos

import "strings"

// JoinWords joins non-empty path/log-name segments with "/", mirroring the
// small helper the transport and CSEG wire-protocol packages lean on when
// building endpoint names (cseg/lookup, ssp/<session-id>, etc.)
func JoinWords(words ...string) string {
	var sb strings.Builder
	for _, w := range words {
		if w == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('/')
		}
		sb.WriteString(w)
	}
	return sb.String()
}

func Plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}
