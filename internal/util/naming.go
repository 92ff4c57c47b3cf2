package util

import (
	"reflect"
	"regexp"
	"runtime"
	"strings"
	"unicode"
)

var anonymousSegment = regexp.MustCompile(`^(func)?\d+$`)

// FuncName returns the unqualified symbol name of a function value, or ""
// for closures and function literals.
func FuncName(fn any) string {
	v := reflect.ValueOf(fn)
	if v.Kind() != reflect.Func || v.IsNil() {
		return ""
	}
	rf := runtime.FuncForPC(v.Pointer())
	if rf == nil {
		return ""
	}
	full := rf.Name()
	name := full[strings.LastIndex(full, ".")+1:]
	name = strings.TrimSuffix(name, "-fm")
	for _, seg := range strings.Split(full, ".") {
		if anonymousSegment.MatchString(seg) {
			return ""
		}
	}
	return name
}

// SnakeCase converts a Go identifier such as "AddNumbers" or "parseHTTPHeader"
// into snake_case.
func SnakeCase(s string) string {
	runes := []rune(s)
	var sb strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) {
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
					sb.WriteByte('_')
				}
			}
			sb.WriteRune(unicode.ToLower(r))
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
