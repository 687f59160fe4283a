package services

import (
	"strings"
)

func stringParam(params map[string]interface{}, key string) string {
	if params == nil {
		return ""
	}
	s, _ := params[key].(string)
	return strings.TrimSpace(s)
}

// floatParam reads a finite number; numeric strings are accepted.
func floatParam(params map[string]interface{}, key string) (float64, bool) {
	if params == nil {
		return 0, false
	}
	v, ok := params[key]
	if !ok || v == nil {
		return 0, false
	}
	return toNumber(v)
}

func intParam(params map[string]interface{}, key string, def int) int {
	f, ok := floatParam(params, key)
	if !ok {
		return def
	}
	return int(f)
}
