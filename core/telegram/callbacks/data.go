// Package callbacks encodes and decodes inline button callback data.
package callbacks

import (
	"strconv"
	"strings"
)

// telebotPrefix marks data produced by telebot's own Btn helpers.
const telebotPrefix = "\f"

const sep = "|"

// Encode joins unique and payload. An empty unique returns payload unchanged.
func Encode(unique, payload string) string {
	if unique == "" {
		return payload
	}
	return unique + sep + payload
}

// Parse splits data into unique and payload. Data without a separator is
// all payload, so plain buttons round-trip through Encode("", data).
func Parse(data string) (unique, payload string) {
	tagged := strings.HasPrefix(data, telebotPrefix)
	data = strings.TrimPrefix(data, telebotPrefix)
	unique, payload, found := strings.Cut(data, sep)
	if !found {
		if tagged {
			return strings.TrimSpace(unique), ""
		}
		return "", data
	}
	return strings.TrimSpace(unique), payload
}

// PayloadInt64 parses the payload part of data as int64.
func PayloadInt64(data string) (int64, error) {
	_, p := Parse(data)
	return strconv.ParseInt(p, 10, 64)
}

// PayloadParts splits the payload part of data by s.
func PayloadParts(data, s string) ([]string, error) {
	_, p := Parse(data)
	if p == "" {
		return nil, strconv.ErrSyntax
	}
	return strings.Split(p, s), nil
}
