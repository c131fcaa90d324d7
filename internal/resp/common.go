// Package resp implements the request side of the RESP protocol (array of
// bulk strings, with a whitespace-split inline fallback) and the reply
// encoders used by the command handler.
package resp

import (
	"errors"
	"fmt"
)

const (
	RESPString     = '+'
	RESPError      = '-'
	RESPInteger    = ':'
	RESPBulkString = '$'
	RESPArray      = '*'
)

// Protocol limits enforced by the streaming reader.
const (
	MaxArrayLen  = 1024 * 1024
	MaxBulkLen   = 512 * 1024 * 1024
	MaxInlineLen = 64 * 1024
)

// ErrLimitExceeded reports a frame over one of the protocol limits.
var ErrLimitExceeded = errors.New("resp: limit exceeded")

// ParseInt parses a signed decimal number, optionally followed by CRLF.
func ParseInt(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("empty number")
	}
	neg := false
	if data[0] == '-' {
		neg = true
		data = data[1:]
	}
	n, ok := parseLen(data)
	if !ok {
		return 0, fmt.Errorf("invalid number %q", data)
	}
	if neg {
		return -n, nil
	}
	return n, nil
}

// parseLen parses an unsigned decimal length. data holds only digits, or
// digits followed by exactly CRLF. At least one digit is required.
func parseLen(data []byte) (int, bool) {
	if n := len(data); n >= 2 && data[n-2] == '\r' && data[n-1] == '\n' {
		data = data[:n-2]
	}
	if len(data) == 0 {
		return 0, false
	}
	result := 0
	for _, b := range data {
		if b < '0' || b > '9' {
			return 0, false
		}
		result = result*10 + int(b-'0')
		if result < 0 {
			return 0, false
		}
	}
	return result, true
}
