package resp

import (
	"bytes"
	"strings"
)

var crlf = []byte("\r\n")

// Decode parses one self-contained command frame into its arguments.
//
// A buffer that does not start with '*' is split on whitespace. Otherwise the
// buffer is parsed as an array of bulk strings; the first structural
// violation stops parsing and the arguments collected so far are returned.
// Decode keeps no state between calls and never panics on malformed input.
func Decode(buf []byte) []string {
	if len(buf) == 0 {
		return []string{}
	}
	if buf[0] != RESPArray {
		return strings.Fields(string(buf))
	}

	lineEnd := bytes.Index(buf, crlf)
	if lineEnd == -1 {
		return []string{}
	}
	count, ok := parseLen(buf[1:lineEnd])
	if !ok {
		return []string{}
	}

	args := make([]string, 0, min(count, 64))
	idx := lineEnd + 2
	for i := 0; i < count; i++ {
		if idx >= len(buf) || buf[idx] != RESPBulkString {
			break
		}
		relative := bytes.Index(buf[idx:], crlf)
		if relative == -1 {
			break
		}
		lineEnd = idx + relative
		length, ok := parseLen(buf[idx+1 : lineEnd])
		if !ok {
			break
		}
		idx = lineEnd + 2
		if len(buf)-idx < length {
			break
		}
		// copy: callers keep arguments as map keys and values
		args = append(args, string(buf[idx:idx+length]))
		idx += length
		if len(buf)-idx >= 2 && (buf[idx] != '\r' || buf[idx+1] != '\n') {
			break
		}
		idx += 2
	}
	return args
}

// FrameLen reports the length of the first command frame in buf. complete is
// false while more bytes are needed. Malformed frames are reported complete up
// to the point of the violation so that the caller can discard them instead of
// buffering forever. A frame over the protocol limits yields ErrLimitExceeded.
func FrameLen(buf []byte) (n int, complete bool, err error) {
	if len(buf) == 0 {
		return 0, false, nil
	}

	lf := bytes.IndexByte(buf, '\n')
	if lf == -1 {
		if len(buf) > MaxInlineLen {
			return len(buf), true, ErrLimitExceeded
		}
		return 0, false, nil
	}
	if buf[0] != RESPArray {
		return lf + 1, true, nil
	}

	count, ok := parseLen(buf[1 : lf+1])
	if !ok {
		return lf + 1, true, nil
	}
	if count > MaxArrayLen {
		return lf + 1, true, ErrLimitExceeded
	}

	idx := lf + 1
	for i := 0; i < count; i++ {
		if idx >= len(buf) {
			return 0, false, nil
		}
		if buf[idx] != RESPBulkString {
			return idx, true, nil
		}
		relative := bytes.IndexByte(buf[idx:], '\n')
		if relative == -1 {
			return 0, false, nil
		}
		lf = idx + relative
		length, ok := parseLen(buf[idx+1 : lf+1])
		if !ok {
			return lf + 1, true, nil
		}
		if length > MaxBulkLen {
			return lf + 1, true, ErrLimitExceeded
		}
		idx = lf + 1
		if len(buf)-idx < length+2 {
			return 0, false, nil
		}
		idx += length + 2
	}
	return idx, true, nil
}
