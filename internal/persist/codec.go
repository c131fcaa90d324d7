// Package persist stores the key space in a line oriented text snapshot:
//
//	K <key> <value>
//	L <key> <item1> <item2> ...
//	H <key> <field1>:<value1> <field2>:<value2> ...
//
// Tokens are separated by single spaces. Entries whose keys or values are
// empty or contain whitespace cannot be represented and are not written.
// Deadlines are not stored; every restored
// key is permanent.
package persist

import (
	"bufio"
	"errors"
	"io"
	"sort"
	"strings"
	"unicode"

	"github.com/valyala/bytebufferpool"

	"github.com/VoolFI71/go-rdb/internal/storage"
)

const (
	tagString = "K"
	tagList   = "L"
	tagHash   = "H"
)

// Encode writes one record per entry. Hash fields are written in sorted order.
// Entries holding a token the format cannot carry (an empty key, value or list
// item, any whitespace, or a ':' inside a hash field) are left out whole and
// counted in skipped.
func Encode(w io.Writer, entries []storage.Entry) (skipped int, err error) {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	for _, e := range entries {
		if !encodable(e) {
			skipped++
			continue
		}
		buf.Reset()
		switch e.Kind {
		case storage.KindString:
			buf.B = appendTokens(buf.B, tagString, e.Key, e.Str)
		case storage.KindList:
			buf.B = append(buf.B, tagList...)
			buf.B = append(buf.B, ' ')
			buf.B = append(buf.B, e.Key...)
			buf.B = append(buf.B, ' ')
			buf.B = appendTokens(buf.B, e.List...)
		case storage.KindHash:
			fields := make([]string, 0, len(e.Hash))
			for field := range e.Hash {
				fields = append(fields, field)
			}
			sort.Strings(fields)
			buf.B = append(buf.B, tagHash...)
			buf.B = append(buf.B, ' ')
			buf.B = append(buf.B, e.Key...)
			for _, field := range fields {
				buf.B = append(buf.B, ' ')
				buf.B = append(buf.B, field...)
				buf.B = append(buf.B, ':')
				buf.B = append(buf.B, e.Hash[field]...)
			}
			buf.B = append(buf.B, '\n')
		}
		if _, err := w.Write(buf.B); err != nil {
			return skipped, err
		}
	}
	return skipped, nil
}

// encodable reports whether e survives a dump and load unchanged.
func encodable(e storage.Entry) bool {
	if !validToken(e.Key) {
		return false
	}
	switch e.Kind {
	case storage.KindString:
		return validToken(e.Str)
	case storage.KindList:
		if len(e.List) == 0 {
			return false
		}
		for _, item := range e.List {
			if !validToken(item) {
				return false
			}
		}
		return true
	case storage.KindHash:
		if len(e.Hash) == 0 {
			return false
		}
		for field, val := range e.Hash {
			if !validToken(field) || strings.IndexByte(field, ':') >= 0 || hasSpace(val) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

func validToken(s string) bool {
	return s != "" && !hasSpace(s)
}

func hasSpace(s string) bool {
	return strings.IndexFunc(s, unicode.IsSpace) >= 0
}

// appendTokens writes tokens separated by spaces and ends the line.
func appendTokens(dst []byte, tokens ...string) []byte {
	for i, tok := range tokens {
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = append(dst, tok...)
	}
	return append(dst, '\n')
}

// Decode reads records until EOF. Malformed lines are skipped and reported
// through the skipped count; only read errors are returned.
func Decode(r io.Reader) (entries []storage.Entry, skipped int, err error) {
	br := bufio.NewReader(r)
	for {
		line, readErr := br.ReadString('\n')
		if len(line) > 0 {
			if e, ok := decodeLine(line); ok {
				entries = append(entries, e)
			} else if strings.TrimSpace(line) != "" {
				skipped++
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return entries, skipped, nil
			}
			return entries, skipped, readErr
		}
	}
}

func decodeLine(line string) (storage.Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return storage.Entry{}, false
	}
	e := storage.Entry{Key: fields[1]}
	switch fields[0] {
	case tagString:
		if len(fields) < 3 {
			return storage.Entry{}, false
		}
		e.Kind = storage.KindString
		e.Str = fields[2]
	case tagList:
		if len(fields) < 3 {
			return storage.Entry{}, false
		}
		e.Kind = storage.KindList
		e.List = fields[2:]
	case tagHash:
		e.Kind = storage.KindHash
		e.Hash = make(map[string]string, len(fields)-2)
		for _, pair := range fields[2:] {
			field, val, ok := strings.Cut(pair, ":")
			if !ok {
				continue
			}
			e.Hash[field] = val
		}
		if len(e.Hash) == 0 {
			return storage.Entry{}, false
		}
	default:
		return storage.Entry{}, false
	}
	return e, true
}
