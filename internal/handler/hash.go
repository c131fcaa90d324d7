package handler

import (
	"sort"

	"github.com/VoolFI71/go-rdb/internal/resp"
)

func execHSet(h *Handler, dst []byte, args []string) []byte {
	if len(args)%2 != 0 {
		return resp.AppendError(dst, "HSET requires field value pairs")
	}
	added, err := h.st.HSet(args[1], args[2:]...)
	if err != nil {
		return appendStoreError(dst, err)
	}
	return resp.AppendInt(dst, int64(added))
}

func execHGet(h *Handler, dst []byte, args []string) []byte {
	value, ok, err := h.st.HGet(args[1], args[2])
	if err != nil {
		return appendStoreError(dst, err)
	}
	if !ok {
		return resp.AppendNullBulkString(dst)
	}
	return resp.AppendBulkString(dst, value)
}

func execHDel(h *Handler, dst []byte, args []string) []byte {
	removed, err := h.st.HDel(args[1], args[2:]...)
	if err != nil {
		return appendStoreError(dst, err)
	}
	return resp.AppendInt(dst, int64(removed))
}

func execHExists(h *Handler, dst []byte, args []string) []byte {
	_, ok, err := h.st.HGet(args[1], args[2])
	if err != nil {
		return appendStoreError(dst, err)
	}
	return resp.AppendBool(dst, ok)
}

func execHLen(h *Handler, dst []byte, args []string) []byte {
	n, err := h.st.HLen(args[1])
	if err != nil {
		return appendStoreError(dst, err)
	}
	return resp.AppendInt(dst, int64(n))
}

// hashView selects what HKEYS, HVALS and HGETALL put in their reply
type hashView int

const (
	viewKeys hashView = iota
	viewValues
	viewAll
)

// execHashView replies with fields sorted by name so the output is stable
func execHashView(view hashView) execFunc {
	return func(h *Handler, dst []byte, args []string) []byte {
		hash, err := h.st.HGetAll(args[1])
		if err != nil {
			return appendStoreError(dst, err)
		}
		fields := make([]string, 0, len(hash))
		for field := range hash {
			fields = append(fields, field)
		}
		sort.Strings(fields)

		switch view {
		case viewKeys:
			return resp.AppendBulkArray(dst, fields)
		case viewValues:
			dst = resp.AppendArrayHeader(dst, len(fields))
			for _, field := range fields {
				dst = resp.AppendBulkString(dst, hash[field])
			}
			return dst
		default:
			dst = resp.AppendArrayHeader(dst, 2*len(fields))
			for _, field := range fields {
				dst = resp.AppendBulkString(dst, field)
				dst = resp.AppendBulkString(dst, hash[field])
			}
			return dst
		}
	}
}

func init() {
	registerCommand("HSet", 4, "key, field and value", execHSet)
	registerCommand("HMSet", 4, "key, field and value", execHSet)
	registerCommand("HGet", 3, "key and field", execHGet)
	registerCommand("HDel", 3, "key and field", execHDel)
	registerCommand("HExists", 3, "key and field", execHExists)
	registerCommand("HLen", 2, "key", execHLen)
	registerCommand("HKeys", 2, "key", execHashView(viewKeys))
	registerCommand("HVals", 2, "key", execHashView(viewValues))
	registerCommand("HGetAll", 2, "key", execHashView(viewAll))
}
