package handler

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/match"

	"github.com/VoolFI71/go-rdb/internal/resp"
)

// appendText echoes a client supplied string. Anything holding CR or LF
// cannot travel as a simple string and goes out as a bulk string instead.
func appendText(dst []byte, s string) []byte {
	if strings.ContainsAny(s, "\r\n") {
		return resp.AppendBulkString(dst, s)
	}
	return resp.AppendString(dst, s)
}

func execPing(_ *Handler, dst []byte, args []string) []byte {
	if len(args) > 1 {
		return appendText(dst, args[1])
	}
	return resp.AppendPong(dst)
}

func execEcho(_ *Handler, dst []byte, args []string) []byte {
	return appendText(dst, args[1])
}

func execFlushAll(h *Handler, dst []byte, _ []string) []byte {
	h.st.FlushAll()
	return resp.AppendOK(dst)
}

// execKeys lists live keys, optionally filtered by a glob pattern
func execKeys(h *Handler, dst []byte, args []string) []byte {
	keys := h.st.Keys()
	if len(args) > 1 && args[1] != "*" {
		pattern := args[1]
		matched := keys[:0]
		for _, key := range keys {
			if match.Match(key, pattern) {
				matched = append(matched, key)
			}
		}
		keys = matched
	}
	sort.Strings(keys)
	return resp.AppendBulkArray(dst, keys)
}

func execType(h *Handler, dst []byte, args []string) []byte {
	return resp.AppendString(dst, h.st.Type(args[1]).String())
}

// execDel removes every given key and replies with the number removed
func execDel(h *Handler, dst []byte, args []string) []byte {
	deleted := int64(0)
	for _, key := range args[1:] {
		if h.st.Delete(key) {
			deleted++
		}
	}
	return resp.AppendInt(dst, deleted)
}

func execExists(h *Handler, dst []byte, args []string) []byte {
	found := int64(0)
	for _, key := range args[1:] {
		if h.st.Exists(key) {
			found++
		}
	}
	return resp.AppendInt(dst, found)
}

func execExpire(h *Handler, dst []byte, args []string) []byte {
	seconds, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return resp.AppendError(dst, "Invalid expiration time")
	}
	return resp.AppendBool(dst, h.st.Expire(args[1], seconds))
}

// execTTL replies with the remaining seconds, -1 for a key without a
// deadline and -2 for a missing key
func execTTL(h *Handler, dst []byte, args []string) []byte {
	remaining, hasDeadline, exists := h.st.TTL(args[1])
	switch {
	case !exists:
		return resp.AppendInt(dst, -2)
	case !hasDeadline:
		return resp.AppendInt(dst, -1)
	}
	return resp.AppendInt(dst, int64((remaining+500*time.Millisecond)/time.Second))
}

func execPersist(h *Handler, dst []byte, args []string) []byte {
	return resp.AppendBool(dst, h.st.Persist(args[1]))
}

// execRename replies :1 when the key moved and :0 when the source is missing
func execRename(h *Handler, dst []byte, args []string) []byte {
	return resp.AppendBool(dst, h.st.Rename(args[1], args[2]))
}

func execDBSize(h *Handler, dst []byte, _ []string) []byte {
	return resp.AppendInt(dst, int64(h.st.Len()))
}

func execSave(h *Handler, dst []byte, _ []string) []byte {
	if h.saver == nil {
		return resp.AppendError(dst, "Snapshots are disabled")
	}
	if err := h.saver.Save(); err != nil {
		h.log.Errorw("SAVE failed", "error", err)
		return resp.AppendError(dst, "Save failed: "+err.Error())
	}
	return resp.AppendOK(dst)
}

// execConfig answers CONFIG GET with an empty list so benchmark tools that
// query the configuration keep working
func execConfig(_ *Handler, dst []byte, args []string) []byte {
	if !strings.EqualFold(args[1], "GET") {
		return resp.AppendError(dst, "Unsupported CONFIG subcommand")
	}
	return resp.AppendBulkArray(dst, nil)
}

func init() {
	registerCommand("Ping", 1, "", execPing)
	registerCommand("Echo", 2, "a message", execEcho)
	registerCommand("FlushAll", 1, "", execFlushAll)
	registerCommand("Keys", 1, "", execKeys)
	registerCommand("Type", 2, "key", execType)
	registerCommand("Del", 2, "key", execDel)
	registerCommand("Unlink", 2, "key", execDel)
	registerCommand("Exists", 2, "key", execExists)
	registerCommand("Expire", 3, "key and time in seconds", execExpire)
	registerCommand("TTL", 2, "key", execTTL)
	registerCommand("Persist", 2, "key", execPersist)
	registerCommand("Rename", 3, "old key and new key", execRename)
	registerCommand("DBSize", 1, "", execDBSize)
	registerCommand("Save", 1, "", execSave)
	registerCommand("Config", 2, "a subcommand", execConfig)
}
