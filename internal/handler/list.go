package handler

import (
	"strconv"

	"github.com/VoolFI71/go-rdb/internal/resp"
)

func execPush(left bool) execFunc {
	return func(h *Handler, dst []byte, args []string) []byte {
		n, err := h.st.Push(args[1], left, args[2:]...)
		if err != nil {
			return appendStoreError(dst, err)
		}
		return resp.AppendInt(dst, int64(n))
	}
}

func execPop(left bool) execFunc {
	return func(h *Handler, dst []byte, args []string) []byte {
		item, ok, err := h.st.Pop(args[1], left)
		if err != nil {
			return appendStoreError(dst, err)
		}
		if !ok {
			return resp.AppendNullBulkString(dst)
		}
		return resp.AppendBulkString(dst, item)
	}
}

func execLLen(h *Handler, dst []byte, args []string) []byte {
	n, err := h.st.LLen(args[1])
	if err != nil {
		return appendStoreError(dst, err)
	}
	return resp.AppendInt(dst, int64(n))
}

func execLRange(h *Handler, dst []byte, args []string) []byte {
	start, err1 := strconv.Atoi(args[2])
	stop, err2 := strconv.Atoi(args[3])
	if err1 != nil || err2 != nil {
		return resp.AppendError(dst, "Invalid index")
	}
	items, err := h.st.LRange(args[1], start, stop)
	if err != nil {
		return appendStoreError(dst, err)
	}
	return resp.AppendBulkArray(dst, items)
}

func execLIndex(h *Handler, dst []byte, args []string) []byte {
	index, err := strconv.Atoi(args[2])
	if err != nil {
		return resp.AppendError(dst, "Invalid index")
	}
	item, ok, err := h.st.LIndex(args[1], index)
	if err != nil {
		return appendStoreError(dst, err)
	}
	if !ok {
		return resp.AppendNullBulkString(dst)
	}
	return resp.AppendBulkString(dst, item)
}

func init() {
	registerCommand("LPush", 3, "key and value", execPush(true))
	registerCommand("RPush", 3, "key and value", execPush(false))
	registerCommand("LPop", 2, "key", execPop(true))
	registerCommand("RPop", 2, "key", execPop(false))
	registerCommand("LLen", 2, "key", execLLen)
	registerCommand("LRange", 4, "key, start and stop", execLRange)
	registerCommand("LIndex", 3, "key and index", execLIndex)
}
