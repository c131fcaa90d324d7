package handler

import (
	"github.com/VoolFI71/go-rdb/internal/resp"
)

func execSet(h *Handler, dst []byte, args []string) []byte {
	h.st.Set(args[1], args[2])
	return resp.AppendOK(dst)
}

func execGet(h *Handler, dst []byte, args []string) []byte {
	value, ok := h.st.Get(args[1])
	if !ok {
		return resp.AppendNullBulkString(dst)
	}
	return resp.AppendBulkString(dst, value)
}

func init() {
	registerCommand("Set", 3, "key and value", execSet)
	registerCommand("Get", 2, "key", execGet)
}
