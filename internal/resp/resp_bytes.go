package resp

import (
	"fmt"
)

// ErrorPrefix precedes every error message written by AppendError.
const ErrorPrefix = "Error: "

var (
	okBytes       = []byte("+OK\r\n")
	pongBytes     = []byte("+PONG\r\n")
	nullBulkBytes = []byte("$-1\r\n")
	emptyArrBytes = []byte("*0\r\n")
)

func AppendOK(buf []byte) []byte {
	return append(buf, okBytes...)
}

func AppendPong(buf []byte) []byte {
	return append(buf, pongBytes...)
}

func AppendString(buf []byte, s string) []byte {
	buf = append(buf, RESPString)
	buf = append(buf, s...)
	buf = append(buf, '\r', '\n')
	return buf
}

// AppendError writes "-Error: <msg>\r\n".
func AppendError(buf []byte, msg string) []byte {
	buf = append(buf, RESPError)
	buf = append(buf, ErrorPrefix...)
	buf = append(buf, msg...)
	buf = append(buf, '\r', '\n')
	return buf
}

func AppendBulkString(buf []byte, s string) []byte {
	buf = append(buf, RESPBulkString)
	buf = appendInt(buf, int64(len(s)))
	buf = append(buf, '\r', '\n')
	buf = append(buf, s...)
	buf = append(buf, '\r', '\n')
	return buf
}

func AppendNullBulkString(buf []byte) []byte {
	return append(buf, nullBulkBytes...)
}

func AppendInt(buf []byte, n int64) []byte {
	buf = append(buf, RESPInteger)
	buf = appendInt(buf, n)
	buf = append(buf, '\r', '\n')
	return buf
}

func AppendBool(buf []byte, ok bool) []byte {
	if ok {
		return AppendInt(buf, 1)
	}
	return AppendInt(buf, 0)
}

func AppendArrayHeader(buf []byte, n int) []byte {
	if n == 0 {
		return append(buf, emptyArrBytes...)
	}
	buf = append(buf, RESPArray)
	buf = appendInt(buf, int64(n))
	buf = append(buf, '\r', '\n')
	return buf
}

// AppendBulkArray writes items as an array of bulk strings.
func AppendBulkArray(buf []byte, items []string) []byte {
	buf = AppendArrayHeader(buf, len(items))
	for _, item := range items {
		buf = AppendBulkString(buf, item)
	}
	return buf
}

func appendInt(buf []byte, n int64) []byte {
	if n >= 0 && n < int64(len(intCache)) {
		return append(buf, intCache[n]...)
	}
	u := uint64(n)
	if n < 0 {
		buf = append(buf, '-')
		u = uint64(^n) + 1
	}
	var tmp [20]byte
	i := len(tmp)
	for u > 0 {
		i--
		tmp[i] = byte('0' + u%10)
		u /= 10
	}
	return append(buf, tmp[i:]...)
}

var intCache = func() [][]byte {
	const max = 1024
	cache := make([][]byte, max+1)
	for i := 0; i <= max; i++ {
		cache[i] = []byte(fmt.Sprintf("%d", i))
	}
	return cache
}()
