package resp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ReadFrame reads the raw bytes of one command frame from reader and appends
// them to dst. The frame is not validated beyond what is needed to find its
// end: a structural violation ends the frame early and Decode reports the
// arguments that precede it.
//
// io.EOF is returned only when the connection closes between frames.
func ReadFrame(reader *bufio.Reader, dst []byte) ([]byte, error) {
	line, err := readLine(reader)
	if err != nil {
		return dst, err
	}
	dst = append(dst, line...)
	if line[0] != RESPArray {
		return dst, nil
	}

	count, ok := parseLen(line[1:])
	if !ok {
		return dst, nil
	}
	if count > MaxArrayLen {
		return dst, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, count, MaxArrayLen)
	}

	for i := 0; i < count; i++ {
		line, err = readLine(reader)
		if err != nil {
			return dst, unexpected(err)
		}
		dst = append(dst, line...)
		if line[0] != RESPBulkString {
			return dst, nil
		}
		length, ok := parseLen(line[1:])
		if !ok {
			return dst, nil
		}
		if length > MaxBulkLen {
			return dst, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, length, MaxBulkLen)
		}

		dst = growCmdBuf(dst, length+2)
		start := len(dst)
		dst = dst[:start+length+2]
		if _, err = io.ReadFull(reader, dst[start:]); err != nil {
			return dst[:start], unexpected(err)
		}
	}
	return dst, nil
}

// readLine returns the next line including its trailing LF. The returned
// slice is only valid until the next read.
func readLine(reader *bufio.Reader) ([]byte, error) {
	line, err := reader.ReadSlice('\n')
	if err == nil {
		return line, nil
	}
	if !errors.Is(err, bufio.ErrBufferFull) {
		if len(line) > 0 && errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	buf := append([]byte(nil), line...)
	for {
		line, err = reader.ReadSlice('\n')
		buf = append(buf, line...)
		if len(buf) > MaxInlineLen {
			return nil, fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, MaxInlineLen)
		}
		if err == nil {
			return buf, nil
		}
		if !errors.Is(err, bufio.ErrBufferFull) {
			return nil, unexpected(err)
		}
	}
}

func unexpected(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func growCmdBuf(buf []byte, need int) []byte {
	if cap(buf)-len(buf) >= need {
		return buf
	}
	newCap := cap(buf) * 2
	if newCap < len(buf)+need {
		newCap = len(buf) + need
	}
	newBuf := make([]byte, len(buf), newCap)
	copy(newBuf, buf)
	return newBuf
}

// AppendCommand encodes args as an array of bulk strings.
func AppendCommand(buf []byte, args ...string) []byte {
	buf = AppendArrayHeader(buf, len(args))
	for _, arg := range args {
		buf = AppendBulkString(buf, arg)
	}
	return buf
}

// IsQuit reports whether the frame's command closes the connection.
func IsQuit(args []string) bool {
	return len(args) > 0 && (strings.EqualFold(args[0], "QUIT") || strings.EqualFold(args[0], "EXIT"))
}
