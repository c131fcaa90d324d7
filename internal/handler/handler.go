// Package handler maps decoded command arguments to storage operations and
// renders the replies. A Handler keeps no per-connection state and may be
// shared by every connection.
package handler

import (
	"fmt"
	"strings"

	"github.com/VictoriaMetrics/metrics"
	"go.uber.org/zap"

	"github.com/VoolFI71/go-rdb/internal/resp"
	"github.com/VoolFI71/go-rdb/internal/storage"
)

// Saver writes a snapshot of the store. It backs the SAVE command.
type Saver interface {
	Save() error
}

type Handler struct {
	st    *storage.Storage
	saver Saver
	log   *zap.SugaredLogger
}

type Option func(*Handler)

func WithSaver(saver Saver) Option {
	return func(h *Handler) {
		h.saver = saver
	}
}

func WithLogger(log *zap.SugaredLogger) Option {
	return func(h *Handler) {
		h.log = log
	}
}

func New(st *storage.Storage, opts ...Option) *Handler {
	h := &Handler{
		st:  st,
		log: zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// execFunc receives the full argument list, command name included, and
// appends its reply to dst.
type execFunc func(h *Handler, dst []byte, args []string) []byte

type command struct {
	name    string
	minArgs int
	usage   string
	exec    execFunc
	calls   *metrics.Counter
}

var (
	cmdTable = make(map[string]*command)

	emptyCommands   = metrics.GetOrCreateCounter(`rdb_commands_rejected_total{reason="empty"}`)
	unknownCommands = metrics.GetOrCreateCounter(`rdb_commands_rejected_total{reason="unknown"}`)
	arityErrors     = metrics.GetOrCreateCounter(`rdb_commands_rejected_total{reason="arity"}`)
)

// registerCommand adds a command. minArgs counts the command name itself;
// usage completes the "<NAME> requires ..." error.
func registerCommand(name string, minArgs int, usage string, exec execFunc) {
	name = strings.ToUpper(name)
	cmdTable[name] = &command{
		name:    name,
		minArgs: minArgs,
		usage:   usage,
		exec:    exec,
		calls:   metrics.GetOrCreateCounter(fmt.Sprintf(`rdb_commands_total{command=%q}`, strings.ToLower(name))),
	}
}

// Dispatch executes one command and returns the encoded reply.
func (h *Handler) Dispatch(args []string) []byte {
	return h.AppendDispatch(nil, args)
}

// AppendDispatch executes one command and appends the encoded reply to dst.
// Argument counts are checked before the store is touched.
func (h *Handler) AppendDispatch(dst []byte, args []string) []byte {
	if len(args) == 0 {
		emptyCommands.Inc()
		return resp.AppendError(dst, "Empty Command")
	}
	cmd, ok := cmdTable[normalizeCommandName(args[0])]
	if !ok {
		unknownCommands.Inc()
		h.log.Debugw("unknown command", "command", args[0])
		return resp.AppendError(dst, "Unknown Command")
	}
	cmd.calls.Inc()
	if len(args) < cmd.minArgs {
		arityErrors.Inc()
		return resp.AppendError(dst, cmd.name+" requires "+cmd.usage)
	}
	return cmd.exec(h, dst, args)
}

// normalizeCommandName upper-cases ASCII without allocating for names that
// are already upper case.
func normalizeCommandName(name string) string {
	for i := 0; i < len(name); i++ {
		if c := name[i]; c >= 'a' && c <= 'z' {
			return strings.ToUpper(name)
		}
	}
	return name
}

// appendStoreError renders an error returned by a typed storage operation.
func appendStoreError(dst []byte, err error) []byte {
	return resp.AppendError(dst, err.Error())
}
