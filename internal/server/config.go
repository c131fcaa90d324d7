package server

import "time"

const (
	EngineNet  = "net"
	EngineGnet = "gnet"
)

// Config holds the connection boundary settings. Zero timeouts and limits
// disable the corresponding check.
type Config struct {
	Addr   string
	Engine string

	// ReadTimeout bounds reading the rest of a command once its first byte
	// arrived; IdleTimeout bounds the wait for the next command.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// RateLimit is the number of commands per second allowed per client IP.
	RateLimit float64
	// MaxConns caps concurrently served connections on the net engine.
	MaxConns int
	// Multicore runs one gnet event loop per CPU.
	Multicore bool
	// ShutdownTimeout bounds the shutdown triggered by the Serve context.
	ShutdownTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Addr:            "0.0.0.0:6379",
		Engine:          EngineNet,
		Multicore:       true,
		ShutdownTimeout: 10 * time.Second,
	}
}
