package logging

import (
	"time"
)

// Common field constructors
func String(key, value string) Field {
	return Field{Key: key, Value: value}
}

func Int(key string, value int) Field {
	return Field{Key: key, Value: value}
}

func Uint64(key string, value uint64) Field {
	return Field{Key: key, Value: value}
}

func Bool(key string, value bool) Field {
	return Field{Key: key, Value: value}
}

func Duration(key string, value time.Duration) Field {
	return Field{Key: key, Value: value.String()}
}

func Error(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: nil}
	}
	return Field{Key: "error", Value: err.Error()}
}

func Any(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Cluster field helpers

func Component(name string) Field {
	return String("component", name)
}

// ServerID tags the entry with the local server's id.
func ServerID(id string) Field {
	return String("server_id", id)
}

// Peer tags the entry with a remote server's id.
func Peer(id string) Field {
	return String("peer", id)
}

func Coordinator(id string) Field {
	return String("coordinator", id)
}

func Group(group string) Field {
	return String("group", group)
}

func Phase(phase string) Field {
	return String("phase", phase)
}

func MessageType(t string) Field {
	return String("message_type", t)
}

func Attempt(n int) Field {
	return Int("attempt", n)
}

func Latency(d time.Duration) Field {
	return Duration("latency", d)
}

func Count(n int) Field {
	return Int("count", n)
}
