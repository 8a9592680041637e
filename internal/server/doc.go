// Package server exposes the linechat hub over the network.
//
// The TCP Listener frames each connection as newline-delimited lines and the
// HTTP side server adds a WebSocket gateway (one text frame per line), a
// health check, JSON stats and Prometheus metrics. Configuration comes from
// defaults, an optional TOML file and CHAT_* environment variables.
package server
