// Package cdp implements a Chrome DevTools Protocol client multiplexer: a
// single WebSocket connection to a browser, JSON-RPC-style command
// correlation, event fan-out to registered listeners, and a tree of
// logical sessions (one root browser session plus attached page/frame
// sessions) sharing that one connection.
package cdp
