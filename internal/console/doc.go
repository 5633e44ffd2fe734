// Package console provides line-oriented access to a bootloader serial
// console exposed over a network transport.
//
// The package deals only in bytes, lines, and timing: reading until the
// target goes quiet, stripping echoed input, recovering a prompt with
// repeated interrupts, and discovering an unknown prompt string. It knows
// nothing about any particular bootloader's command set; that lives in the
// shell package, which drives a Console.
//
// Transports are dialed from a URI: "tcp://host:port" (or a bare
// "host:port") for telnet-style serial bridges such as ser2net, and
// "ws://host:port/path" for WebSocket bridges.
//
// A Monitor may be attached to observe all traffic in both directions.
// Delivery to monitors is asynchronous and bounded so a slow observer can
// never stall the session.
package console
