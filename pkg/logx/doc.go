// Package logx wraps zerolog with a small value-type Logger.
//
// A Service owns the sinks (console on stderr, JSON file) and can swap them
// at runtime; every Logger handed out by the Service follows the swap.
package logx
