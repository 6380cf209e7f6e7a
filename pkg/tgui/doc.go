// Package tgui holds markup helpers for chat channels that accept
// Telegram-style HTML: escaping, tag builders and size-bounded joins.
//
// Values of type H are already escaped; plain strings never are.
package tgui
