package tgui

// MaxMessageRunes is Telegram's sendMessage text limit.
const MaxMessageRunes = 4096
