// Package channel defines the delivery capability shared by every alert
// channel and the error taxonomy adapters report with.
//
// An adapter delivers one rendered alert to one recipient. It returns nil on
// success, a *ConfigError when it cannot be attempted at all, or a
// *TransportError when the attempt failed. Adapters never retry; retrying is
// the next cycle's job.
//
// Variants live in subpackages: email, chatbot, telegram, messaging.
package channel
