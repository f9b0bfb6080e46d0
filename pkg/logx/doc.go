// Package logx configures relaybot's structured logging.
//
// A small value-type wrapper (logx.Logger) on top of zerolog keeps:
//   - Console output readable (short timestamp + short caller)
//   - File output JSON-structured
//   - An optional console-channel sink (min-level + rate limiting) that
//     mirrors warnings to the bot's Telegram operations chat
package logx
