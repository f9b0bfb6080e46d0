// Package tgui holds small Telegram presentation helpers:
//   - HTML escaping and inline tags for ParseMode="HTML"
//   - Field cards ("<b>Label:</b> value" lines)
//   - Inline keyboard builder with raw callback data
package tgui
