// Package publish posts feed text to the outside world.
//
// Publisher is the only contract the scheduler depends on. Retrying adds rate
// limiting and bounded exponential backoff around any Publisher; Telegram posts
// to a channel through telebot.
package publish
