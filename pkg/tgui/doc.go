// Package tgui holds small Telegram UI helpers: HTML-safe text building,
// inline keyboards, and callback data formatting. It knows nothing about
// games; the bot layer composes these into concrete screens.
package tgui
