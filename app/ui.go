package app

import (
	"html"
)

// UI layout helpers for consistent rendering.

// Empty renders an empty state message
func Empty(message string) string {
	return `<p class="empty">` + html.EscapeString(message) + `</p>`
}

// CardDiv wraps content in a card container
func CardDiv(content string) string {
	return `<div class="card">` + content + `</div>`
}

// Meta renders muted secondary text
func Meta(content string) string {
	return `<p class="text-muted">` + content + `</p>`
}
