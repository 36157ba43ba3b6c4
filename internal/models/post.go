package models

import (
	"time"
	"unicode/utf8"
)

// Post is user-authored content. UserID is the owning user and never changes
// after creation; (CreatedAt, ID) is the listing sort key.
type Post struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	Title  string `gorm:"not null" json:"title"`
	Body   string `gorm:"not null" json:"body"`
	UserID uint   `gorm:"not null;index" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID" json:"user"`
	// Snippet is not persisted; computed for list responses
	Snippet   string    `gorm:"-" json:"text_snippet,omitempty"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

const snippetRunes = 50

// TextSnippet returns the leading runes of the body for list views.
func (p *Post) TextSnippet() string {
	if utf8.RuneCountInString(p.Body) <= snippetRunes {
		return p.Body
	}
	return string([]rune(p.Body)[:snippetRunes])
}
