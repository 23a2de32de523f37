package models

import "time"

// Announcement is a notice posted by staff and readable by every role.
type Announcement struct {
	ID         string    `db:"id" json:"id"`
	Title      string    `db:"title" json:"title"`
	Content    string    `db:"content" json:"content"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	AuthorName string    `db:"author_name" json:"author_name"`
	AuthorRole UserRole  `db:"author_role" json:"author_role"`
	Pinned     bool      `db:"pinned" json:"pinned"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// AnnouncementFilter allows listing announcements.
type AnnouncementFilter struct {
	Page     int
	PageSize int
}
