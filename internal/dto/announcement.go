package dto

// CreateAnnouncementRequest is the payload for posting a notice.
type CreateAnnouncementRequest struct {
	Title   string `json:"title" validate:"required,max=150"`
	Content string `json:"content" validate:"required,max=4000"`
	Pinned  bool   `json:"pinned"`
}
