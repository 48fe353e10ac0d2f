package chat

import "time"

// Session captures a transient anonymous conversation held for a widget
// visitor. UserInfo is opaque client metadata (origin URL, referrer, ...)
// and is stored without interpretation.
type Session struct {
	ID           string         `json:"id"`
	CreatedAt    time.Time      `json:"createdAt"`
	LastActiveAt time.Time      `json:"lastActiveAt"`
	UserInfo     map[string]any `json:"userInfo,omitempty"`
	Messages     []Message      `json:"messages"`
}
