package models

import "time"

// Enhancement is one generative-image run, journaled in PostgreSQL.
type Enhancement struct {
	ID        string    `json:"id"`
	UserID    string    `json:"-"`
	SourceKey string    `json:"-"`
	ResultKey string    `json:"-"`
	ResultURL string    `json:"imageUrl"`
	Prompt    string    `json:"prompt"`
	Style     string    `json:"style"`
	Upscaling string    `json:"upscaling"`
	CreatedAt time.Time `json:"createdAt"`
}

// EnhanceRequest is the JSON body for POST /image/ImageEnhancer.
type EnhanceRequest struct {
	Prompt    string `json:"prompt"    validate:"max=200"`
	Style     string `json:"style"     validate:"required,oneof=original hyperrealistic anime cyberpunk oil_painting watercolor pixel_art"`
	Upscaling string `json:"upscaling" validate:"omitempty,oneof=1x 2x 4x 8x"`
}
