package auth

import "time"

type User struct {
	ID           int64
	Email        string
	PasswordHash string
	Verified     bool
	AvatarURL    *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type UserSummary struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
}

func (u User) Summary() UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email, Verified: u.Verified}
}

type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
}
