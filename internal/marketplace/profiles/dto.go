package profiles

import (
	"time"

	"lendledger-backend/internal/marketplace/mirror"
)

type ProfileResponse struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	Email         *string   `json:"email,omitempty"`
	WalletAddress *string   `json:"wallet_address,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type UpdateWalletRequest struct {
	WalletAddress string `json:"wallet_address"` // 空文字で解除
}

func toResponse(p *mirror.Profile) ProfileResponse {
	res := ProfileResponse{
		ID:        p.ID,
		Username:  p.Username,
		CreatedAt: p.CreatedAt.UTC(),
		UpdatedAt: p.UpdatedAt.UTC(),
	}
	if p.Email.Valid {
		v := p.Email.String
		res.Email = &v
	}
	if p.WalletAddress.Valid {
		v := p.WalletAddress.String
		res.WalletAddress = &v
	}
	return res
}
