package items

import (
	"time"

	"lendledger-backend/internal/marketplace/mirror"
)

type CreateItemRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	ImageURL    *string `json:"image_url,omitempty"`
	Condition   string  `json:"condition"`
}

// UpdateItemRequest: nil のフィールドは変更しない
type UpdateItemRequest struct {
	Title       *string `json:"title,omitempty"`
	Description *string `json:"description,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
	Condition   *string `json:"condition,omitempty"`
}

type SetAvailabilityRequest struct {
	Available *bool `json:"available"`
}

// ChainResponse is the cached registry view. Absent until the first sweep.
type ChainResponse struct {
	Fee                   *string    `json:"fee,omitempty"`
	Deposit               *string    `json:"deposit,omitempty"`
	IsAvailable           *bool      `json:"is_available,omitempty"`
	MinBorrowerReputation *int64     `json:"min_borrower_reputation,omitempty"`
	Nonce                 *int64     `json:"nonce,omitempty"`
	MetadataHash          *string    `json:"metadata_hash,omitempty"`
	SyncedAt              *time.Time `json:"synced_at,omitempty"`
}

type ItemResponse struct {
	ID              string         `json:"id"`
	OwnerID         string         `json:"owner_id"`
	Title           string         `json:"title"`
	Description     string         `json:"description"`
	ImageURL        *string        `json:"image_url,omitempty"`
	Condition       string         `json:"condition"`
	Available       bool           `json:"available"`
	ContractItemID  *string        `json:"contract_item_id,omitempty"`
	Chain           *ChainResponse `json:"chain,omitempty"`
	SyncFlag        string         `json:"sync_flag"`
	DriftObservedAt *time.Time     `json:"drift_observed_at,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

type ItemListResponse struct {
	Items  []ItemResponse `json:"items"`
	Limit  int            `json:"limit"`
	Offset int            `json:"offset"`
}

func ToResponse(it *mirror.Item) ItemResponse {
	res := ItemResponse{
		ID:          it.ID,
		OwnerID:     it.OwnerID,
		Title:       it.Title,
		Description: it.Description,
		Condition:   string(it.Condition),
		Available:   it.Available,
		SyncFlag:    string(it.SyncFlag),
		CreatedAt:   it.CreatedAt.UTC(),
		UpdatedAt:   it.UpdatedAt.UTC(),
	}
	if it.ImageURL.Valid {
		v := it.ImageURL.String
		res.ImageURL = &v
	}
	if it.ContractItemID.Valid {
		v := it.ContractItemID.String
		res.ContractItemID = &v
	}
	if it.DriftObservedAt.Valid {
		v := it.DriftObservedAt.Time.UTC()
		res.DriftObservedAt = &v
	}
	if it.Chain.SyncedAt.Valid {
		res.Chain = toChainResponse(it.Chain)
	}
	return res
}

func toChainResponse(p mirror.ChainProjection) *ChainResponse {
	c := &ChainResponse{}
	if p.Fee.Valid {
		v := p.Fee.String
		c.Fee = &v
	}
	if p.Deposit.Valid {
		v := p.Deposit.String
		c.Deposit = &v
	}
	if p.Available.Valid {
		v := p.Available.Bool
		c.IsAvailable = &v
	}
	if p.MinReputation.Valid {
		v := p.MinReputation.Int64
		c.MinBorrowerReputation = &v
	}
	if p.Nonce.Valid {
		v := p.Nonce.Int64
		c.Nonce = &v
	}
	if p.MetadataHash.Valid {
		v := p.MetadataHash.String
		c.MetadataHash = &v
	}
	if p.SyncedAt.Valid {
		v := p.SyncedAt.Time.UTC()
		c.SyncedAt = &v
	}
	return c
}
