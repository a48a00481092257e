package disputes

import (
	"time"

	"lendledger-backend/internal/marketplace/mirror"
)

type OpenConflictRequest struct {
	Description string `json:"description"`
}

type ResolveConflictRequest struct {
	Resolution string `json:"resolution"`
	Outcome    string `json:"outcome"` // "complete" | "forfeit"
}

type ConflictResponse struct {
	ID              string     `json:"id"`
	BorrowRequestID string     `json:"borrow_request_id"`
	ReporterID      string     `json:"reporter_id"`
	Description     string     `json:"description"`
	Status          string     `json:"status"`
	Resolution      *string    `json:"resolution,omitempty"`
	Outcome         *string    `json:"outcome,omitempty"`
	ResolverID      *string    `json:"resolver_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
}

type ConflictListResponse struct {
	Conflicts []ConflictResponse `json:"conflicts"`
}

func toResponse(c *mirror.Conflict) ConflictResponse {
	res := ConflictResponse{
		ID:              c.ID,
		BorrowRequestID: c.BorrowRequestID,
		ReporterID:      c.ReporterID,
		Description:     c.Description,
		Status:          string(c.Status),
		CreatedAt:       c.CreatedAt.UTC(),
	}
	if c.Resolution.Valid {
		v := c.Resolution.String
		res.Resolution = &v
	}
	if c.Outcome.Valid {
		v := c.Outcome.String
		res.Outcome = &v
	}
	if c.ResolverID.Valid {
		v := c.ResolverID.String
		res.ResolverID = &v
	}
	if c.ResolvedAt.Valid {
		v := c.ResolvedAt.Time.UTC()
		res.ResolvedAt = &v
	}
	return res
}
