package lending

import (
	"fmt"
	"time"

	"lendledger-backend/internal/marketplace/mirror"
	"lendledger-backend/internal/platform/apierr"
)

const DateLayout = "2006-01-02"

type CreateBorrowRequest struct {
	ItemID    string `json:"item_id"`
	StartDate string `json:"start_date"` // "2006-01-02" または RFC3339
	EndDate   string `json:"end_date"`
}

type RaiseConflictRequest struct {
	Description string `json:"description"`
}

type BorrowRequestResponse struct {
	ID         string    `json:"id"`
	ItemID     string    `json:"item_id"`
	BorrowerID string    `json:"borrower_id"`
	Status     string    `json:"status"`
	StartDate  time.Time `json:"start_date"`
	EndDate    time.Time `json:"end_date"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

type BorrowRequestListResponse struct {
	Requests []BorrowRequestResponse `json:"requests"`
	Limit    int                     `json:"limit"`
	Offset   int                     `json:"offset"`
}

func toResponse(br *mirror.BorrowRequest) BorrowRequestResponse {
	return BorrowRequestResponse{
		ID:         br.ID,
		ItemID:     br.ItemID,
		BorrowerID: br.BorrowerID,
		Status:     string(br.Status),
		StartDate:  br.StartDate.UTC(),
		EndDate:    br.EndDate.UTC(),
		CreatedAt:  br.CreatedAt.UTC(),
		UpdatedAt:  br.UpdatedAt.UTC(),
	}
}

// ParseWindowTime accepts a calendar date or an RFC3339 timestamp.
func ParseWindowTime(field, v string) (time.Time, error) {
	if t, err := time.Parse(DateLayout, v); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, apierr.InvalidWindow(fmt.Sprintf("%s must be YYYY-MM-DD or RFC3339", field))
}
