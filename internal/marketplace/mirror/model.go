package mirror

import (
	"database/sql"
	"time"
)

type Condition string

const (
	ConditionNew     Condition = "new"
	ConditionLikeNew Condition = "like_new"
	ConditionGood    Condition = "good"
	ConditionFair    Condition = "fair"
	ConditionPoor    Condition = "poor"
)

func (c Condition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// SyncFlag is advisory reconciliation state kept on the item row.
type SyncFlag string

const (
	SyncFlagNone         SyncFlag = "none"
	SyncFlagDrift        SyncFlag = "drift"
	SyncFlagOrphanedLink SyncFlag = "orphaned_link"
)

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusReturned  RequestStatus = "returned"
	StatusConflict  RequestStatus = "conflict"
	StatusForfeited RequestStatus = "forfeited"
)

// NonTerminal reports whether the request still occupies its item.
func (s RequestStatus) NonTerminal() bool {
	return s == StatusPending || s == StatusApproved || s == StatusConflict
}

type ConflictStatus string

const (
	ConflictOpen     ConflictStatus = "open"
	ConflictResolved ConflictStatus = "resolved"
)

type Outcome string

const (
	OutcomeComplete Outcome = "complete"
	OutcomeForfeit  Outcome = "forfeit"
)

// Profile は profiles テーブルの1行を表す
type Profile struct {
	ID            string
	WalletAddress sql.NullString
	Email         sql.NullString
	Username      string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChainProjection is the read-through cache of registry state on an item row.
// Only the reconciliation sweeper writes it.
type ChainProjection struct {
	Fee           sql.NullString
	Deposit       sql.NullString
	Available     sql.NullBool
	MinReputation sql.NullInt64
	Nonce         sql.NullInt64
	MetadataHash  sql.NullString
	SyncedAt      sql.NullTime
}

// Item は items テーブルの1行を表す
type Item struct {
	ID              string
	OwnerID         string
	Title           string
	Description     string
	ImageURL        sql.NullString
	Condition       Condition
	Available       bool
	ContractItemID  sql.NullString
	Chain           ChainProjection
	SyncFlag        SyncFlag
	DriftObservedAt sql.NullTime
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BorrowRequest は borrow_requests テーブルの1行を表す
type BorrowRequest struct {
	ID         string
	ItemID     string
	BorrowerID string
	Status     RequestStatus
	StartDate  time.Time
	EndDate    time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Conflict は conflicts テーブルの1行を表す
type Conflict struct {
	ID              string
	BorrowRequestID string
	ReporterID      string
	Description     string
	Status          ConflictStatus
	Resolution      sql.NullString
	Outcome         sql.NullString
	ResolverID      sql.NullString
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ResolvedAt      sql.NullTime
}

// 一覧取得用の検索条件
type ItemFilter struct {
	OwnerID   *string
	Available *bool
	SyncFlag  *SyncFlag
	Linked    *bool
}

type RequestFilter struct {
	ItemID     *string
	BorrowerID *string
	Status     *RequestStatus
}

type Page struct {
	Limit  int
	Offset int
}

func (p Page) Normalize() Page {
	if p.Limit <= 0 || p.Limit > 200 {
		p.Limit = 50
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return p
}
