// Package apierr holds the tagged business errors every core operation returns
// and their mapping onto HTTP responses.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeInvalidWindow         Code = "INVALID_WINDOW"
	CodeSelfBorrow            Code = "SELF_BORROW"
	CodeNotFound              Code = "NOT_FOUND"
	CodeNotOwner              Code = "NOT_OWNER"
	CodeNotParticipant        Code = "NOT_PARTICIPANT"
	CodeItemUnavailable       Code = "ITEM_UNAVAILABLE"
	CodeInvalidTransition     Code = "INVALID_TRANSITION"
	CodeDuplicateOpenConflict Code = "DUPLICATE_OPEN_CONFLICT"
	CodeAlreadyResolved       Code = "ALREADY_RESOLVED"
	CodeAlreadyLinked         Code = "ALREADY_LINKED"
	CodeCollision             Code = "COLLISION"
	CodeOnChainPrecondition   Code = "ON_CHAIN_PRECONDITION"
	CodeInternal              Code = "INTERNAL"
)

// Kind groups codes by who is at fault and whether a retry can help.
type Kind string

const (
	KindValidation Kind = "validation"
	KindInvariant  Kind = "invariant"
	KindExternal   Kind = "external"
	KindDrift      Kind = "drift"
	KindInternal   Kind = "internal"
)

var kinds = map[Code]Kind{
	CodeInvalidArgument:       KindValidation,
	CodeInvalidWindow:         KindValidation,
	CodeSelfBorrow:            KindValidation,
	CodeNotFound:              KindValidation,
	CodeNotOwner:              KindValidation,
	CodeNotParticipant:        KindValidation,
	CodeItemUnavailable:       KindInvariant,
	CodeInvalidTransition:     KindInvariant,
	CodeDuplicateOpenConflict: KindInvariant,
	CodeAlreadyResolved:       KindInvariant,
	CodeAlreadyLinked:         KindInvariant,
	CodeCollision:             KindInvariant,
	CodeOnChainPrecondition:   KindExternal,
	CodeInternal:              KindInternal,
}

type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Kind reports the taxonomy bucket of e.
func (e *APIError) Kind() Kind {
	if k, ok := kinds[e.Code]; ok {
		return k
	}
	return KindInternal
}

// Is matches any *APIError with the same code, so callers can write
// errors.Is(err, apierr.ItemUnavailable("")).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

func New(code Code, msg string) *APIError { return &APIError{Code: code, Message: msg} }

func Invalid(msg string) *APIError           { return New(CodeInvalidArgument, msg) }
func InvalidWindow(msg string) *APIError     { return New(CodeInvalidWindow, msg) }
func SelfBorrow() *APIError                  { return New(CodeSelfBorrow, "borrower owns the item") }
func NotFound(msg string) *APIError          { return New(CodeNotFound, msg) }
func NotOwner() *APIError                    { return New(CodeNotOwner, "only the item owner may do this") }
func NotParticipant() *APIError              { return New(CodeNotParticipant, "actor is neither the owner nor the borrower") }
func ItemUnavailable(msg string) *APIError   { return New(CodeItemUnavailable, msg) }
func InvalidTransition(from, to string) *APIError {
	return New(CodeInvalidTransition, fmt.Sprintf("cannot move from %s to %s", from, to))
}
func DuplicateOpenConflict() *APIError     { return New(CodeDuplicateOpenConflict, "an open conflict already exists for this request") }
func AlreadyResolved() *APIError           { return New(CodeAlreadyResolved, "conflict is already resolved") }
func AlreadyLinked(existing string) *APIError {
	return New(CodeAlreadyLinked, "item is already linked to on-chain id "+existing)
}
func Collision(onChainID string) *APIError {
	return New(CodeCollision, "on-chain id "+onChainID+" is linked to another item")
}
func OnChainPrecondition(msg string) *APIError { return New(CodeOnChainPrecondition, msg) }
func Internal(msg string) *APIError            { return New(CodeInternal, msg) }

// CodeOf returns the code carried by err, or CodeInternal for anything untagged.
func CodeOf(err error) Code {
	var api *APIError
	if errors.As(err, &api) {
		return api.Code
	}
	return CodeInternal
}

func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeInvalidArgument, CodeInvalidWindow, CodeSelfBorrow:
		return http.StatusBadRequest
	case CodeNotOwner, CodeNotParticipant:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeItemUnavailable, CodeInvalidTransition, CodeDuplicateOpenConflict,
		CodeAlreadyResolved, CodeAlreadyLinked, CodeCollision:
		return http.StatusConflict
	case CodeOnChainPrecondition:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Body builds the JSON error envelope written by every handler.
func Body(code Code, msg string) any {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// BodyFromErr hides untagged error text behind a generic message.
func BodyFromErr(err error) any {
	var api *APIError
	if errors.As(err, &api) {
		return Body(api.Code, api.Message)
	}
	return Body(CodeInternal, "internal error")
}
