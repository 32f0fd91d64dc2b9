package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	// JoinPublic adds the caller as MEMBER of a public community.
	JoinPublic(ctx context.Context, userID snowflake.ID, communityID string) error
	// RequestJoin files a pending request against a restricted community.
	RequestJoin(ctx context.Context, userID snowflake.ID, communityID string, message string) error
	// ListPending returns undecided requests; community admins only.
	ListPending(ctx context.Context, actorID snowflake.ID, communityID string) ([]RequestView, error)
	// ResolveRequest approves or rejects a pending request. Approval grants
	// MEMBER and removes the request in one transaction.
	ResolveRequest(ctx context.Context, actorID snowflake.ID, communityID string, req ResolveRequest) error
	// JoinWithCode redeems an invite code for membership in its community.
	JoinWithCode(ctx context.Context, userID snowflake.ID, code string) (*JoinResult, error)
}

type ResolveRequest struct {
	UserID  string
	Approve bool
}

type JoinResult struct {
	CommunityID string `json:"community_id"`
	Role        string `json:"role"`
}

var (
	ErrDuplicateRequest = errors.New("duplicate_request")
	ErrRequestNotFound  = errors.New("request_not_found")
)
