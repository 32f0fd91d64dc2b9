package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/openatrium/atrium/pkg/db/pagination"
)

type Service interface {
	// Post appends a chat message; any member role may post.
	Post(ctx context.Context, userID snowflake.ID, communityID string, body string) (*MessageView, error)
	// List pages the community chat newest first; any member role may read.
	List(ctx context.Context, userID snowflake.ID, communityID string, page pagination.Pagination) (*MessagePage, error)
}

type MessagePage struct {
	Messages []MessageView       `json:"messages"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

var ErrEmptyMessage = errors.New("empty_message")
