package service

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/openatrium/atrium/internal/auth/domain"
	"github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/community/repository"
	"github.com/openatrium/atrium/internal/config"
	"github.com/openatrium/atrium/internal/events"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	invitecoderepository "github.com/openatrium/atrium/internal/invitecode/repository"
	joindomain "github.com/openatrium/atrium/internal/join/domain"
	messagedomain "github.com/openatrium/atrium/internal/message/domain"
	"github.com/openatrium/atrium/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db       *gorm.DB
	svc      domain.Service
	repo     domain.Repository
	codeRepo invitecodedomain.Repository
	node     *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&authdomain.User{},
		&domain.Community{},
		&domain.Member{},
		&invitecodedomain.InviteCode{},
		&joindomain.JoinRequest{},
		&messagedomain.Message{},
		&events.CommunityEvent{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holder, err := config.NewPlatformConfigHolder()
	require.NoError(t, err)

	repo := repository.NewRepository(conn)
	codeRepo := invitecoderepository.NewRepository(conn)
	svc := NewService(conn, repo, codeRepo, holder, node, events.NewOutboxPublisher(conn, node))

	return &testEnv{
		db:       conn,
		svc:      svc,
		repo:     repo,
		codeRepo: codeRepo,
		node:     node,
	}
}

func (e *testEnv) seedUser(t *testing.T, name string) snowflake.ID {
	t.Helper()
	id := e.node.Generate()
	user := authdomain.User{
		ID:       id,
		Username: fmt.Sprintf("%s-%d", name, id),
		Email:    fmt.Sprintf("%s-%d@example.com", name, id),
		Name:     name,
	}
	require.NoError(t, e.db.Create(&user).Error)
	return id
}

func (e *testEnv) createCommunity(t *testing.T, creator snowflake.ID, communityType string) snowflake.ID {
	t.Helper()
	resp, err := e.svc.Create(context.Background(), creator, domain.CreateCommunityRequest{
		Name: fmt.Sprintf("Study Group %d", e.node.Generate()),
		Type: communityType,
	})
	require.NoError(t, err)
	id, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)
	return id
}

func TestCreateCommunitySeedsAdminAndCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")

	communityID := env.createCommunity(t, creator, domain.TypePublic)

	role, err := env.repo.GetMemberRole(ctx, communityID, creator)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, role)

	for _, codeType := range []string{invitecodedomain.CodeTypeMember, invitecodedomain.CodeTypeAdmin} {
		code, err := env.codeRepo.FindByCommunityAndType(ctx, communityID, codeType)
		require.NoError(t, err)
		require.NotEmpty(t, code.Code)
	}
}

func TestSetRoleKeepsSingleMembershipRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	communityID := env.createCommunity(t, creator, domain.TypePublic)

	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleModerator))

	role, err := env.repo.GetMemberRole(ctx, communityID, member)
	require.NoError(t, err)
	require.Equal(t, domain.RoleModerator, role)

	var rows int64
	require.NoError(t, env.db.Model(&domain.Member{}).
		Where("community_id = ? AND user_id = ?", communityID, member).
		Count(&rows).Error)
	require.Equal(t, int64(1), rows)
}

func TestSetRoleIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	communityID := env.createCommunity(t, creator, domain.TypePublic)

	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))

	role, err := env.repo.GetMemberRole(ctx, communityID, member)
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, role)
}

func TestSetRoleUnknownCommunity(t *testing.T) {
	env := newTestEnv(t)
	member := env.seedUser(t, "bob")

	err := env.svc.SetRole(context.Background(), env.node.Generate(), member, domain.RoleMember)
	require.ErrorIs(t, err, domain.ErrCommunityNotFound)
}

func TestLastAdminCannotStepDown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	communityID := env.createCommunity(t, creator, domain.TypePublic)

	err := env.svc.SetRole(ctx, communityID, creator, domain.RoleMember)
	require.ErrorIs(t, err, domain.ErrLastAdmin)

	err = env.svc.SetRole(ctx, communityID, creator, domain.RoleNone)
	require.ErrorIs(t, err, domain.ErrLastAdmin)

	// A second admin releases the guard.
	second := env.seedUser(t, "bob")
	require.NoError(t, env.svc.SetRole(ctx, communityID, second, domain.RoleAdmin))
	require.NoError(t, env.svc.SetRole(ctx, communityID, creator, domain.RoleMember))

	role, err := env.repo.GetMemberRole(ctx, communityID, creator)
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, role)
}

func TestUpdateRolePromoteAndDemote(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	communityID := env.createCommunity(t, creator, domain.TypePublic)
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))

	state, err := env.svc.UpdateRole(ctx, creator, communityID.String(), domain.UpdateRoleRequest{
		UserID: member.String(),
		Action: "promote",
		Role:   "moderator",
	})
	require.NoError(t, err)
	require.Len(t, state.Moderators, 1)

	state, err = env.svc.UpdateRole(ctx, creator, communityID.String(), domain.UpdateRoleRequest{
		UserID: member.String(),
		Action: "demote",
	})
	require.NoError(t, err)
	require.Len(t, state.Moderators, 0)
	require.Len(t, state.Members, 1)
}

func TestUpdateRoleRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	outsider := env.seedUser(t, "carol")
	communityID := env.createCommunity(t, creator, domain.TypePublic)
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))

	_, err := env.svc.UpdateRole(ctx, member, communityID.String(), domain.UpdateRoleRequest{
		UserID: creator.String(),
		Action: "demote",
	})
	require.ErrorIs(t, err, domain.ErrForbidden)

	_, err = env.svc.UpdateRole(ctx, creator, communityID.String(), domain.UpdateRoleRequest{
		UserID: outsider.String(),
		Action: "promote",
		Role:   "moderator",
	})
	require.ErrorIs(t, err, domain.ErrMemberNotFound)
}

func TestUpdateRoleValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	communityID := env.createCommunity(t, creator, domain.TypePublic)
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))

	_, err := env.svc.UpdateRole(ctx, creator, communityID.String(), domain.UpdateRoleRequest{
		UserID: member.String(),
		Action: "promote",
		Role:   "emperor",
	})
	require.ErrorIs(t, err, domain.ErrInvalidRole)

	_, err = env.svc.UpdateRole(ctx, creator, communityID.String(), domain.UpdateRoleRequest{
		UserID: member.String(),
		Action: "banish",
	})
	require.ErrorIs(t, err, domain.ErrInvalidAction)
}

func TestPerformActionLeave(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	communityID := env.createCommunity(t, creator, domain.TypePublic)
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))

	require.NoError(t, env.svc.PerformAction(ctx, member, communityID.String(), domain.ActionLeave))

	role, err := env.repo.GetMemberRole(ctx, communityID, member)
	require.NoError(t, err)
	require.Equal(t, domain.RoleNone, role)

	err = env.svc.PerformAction(ctx, member, communityID.String(), domain.ActionLeave)
	require.ErrorIs(t, err, domain.ErrMemberNotFound)

	err = env.svc.PerformAction(ctx, creator, communityID.String(), domain.ActionLeave)
	require.ErrorIs(t, err, domain.ErrLastAdmin)
}

func TestPerformActionClearChat(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	communityID := env.createCommunity(t, creator, domain.TypePublic)
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))

	for i := 0; i < 3; i++ {
		msg := messagedomain.Message{
			ID:          env.node.Generate(),
			CommunityID: communityID,
			UserID:      member,
			Body:        "hello",
		}
		require.NoError(t, env.db.Create(&msg).Error)
	}

	err := env.svc.PerformAction(ctx, member, communityID.String(), domain.ActionClearChat)
	require.ErrorIs(t, err, domain.ErrForbidden)

	require.NoError(t, env.svc.PerformAction(ctx, creator, communityID.String(), domain.ActionClearChat))

	var remaining int64
	require.NoError(t, env.db.Model(&messagedomain.Message{}).
		Where("community_id = ?", communityID).
		Count(&remaining).Error)
	require.Equal(t, int64(0), remaining)

	// Membership survives a chat wipe.
	role, err := env.repo.GetMemberRole(ctx, communityID, member)
	require.NoError(t, err)
	require.Equal(t, domain.RoleMember, role)
}

func TestPerformActionDeleteCascades(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	communityID := env.createCommunity(t, creator, domain.TypePublic)
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))

	request := joindomain.JoinRequest{
		ID:          env.node.Generate(),
		CommunityID: communityID,
		UserID:      env.seedUser(t, "carol"),
	}
	require.NoError(t, env.db.Create(&request).Error)

	require.NoError(t, env.svc.PerformAction(ctx, creator, communityID.String(), domain.ActionDeleteCommunity))

	_, err := env.svc.Get(ctx, communityID.String())
	require.ErrorIs(t, err, domain.ErrCommunityNotFound)

	for _, table := range []string{"community_members", "community_codes", "join_requests", "messages"} {
		var rows int64
		require.NoError(t, env.db.Table(table).Where("community_id = ?", communityID).Count(&rows).Error)
		require.Equal(t, int64(0), rows, "expected no %s rows", table)
	}
}

func TestPerformActionDeleteProtectsDefault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	communityID := env.createCommunity(t, creator, domain.TypePublic)

	require.NoError(t, env.repo.UpdateFields(ctx, communityID, map[string]any{"is_default": true}))

	err := env.svc.PerformAction(ctx, creator, communityID.String(), domain.ActionDeleteCommunity)
	require.ErrorIs(t, err, domain.ErrProtectedCommunity)
}

func (e *testEnv) countEvents(t *testing.T, communityID snowflake.ID, eventType string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, e.db.Model(&events.CommunityEvent{}).
		Where("community_id = ? AND event_type = ?", communityID, eventType).
		Count(&count).Error)
	return count
}

func TestRoleChangeWritesOutboxRow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	member := env.seedUser(t, "bob")
	communityID := env.createCommunity(t, creator, domain.TypePublic)
	require.NoError(t, env.svc.SetRole(ctx, communityID, member, domain.RoleMember))

	_, err := env.svc.UpdateRole(ctx, creator, communityID.String(), domain.UpdateRoleRequest{
		UserID: member.String(),
		Action: "promote",
		Role:   "moderator",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), env.countEvents(t, communityID, events.MemberRoleChangedTopic))

	// A rejected transition leaves no row behind.
	_, err = env.svc.UpdateRole(ctx, member, communityID.String(), domain.UpdateRoleRequest{
		UserID: creator.String(),
		Action: "demote",
	})
	require.ErrorIs(t, err, domain.ErrForbidden)
	require.Equal(t, int64(1), env.countEvents(t, communityID, events.MemberRoleChangedTopic))
}

func TestDestructiveActionsWriteOutboxRows(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	creator := env.seedUser(t, "alice")
	communityID := env.createCommunity(t, creator, domain.TypePublic)

	require.NoError(t, env.svc.PerformAction(ctx, creator, communityID.String(), domain.ActionClearChat))
	require.Equal(t, int64(1), env.countEvents(t, communityID, events.ChatClearedTopic))

	require.NoError(t, env.svc.PerformAction(ctx, creator, communityID.String(), domain.ActionDeleteCommunity))
	require.Equal(t, int64(1), env.countEvents(t, communityID, events.CommunityDeletedTopic))
}

func TestParseAction(t *testing.T) {
	cases := map[string]domain.Action{
		"clear-chat": domain.ActionClearChat,
		"delete":     domain.ActionDeleteCommunity,
		"leave":      domain.ActionLeave,
	}
	for raw, want := range cases {
		got, err := domain.ParseAction(raw)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}

	_, err := domain.ParseAction("explode")
	require.True(t, errors.Is(err, domain.ErrInvalidAction))
}
