package service

import (
	"context"
	"fmt"
	"testing"

	"github.com/bwmarrin/snowflake"
	authdomain "github.com/openatrium/atrium/internal/auth/domain"
	authrepository "github.com/openatrium/atrium/internal/auth/repository"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	communityrepository "github.com/openatrium/atrium/internal/community/repository"
	communityservice "github.com/openatrium/atrium/internal/community/service"
	"github.com/openatrium/atrium/internal/config"
	"github.com/openatrium/atrium/internal/institution/domain"
	"github.com/openatrium/atrium/internal/institution/repository"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	invitecoderepository "github.com/openatrium/atrium/internal/invitecode/repository"
	joindomain "github.com/openatrium/atrium/internal/join/domain"
	messagedomain "github.com/openatrium/atrium/internal/message/domain"
	"github.com/openatrium/atrium/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testSecret = "platform-secret"

type testEnv struct {
	db            *gorm.DB
	svc           domain.Service
	repo          domain.Repository
	communityRepo communitydomain.Repository
	node          *snowflake.Node
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&authdomain.User{},
		&domain.Institution{},
		&domain.InstitutionCode{},
		&communitydomain.Community{},
		&communitydomain.Member{},
		&invitecodedomain.InviteCode{},
		&joindomain.JoinRequest{},
		&messagedomain.Message{},
	))

	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	holder, err := config.NewPlatformConfigHolder()
	require.NoError(t, err)

	cfg := config.Config{PlatformAdminSecret: testSecret}

	authRepo, _ := authrepository.New(conn)
	communityRepo := communityrepository.NewRepository(conn)
	codeRepo := invitecoderepository.NewRepository(conn)
	communitySvc := communityservice.NewService(conn, communityRepo, codeRepo, holder, node, nil)
	repo := repository.NewRepository(conn)
	svc := NewService(conn, cfg, repo, authRepo, communityRepo, communitySvc, codeRepo, holder, node)

	return &testEnv{db: conn, svc: svc, repo: repo, communityRepo: communityRepo, node: node}
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

func (e *testEnv) createInstitution(t *testing.T, name string) *domain.InstitutionResponse {
	t.Helper()
	resp, err := e.svc.Create(context.Background(), domain.CreateInstitutionRequest{
		Name:   name,
		Secret: testSecret,
	})
	require.NoError(t, err)
	return resp
}

func (e *testEnv) codeOfType(t *testing.T, institutionID string, codeType string) string {
	t.Helper()
	id, err := snowflake.ParseString(institutionID)
	require.NoError(t, err)

	var code domain.InstitutionCode
	require.NoError(t, e.db.Where("institution_id = ? AND type = ?", id, codeType).First(&code).Error)
	return code.Code
}

func TestCreateInstitutionRequiresSecret(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, domain.CreateInstitutionRequest{Name: "Acme U", Secret: "wrong"})
	require.ErrorIs(t, err, domain.ErrInvalidSecret)

	_, err = env.svc.Create(ctx, domain.CreateInstitutionRequest{Name: "Acme U"})
	require.ErrorIs(t, err, domain.ErrInvalidSecret)
}

func TestCreateInstitutionProvisions(t *testing.T) {
	env := newTestEnv(t)
	resp := env.createInstitution(t, "Acme University")
	require.Equal(t, "acme-university", resp.Slug)

	institutionID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	// Both enrollment codes exist.
	for _, codeType := range []string{domain.CodeTypeMember, domain.CodeTypeAdmin} {
		require.NotEmpty(t, env.codeOfType(t, resp.ID, codeType))
	}

	// A default welcome community is seeded with its own invite codes.
	defaultID, err := env.repo.DefaultCommunityID(context.Background(), institutionID)
	require.NoError(t, err)
	require.NotZero(t, defaultID)

	community, err := env.communityRepo.FindByID(context.Background(), defaultID)
	require.NoError(t, err)
	require.True(t, community.IsDefault)
	require.Equal(t, communitydomain.TypePublic, community.Type)

	var codes int64
	require.NoError(t, env.db.Model(&invitecodedomain.InviteCode{}).
		Where("community_id = ?", defaultID).
		Count(&codes).Error)
	require.Equal(t, int64(2), codes)
}

func TestJoinByCodeEnrollsAndAutoJoins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.createInstitution(t, "Acme University")
	user := env.seedUser(t, "alice")

	result, err := env.svc.JoinByCode(ctx, user, env.codeOfType(t, resp.ID, domain.CodeTypeMember))
	require.NoError(t, err)
	require.Equal(t, resp.ID, result.InstitutionID)
	require.False(t, result.IsInstitutionAdmin)

	institutionID, err := snowflake.ParseString(resp.ID)
	require.NoError(t, err)

	var stored authdomain.User
	require.NoError(t, env.db.First(&stored, "id = ?", user).Error)
	require.Equal(t, institutionID, stored.InstitutionID)
	require.False(t, stored.IsInstitutionAdmin)

	defaultID, err := env.repo.DefaultCommunityID(ctx, institutionID)
	require.NoError(t, err)
	role, err := env.communityRepo.GetMemberRole(ctx, defaultID, user)
	require.NoError(t, err)
	require.Equal(t, communitydomain.RoleMember, role)
}

func TestJoinByCodeAdminUpgrade(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.createInstitution(t, "Acme University")
	user := env.seedUser(t, "alice")

	_, err := env.svc.JoinByCode(ctx, user, env.codeOfType(t, resp.ID, domain.CodeTypeMember))
	require.NoError(t, err)

	// Re-enrolling with the member code is a no-op and rejected.
	_, err = env.svc.JoinByCode(ctx, user, env.codeOfType(t, resp.ID, domain.CodeTypeMember))
	require.ErrorIs(t, err, domain.ErrAlreadyEnrolled)

	// The admin code upgrades an existing enrollee.
	result, err := env.svc.JoinByCode(ctx, user, env.codeOfType(t, resp.ID, domain.CodeTypeAdmin))
	require.NoError(t, err)
	require.True(t, result.IsInstitutionAdmin)

	// But only once.
	_, err = env.svc.JoinByCode(ctx, user, env.codeOfType(t, resp.ID, domain.CodeTypeAdmin))
	require.ErrorIs(t, err, domain.ErrAlreadyEnrolled)
}

func TestJoinByCodeInvalid(t *testing.T) {
	env := newTestEnv(t)
	user := env.seedUser(t, "alice")

	_, err := env.svc.JoinByCode(context.Background(), user, "nosuchcode")
	require.ErrorIs(t, err, domain.ErrInvalidInstitutionCode)

	_, err = env.svc.JoinByCode(context.Background(), user, "")
	require.ErrorIs(t, err, domain.ErrInvalidInstitutionCode)
}

func TestListCodesRestrictedToInstitutionAdmins(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	resp := env.createInstitution(t, "Acme University")
	member := env.seedUser(t, "alice")
	admin := env.seedUser(t, "bob")

	_, err := env.svc.JoinByCode(ctx, member, env.codeOfType(t, resp.ID, domain.CodeTypeMember))
	require.NoError(t, err)
	_, err = env.svc.JoinByCode(ctx, admin, env.codeOfType(t, resp.ID, domain.CodeTypeAdmin))
	require.NoError(t, err)

	_, err = env.svc.ListCodes(ctx, member, resp.ID)
	require.ErrorIs(t, err, domain.ErrForbidden)

	codes, err := env.svc.ListCodes(ctx, admin, resp.ID)
	require.NoError(t, err)
	require.Len(t, codes, 2)
}
