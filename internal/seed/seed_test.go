package seed

import (
	"testing"

	"github.com/bwmarrin/snowflake"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	institutiondomain "github.com/openatrium/atrium/internal/institution/domain"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	"github.com/openatrium/atrium/pkg/db"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSeedDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := db.NewTest()
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(
		&institutiondomain.Institution{},
		&institutiondomain.InstitutionCode{},
		&communitydomain.Community{},
		&invitecodedomain.InviteCode{},
	))
	return conn
}

func TestEnsureDefaultInstitution(t *testing.T) {
	conn := newSeedDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.NoError(t, EnsureDefaultInstitution(conn, node))

	var institutions []institutiondomain.Institution
	require.NoError(t, conn.Find(&institutions).Error)
	require.Len(t, institutions, 1)
	require.Equal(t, defaultInstitutionSlug, institutions[0].Slug)

	var welcome communitydomain.Community
	require.NoError(t, conn.Where("institution_id = ?", institutions[0].ID).First(&welcome).Error)
	require.True(t, welcome.IsDefault)
	require.Equal(t, communitydomain.TypePublic, welcome.Type)

	var codeCount int64
	require.NoError(t, conn.Model(&invitecodedomain.InviteCode{}).Where("community_id = ?", welcome.ID).Count(&codeCount).Error)
	require.Equal(t, int64(2), codeCount)

	// A second boot leaves the existing institution alone.
	require.NoError(t, EnsureDefaultInstitution(conn, node))
	require.NoError(t, conn.Find(&institutions).Error)
	require.Len(t, institutions, 1)
}

func TestEnsureDefaultInstitutionRequiresDeps(t *testing.T) {
	conn := newSeedDB(t)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	require.Error(t, EnsureDefaultInstitution(nil, node))
	require.Error(t, EnsureDefaultInstitution(conn, nil))
}
