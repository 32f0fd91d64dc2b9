package migration

import (
	"github.com/bwmarrin/snowflake"
	authdomain "github.com/openatrium/atrium/internal/auth/domain"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	"github.com/openatrium/atrium/internal/config"
	"github.com/openatrium/atrium/internal/events"
	institutiondomain "github.com/openatrium/atrium/internal/institution/domain"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	joindomain "github.com/openatrium/atrium/internal/join/domain"
	messagedomain "github.com/openatrium/atrium/internal/message/domain"
	"github.com/openatrium/atrium/internal/seed"
	"go.uber.org/fx"
	"gorm.io/gorm"
)

var Module = fx.Module("migrations",
	fx.Invoke(func(conn *gorm.DB, cfg config.Config, genID *snowflake.Node) error {
		if cfg.DBType == "postgres" {
			sqlDB, err := conn.DB()
			if err != nil {
				return err
			}
			if err := RunMigrations(sqlDB); err != nil {
				return err
			}
		} else {
			// Non-postgres deployments (sqlite local runs) rely on the
			// model definitions instead of versioned SQL.
			if err := AutoMigrate(conn); err != nil {
				return err
			}
		}

		if cfg.SeedDefaultInstitution {
			return seed.EnsureDefaultInstitution(conn, genID)
		}
		return nil
	}),
)

// AutoMigrate creates the schema straight from the model structs.
func AutoMigrate(conn *gorm.DB) error {
	return conn.AutoMigrate(
		&authdomain.User{},
		&authdomain.Session{},
		&institutiondomain.Institution{},
		&institutiondomain.InstitutionCode{},
		&communitydomain.Community{},
		&communitydomain.Member{},
		&invitecodedomain.InviteCode{},
		&joindomain.JoinRequest{},
		&messagedomain.Message{},
		&events.CommunityEvent{},
	)
}
