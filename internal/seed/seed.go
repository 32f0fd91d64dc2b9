// Package seed provisions the starter institution for self-hosted boots.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"
	communitydomain "github.com/openatrium/atrium/internal/community/domain"
	institutiondomain "github.com/openatrium/atrium/internal/institution/domain"
	invitecodedomain "github.com/openatrium/atrium/internal/invitecode/domain"
	"gorm.io/gorm"
)

const (
	defaultInstitutionName = "Atrium"
	defaultInstitutionSlug = "atrium"
	defaultCodeLength      = 10
)

// EnsureDefaultInstitution creates the starter institution, its enrollment
// codes, and its welcome community when no institution exists yet.
func EnsureDefaultInstitution(db *gorm.DB, node *snowflake.Node) error {
	if db == nil {
		return errors.New("seed database handle is required")
	}
	if node == nil {
		return errors.New("seed id node is required")
	}

	ctx := context.Background()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.WithContext(ctx).Model(&institutiondomain.Institution{}).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		now := time.Now().UTC()
		institution := institutiondomain.Institution{
			ID:        node.Generate(),
			Name:      defaultInstitutionName,
			Slug:      defaultInstitutionSlug,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := tx.WithContext(ctx).Create(&institution).Error; err != nil {
			return err
		}

		for _, codeType := range []string{institutiondomain.CodeTypeMember, institutiondomain.CodeTypeAdmin} {
			value, err := invitecodedomain.GenerateCode(defaultCodeLength)
			if err != nil {
				return err
			}
			code := institutiondomain.InstitutionCode{
				ID:            node.Generate(),
				InstitutionID: institution.ID,
				Type:          codeType,
				Code:          value,
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.WithContext(ctx).Create(&code).Error; err != nil {
				return err
			}
		}

		community := communitydomain.Community{
			ID:            node.Generate(),
			InstitutionID: institution.ID,
			Name:          "Welcome",
			Slug:          fmt.Sprintf("welcome-%s", institution.Slug),
			Description:   fmt.Sprintf("The home community of %s.", institution.Name),
			Type:          communitydomain.TypePublic,
			IsDefault:     true,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := tx.WithContext(ctx).Create(&community).Error; err != nil {
			return err
		}

		for _, codeType := range []string{invitecodedomain.CodeTypeMember, invitecodedomain.CodeTypeAdmin} {
			value, err := invitecodedomain.GenerateCode(defaultCodeLength)
			if err != nil {
				return err
			}
			code := invitecodedomain.InviteCode{
				ID:          node.Generate(),
				CommunityID: community.ID,
				Type:        codeType,
				Code:        value,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := tx.WithContext(ctx).Create(&code).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
