package gormstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/eventhub/authcore"
	"github.com/eventhub/authcore/access"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Store implements authcore.PrincipalStore.
type Store struct {
	db *gorm.DB
}

var _ authcore.PrincipalStore = (*Store)(nil)

// New wraps an open connection. The tables must exist.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) FindPrincipal(ctx context.Context, kind authcore.PrincipalKind, id string) (authcore.Principal, error) {
	switch kind {
	case authcore.KindEndUser:
		var user User
		if errFind := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; errFind != nil {
			return nil, notFound(errFind)
		}
		return authcore.EndUser{UserID: user.ID, Email: user.Email}, nil
	case authcore.KindAdministrator:
		var admin Admin
		if errFind := s.db.WithContext(ctx).Where("id = ? AND active = ?", id, true).First(&admin).Error; errFind != nil {
			return nil, notFound(errFind)
		}
		return toAdministrator(admin)
	default:
		return nil, authcore.ErrPrincipalNotFound
	}
}

func (s *Store) FindAdminByEmail(ctx context.Context, email string) (authcore.Administrator, error) {
	var admin Admin
	if errFind := s.db.WithContext(ctx).Where("email = ? AND active = ?", email, true).First(&admin).Error; errFind != nil {
		return authcore.Administrator{}, notFound(errFind)
	}
	return toAdministrator(admin)
}

// UpsertUserByEmail returns the user for email, creating it on first use.
// Concurrent first logins converge on one row.
func (s *Store) UpsertUserByEmail(ctx context.Context, email string) (authcore.EndUser, error) {
	db := s.db.WithContext(ctx)

	candidate := User{ID: uuid.NewString(), Email: email}
	errCreate := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoNothing: true,
	}).Create(&candidate).Error
	if errCreate != nil {
		return authcore.EndUser{}, fmt.Errorf("gormstore: create user: %w", errCreate)
	}

	var user User
	if errFind := db.Where("email = ?", email).First(&user).Error; errFind != nil {
		return authcore.EndUser{}, fmt.Errorf("gormstore: load user: %w", errFind)
	}
	return authcore.EndUser{UserID: user.ID, Email: user.Email}, nil
}

// SaveAdmin creates or updates the administrator with admin.Email. A blank
// AdminID is assigned. The stored record is returned.
func (s *Store) SaveAdmin(ctx context.Context, admin authcore.Administrator) (authcore.Administrator, error) {
	if !admin.AccessLevel.Valid() {
		return authcore.Administrator{}, fmt.Errorf("gormstore: invalid access level %d", admin.AccessLevel)
	}
	if admin.AdminID == "" {
		admin.AdminID = uuid.NewString()
	}
	row := Admin{
		ID:            admin.AdminID,
		Email:         admin.Email,
		AccessLevel:   int(admin.AccessLevel),
		ClubOrSociety: admin.ClubOrSociety,
		Active:        true,
	}
	errSave := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.AssignmentColumns([]string{"access_level", "club_or_society", "active", "updated_at"}),
	}).Create(&row).Error
	if errSave != nil {
		return authcore.Administrator{}, fmt.Errorf("gormstore: save admin: %w", errSave)
	}
	return s.FindAdminByEmail(ctx, admin.Email)
}

// DeactivateAdmin blocks an administrator. Outstanding tokens stop
// verifying on their next use.
func (s *Store) DeactivateAdmin(ctx context.Context, email string) error {
	res := s.db.WithContext(ctx).Model(&Admin{}).Where("email = ?", email).Update("active", false)
	if res.Error != nil {
		return fmt.Errorf("gormstore: deactivate admin: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return authcore.ErrPrincipalNotFound
	}
	return nil
}

// DeleteUser removes an end user.
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&User{})
	if res.Error != nil {
		return fmt.Errorf("gormstore: delete user: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return authcore.ErrPrincipalNotFound
	}
	return nil
}

func toAdministrator(row Admin) (authcore.Administrator, error) {
	level, errLevel := access.ParseLevel(row.AccessLevel)
	if errLevel != nil {
		return authcore.Administrator{}, fmt.Errorf("gormstore: admin %s: %w", row.ID, errLevel)
	}
	return authcore.Administrator{
		AdminID:       row.ID,
		Email:         row.Email,
		AccessLevel:   level,
		ClubOrSociety: row.ClubOrSociety,
	}, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return authcore.ErrPrincipalNotFound
	}
	return fmt.Errorf("gormstore: %w", err)
}
