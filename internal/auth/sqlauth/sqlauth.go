// Package sqlauth implements auth.Source against a SQL database (sqlite
// via GORM), mirroring the users/views schema of the original
// sqlite_data_source.
package sqlauth

import (
	"context"
	"fmt"

	"github.com/riverrun/vftpd/internal/auth"
	"github.com/riverrun/vftpd/internal/fsview"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

var log = logrus.WithField("component", "sqlauth")

// UserRow is the `users` table: one row per account.
type UserRow struct {
	ID       uint `gorm:"primaryKey"`
	Username string `gorm:"uniqueIndex"`
	Password string // argon2id verifier, see auth.HashPassword
}

// TableName pins the GORM default pluralization to match the schema
// documented in the original sqlite_data_source.
func (UserRow) TableName() string { return "users" }

// ViewRow is the `views` table: one row per view granted to a user.
type ViewRow struct {
	ID          uint `gorm:"primaryKey"`
	UserID      uint `gorm:"index"`
	Root        string
	Label       string
	Permissions string // "r;w;l;..." per fsview.ParsePermissionString
}

func (ViewRow) TableName() string { return "views" }

// Source is a GORM-backed auth.Source.
type Source struct {
	db *gorm.DB
}

// Open opens (and migrates) the sqlite database at dsn.
func Open(dsn string) (*Source, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("open sqlite auth database %q: %w", dsn, err)
	}
	if err := db.AutoMigrate(&UserRow{}, &ViewRow{}); err != nil {
		return nil, fmt.Errorf("migrate auth schema: %w", err)
	}
	return &Source{db: db}, nil
}

// Authenticate implements auth.Source.
func (s *Source) Authenticate(ctx context.Context, creds auth.Credentials) (*auth.User, error) {
	var row UserRow
	err := s.db.WithContext(ctx).Where("username = ?", creds.Username).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &auth.Error{Kind: auth.KindUserNotFound}
		}
		return nil, &auth.Error{Kind: auth.KindBackend, Cause: err}
	}
	if !auth.VerifyPassword(row.Password, creds.Password) {
		return nil, &auth.Error{Kind: auth.KindInvalidCredentials}
	}

	var viewRows []ViewRow
	if err := s.db.WithContext(ctx).Where("user_id = ?", row.ID).Find(&viewRows).Error; err != nil {
		return nil, &auth.Error{Kind: auth.KindBackend, Cause: err}
	}

	views := make([]*fsview.View, 0, len(viewRows))
	for _, vr := range viewRows {
		perms := fsview.ParsePermissionString(vr.Permissions)
		view, err := fsview.NewView(vr.Label, vr.Root, perms)
		if err != nil {
			// A view whose host root is missing is omitted, not fatal: the
			// user logs in with whatever subset of declared views loads.
			log.WithError(err).WithFields(logrus.Fields{
				"user": creds.Username, "label": vr.Label, "root": vr.Root,
			}).Warn("dropping view with missing host root")
			continue
		}
		views = append(views, view)
	}
	return &auth.User{Username: row.Username, Views: views}, nil
}
