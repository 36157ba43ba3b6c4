// Package seed populates the database with development data.
package seed

import (
	"fmt"
	"strings"
	"time"

	"tidepool/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Options controls how much data Run generates.
type Options struct {
	Users        int
	PostsPerUser int
	Password     string // shared login password for all seeded users
}

// DefaultOptions seeds a small, browsable data set.
func DefaultOptions() Options {
	return Options{Users: 8, PostsPerUser: 6, Password: "seedpass1"}
}

// Run inserts fake users and posts. Post timestamps are staggered one minute
// apart so the feed ordering and cursors are easy to eyeball in development.
func Run(db *gorm.DB, opts Options) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(opts.Password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	base := time.Now().Add(-time.Duration(opts.Users*opts.PostsPerUser) * time.Minute)
	tick := 0

	for i := 0; i < opts.Users; i++ {
		username := strings.ToLower(gofakeit.Username())
		user := models.User{
			Username: fmt.Sprintf("%s%d", username, i),
			Email:    fmt.Sprintf("%s%d@%s", username, i, gofakeit.DomainName()),
			Password: string(hash),
		}
		if err := db.Create(&user).Error; err != nil {
			return fmt.Errorf("seeding user %q: %w", user.Username, err)
		}

		for j := 0; j < opts.PostsPerUser; j++ {
			post := models.Post{
				Title:     gofakeit.Sentence(5),
				Body:      gofakeit.Paragraph(2, 4, 10, " "),
				UserID:    user.ID,
				CreatedAt: base.Add(time.Duration(tick) * time.Minute),
			}
			tick++
			if err := db.Create(&post).Error; err != nil {
				return fmt.Errorf("seeding post for %q: %w", user.Username, err)
			}
		}
	}
	return nil
}
