package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"tidepool/internal/database"
	"tidepool/internal/models"
	"tidepool/internal/paging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// setupSQLiteDB opens a fresh in-memory database per test so pagination
// semantics run against a real SQL engine rather than mocked statements.
func setupSQLiteDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	return db
}

func seedPosts(t *testing.T, db *gorm.DB, n int, base time.Time) []models.Post {
	t.Helper()
	user := models.User{Username: "author", Email: "author@x.com", Password: "hash"}
	require.NoError(t, db.Create(&user).Error)

	posts := make([]models.Post, 0, n)
	for i := 0; i < n; i++ {
		p := models.Post{
			Title:     fmt.Sprintf("P%d", i+1),
			Body:      "body",
			UserID:    user.ID,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, db.Create(&p).Error)
		posts = append(posts, p)
	}
	return posts
}

func TestPostRepository_ListPage_Ordering(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedPosts(t, db, 5, base)

	// limit+1 rows come back newest first.
	rows, err := repo.ListPage(ctx, 3, nil)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "P5", rows[0].Title)
	assert.Equal(t, "P4", rows[1].Title)
	assert.Equal(t, "P3", rows[2].Title)
	assert.Equal(t, "P2", rows[3].Title)

	// Owner is preloaded.
	assert.Equal(t, "author", rows[0].User.Username)
}

func TestPostRepository_ListPage_CursorExcludesBoundary(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	posts := seedPosts(t, db, 5, base)

	// Cursor at P4: the next page starts strictly after it.
	p4 := posts[3]
	cursor := &paging.Cursor{CreatedAt: p4.CreatedAt, ID: p4.ID}

	rows, err := repo.ListPage(ctx, 2, cursor)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "P3", rows[0].Title)
	assert.Equal(t, "P2", rows[1].Title)
	assert.Equal(t, "P1", rows[2].Title)
}

func TestPostRepository_ListPage_TieBreakByID(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	user := models.User{Username: "tied", Email: "tied@x.com", Password: "hash"}
	require.NoError(t, db.Create(&user).Error)

	// Three posts sharing one timestamp: ordering falls back to id desc.
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	var ids []uint
	for i := 0; i < 3; i++ {
		p := models.Post{Title: fmt.Sprintf("T%d", i+1), Body: "b", UserID: user.ID, CreatedAt: ts}
		require.NoError(t, db.Create(&p).Error)
		ids = append(ids, p.ID)
	}

	rows, err := repo.ListPage(ctx, 10, nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, ids[2], rows[0].ID)
	assert.Equal(t, ids[1], rows[1].ID)
	assert.Equal(t, ids[0], rows[2].ID)

	// A cursor inside the tie group continues without revisiting it.
	cursor := &paging.Cursor{CreatedAt: ts, ID: ids[1]}
	rows, err = repo.ListPage(ctx, 10, cursor)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ids[0], rows[0].ID)
}

func TestPostRepository_ListPage_EmptyStore(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)

	rows, err := repo.ListPage(context.Background(), 10, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestPostRepository_Count(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), count)

	seedPosts(t, db, 4, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))

	count, err = repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), count)
}

func TestPostRepository_GetByID_NotFound(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)

	_, err := repo.GetByID(context.Background(), 12345)
	require.Error(t, err)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
}

func TestPostRepository_Delete(t *testing.T) {
	db := setupSQLiteDB(t)
	repo := NewPostRepository(db)
	ctx := context.Background()

	posts := seedPosts(t, db, 1, time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, repo.Delete(ctx, posts[0].ID))

	_, err := repo.GetByID(ctx, posts[0].ID)
	assert.Equal(t, models.CodeNotFound, models.CodeOf(err))
}
