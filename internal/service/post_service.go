package service

import (
	"context"

	"tidepool/internal/models"
	"tidepool/internal/paging"
	"tidepool/internal/repository"
)

const (
	maxTitleLen = 300
	maxBodyLen  = 50000
)

// PostService owns post CRUD and the cursor-paginated listing. Every
// mutation goes through the ownership guard.
type PostService struct {
	posts repository.PostRepository
}

// NewPostService creates a new post service.
func NewPostService(posts repository.PostRepository) *PostService {
	return &PostService{posts: posts}
}

// CreatePostInput carries the caller-supplied fields of a new post. The
// owner always comes from the resolved identity, never from the payload.
type CreatePostInput struct {
	UserID uint
	Title  string
	Body   string
}

func validatePostFields(title, body string) error {
	if title == "" {
		return models.NewInvalidArgumentError("Title is required")
	}
	if len(title) > maxTitleLen {
		return models.NewInvalidArgumentError("Title too long (max 300 characters)")
	}
	if body == "" {
		return models.NewInvalidArgumentError("Body is required")
	}
	if len(body) > maxBodyLen {
		return models.NewInvalidArgumentError("Body too long (max 50000 characters)")
	}
	return nil
}

// CreatePost stores a new post owned by in.UserID.
func (s *PostService) CreatePost(ctx context.Context, in CreatePostInput) (*models.Post, error) {
	if in.UserID == 0 {
		return nil, models.NewUnauthenticatedError()
	}
	if err := validatePostFields(in.Title, in.Body); err != nil {
		return nil, err
	}

	post := &models.Post{
		Title:  in.Title,
		Body:   in.Body,
		UserID: in.UserID,
	}
	if err := s.posts.Create(ctx, post); err != nil {
		return nil, err
	}
	return s.posts.GetByID(ctx, post.ID)
}

// GetPost returns a single post by ID; no identity required.
func (s *PostService) GetPost(ctx context.Context, id uint) (*models.Post, error) {
	post, err := s.posts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	post.Snippet = post.TextSnippet()
	return post, nil
}

// ListPosts serves one page of the feed in descending (created_at, id)
// order. cursor is the encoded position of the last item of the previous
// page, or empty for the first page.
func (s *PostService) ListPosts(ctx context.Context, limit int, cursor string) (*paging.Page[*models.Post], error) {
	clamped, err := paging.ClampLimit(limit)
	if err != nil {
		return nil, models.NewInvalidArgumentError(err.Error())
	}

	var after *paging.Cursor
	if cursor != "" {
		decoded, err := paging.Decode(cursor)
		if err != nil {
			return nil, models.NewInvalidArgumentError("malformed cursor")
		}
		after = &decoded
	}

	// Unfiltered count; best-effort consistency under concurrent inserts.
	total, err := s.posts.Count(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := s.posts.ListPage(ctx, clamped, after)
	if err != nil {
		return nil, err
	}

	// The repository fetched one row past the page boundary; its presence
	// is the has-more signal in the total order itself.
	hasMore := len(rows) > clamped
	if hasMore {
		rows = rows[:clamped]
	}

	for _, p := range rows {
		p.Snippet = p.TextSnippet()
	}

	page := &paging.Page[*models.Post]{
		Items:      rows,
		HasMore:    hasMore,
		TotalCount: total,
	}
	if hasMore {
		last := rows[len(rows)-1]
		page.NextCursor = paging.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
	}
	if page.Items == nil {
		page.Items = []*models.Post{}
	}
	return page, nil
}

// ownedPost is the authorization guard in front of every mutation: resolved
// identity required, post must exist, and the identity must own it.
func (s *PostService) ownedPost(ctx context.Context, userID, postID uint) (*models.Post, error) {
	if userID == 0 {
		return nil, models.NewUnauthenticatedError()
	}
	post, err := s.posts.GetByID(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.UserID != userID {
		// Forbidden is distinguishable from NotFound here; deployments that
		// treat post existence as sensitive should collapse the two.
		return nil, models.NewForbiddenError("You can only modify your own posts")
	}
	return post, nil
}

// UpdatePostInput carries a post mutation request.
type UpdatePostInput struct {
	UserID uint
	PostID uint
	Title  string
	Body   string
}

// UpdatePost replaces the title and body of a post the caller owns.
func (s *PostService) UpdatePost(ctx context.Context, in UpdatePostInput) (*models.Post, error) {
	post, err := s.ownedPost(ctx, in.UserID, in.PostID)
	if err != nil {
		return nil, err
	}
	if err := validatePostFields(in.Title, in.Body); err != nil {
		return nil, err
	}

	post.Title = in.Title
	post.Body = in.Body
	if err := s.posts.Update(ctx, post); err != nil {
		return nil, err
	}
	post.Snippet = post.TextSnippet()
	return post, nil
}

// DeletePost removes a post the caller owns.
func (s *PostService) DeletePost(ctx context.Context, userID, postID uint) error {
	post, err := s.ownedPost(ctx, userID, postID)
	if err != nil {
		return err
	}
	return s.posts.Delete(ctx, post.ID)
}
