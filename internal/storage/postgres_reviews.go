package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Spacemarine1789/yamdb-final/internal/models"
)

func (r *postgresRepository) titleExists(ctx context.Context, titleID string) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM titles WHERE id = $1)", titleID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check title: %w", err)
	}
	return exists, nil
}

func scanReview(row pgx.Row) (models.Review, error) {
	var review models.Review
	err := row.Scan(&review.ID, &review.TitleID, &review.AuthorID, &review.Text,
		&review.Score, &review.PubDate)
	if err != nil {
		return models.Review{}, err
	}
	return review, nil
}

func (r *postgresRepository) CreateReview(titleID, authorID, text string, score int) (models.Review, error) {
	if strings.TrimSpace(text) == "" {
		return models.Review{}, invalidf("text", "is required")
	}
	if len(text) > maxReviewTextLength {
		return models.Review{}, invalidf("text", "must be at most %d characters", maxReviewTextLength)
	}
	if err := validateScore(score); err != nil {
		return models.Review{}, err
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	exists, err := r.titleExists(ctx, titleID)
	if err != nil {
		return models.Review{}, err
	}
	if !exists {
		return models.Review{}, notFound("title", titleID)
	}

	id, err := generateID()
	if err != nil {
		return models.Review{}, err
	}
	review := models.Review{
		ID:       id,
		TitleID:  titleID,
		AuthorID: authorID,
		Text:     text,
		Score:    score,
		PubDate:  r.now(),
	}
	_, err = r.pool.Exec(ctx,
		"INSERT INTO reviews (id, title_id, author_id, text, score, pub_date) VALUES ($1, $2, $3, $4, $5, $6)",
		review.ID, review.TitleID, review.AuthorID, review.Text, review.Score, review.PubDate)
	if err != nil {
		return models.Review{}, translateConstraint(err)
	}
	return review, nil
}

func (r *postgresRepository) getReviewScoped(ctx context.Context, titleID, reviewID string) (models.Review, error) {
	review, err := scanReview(r.pool.QueryRow(ctx,
		"SELECT id, title_id, author_id, text, score, pub_date FROM reviews WHERE id = $1 AND title_id = $2",
		reviewID, titleID))
	if errors.Is(err, pgx.ErrNoRows) {
		exists, checkErr := r.titleExists(ctx, titleID)
		if checkErr != nil {
			return models.Review{}, checkErr
		}
		if !exists {
			return models.Review{}, notFound("title", titleID)
		}
		return models.Review{}, notFound("review", reviewID)
	}
	if err != nil {
		return models.Review{}, fmt.Errorf("look up review: %w", err)
	}
	return review, nil
}

func (r *postgresRepository) GetReview(titleID, reviewID string) (models.Review, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	return r.getReviewScoped(ctx, titleID, reviewID)
}

func (r *postgresRepository) ListReviews(titleID string, limit, offset int) ([]models.Review, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	exists, err := r.titleExists(ctx, titleID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, notFound("title", titleID)
	}

	if offset < 0 {
		offset = 0
	}
	query := "SELECT id, title_id, author_id, text, score, pub_date FROM reviews WHERE title_id = $1 ORDER BY pub_date, id OFFSET $2"
	args := []any{titleID, offset}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	reviews := make([]models.Review, 0)
	for rows.Next() {
		review, err := scanReview(rows)
		if err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		reviews = append(reviews, review)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

func (r *postgresRepository) UpdateReview(titleID, reviewID string, update ReviewUpdate) (models.Review, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	review, err := r.getReviewScoped(ctx, titleID, reviewID)
	if err != nil {
		return models.Review{}, err
	}
	if update.Text != nil {
		if strings.TrimSpace(*update.Text) == "" {
			return models.Review{}, invalidf("text", "is required")
		}
		if len(*update.Text) > maxReviewTextLength {
			return models.Review{}, invalidf("text", "must be at most %d characters", maxReviewTextLength)
		}
		review.Text = *update.Text
	}
	if update.Score != nil {
		if err := validateScore(*update.Score); err != nil {
			return models.Review{}, err
		}
		review.Score = *update.Score
	}

	if _, err := r.pool.Exec(ctx,
		"UPDATE reviews SET text = $2, score = $3 WHERE id = $1",
		review.ID, review.Text, review.Score); err != nil {
		return models.Review{}, fmt.Errorf("update review: %w", err)
	}
	return review, nil
}

func (r *postgresRepository) DeleteReview(titleID, reviewID string) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	tag, err := r.pool.Exec(ctx,
		"DELETE FROM reviews WHERE id = $1 AND title_id = $2", reviewID, titleID)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if tag.RowsAffected() == 0 {
		exists, checkErr := r.titleExists(ctx, titleID)
		if checkErr != nil {
			return checkErr
		}
		if !exists {
			return notFound("title", titleID)
		}
		return notFound("review", reviewID)
	}
	return nil
}

// Comments

func scanComment(row pgx.Row) (models.Comment, error) {
	var comment models.Comment
	err := row.Scan(&comment.ID, &comment.ReviewID, &comment.AuthorID, &comment.Text, &comment.PubDate)
	if err != nil {
		return models.Comment{}, err
	}
	return comment, nil
}

func (r *postgresRepository) CreateComment(titleID, reviewID, authorID, text string) (models.Comment, error) {
	if strings.TrimSpace(text) == "" {
		return models.Comment{}, invalidf("text", "is required")
	}
	if len(text) > maxCommentTextLength {
		return models.Comment{}, invalidf("text", "must be at most %d characters", maxCommentTextLength)
	}

	ctx, cancel := r.opCtx()
	defer cancel()
	if _, err := r.getReviewScoped(ctx, titleID, reviewID); err != nil {
		return models.Comment{}, err
	}

	id, err := generateID()
	if err != nil {
		return models.Comment{}, err
	}
	comment := models.Comment{
		ID:       id,
		ReviewID: reviewID,
		AuthorID: authorID,
		Text:     text,
		PubDate:  r.now(),
	}
	_, err = r.pool.Exec(ctx,
		"INSERT INTO comments (id, review_id, author_id, text, pub_date) VALUES ($1, $2, $3, $4, $5)",
		comment.ID, comment.ReviewID, comment.AuthorID, comment.Text, comment.PubDate)
	if err != nil {
		return models.Comment{}, translateConstraint(err)
	}
	return comment, nil
}

func (r *postgresRepository) getCommentScoped(ctx context.Context, titleID, reviewID, commentID string) (models.Comment, error) {
	if _, err := r.getReviewScoped(ctx, titleID, reviewID); err != nil {
		return models.Comment{}, err
	}
	comment, err := scanComment(r.pool.QueryRow(ctx,
		"SELECT id, review_id, author_id, text, pub_date FROM comments WHERE id = $1 AND review_id = $2",
		commentID, reviewID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Comment{}, notFound("comment", commentID)
	}
	if err != nil {
		return models.Comment{}, fmt.Errorf("look up comment: %w", err)
	}
	return comment, nil
}

func (r *postgresRepository) GetComment(titleID, reviewID, commentID string) (models.Comment, error) {
	ctx, cancel := r.opCtx()
	defer cancel()
	return r.getCommentScoped(ctx, titleID, reviewID, commentID)
}

func (r *postgresRepository) ListComments(titleID, reviewID string, limit, offset int) ([]models.Comment, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	if _, err := r.getReviewScoped(ctx, titleID, reviewID); err != nil {
		return nil, err
	}

	if offset < 0 {
		offset = 0
	}
	query := "SELECT id, review_id, author_id, text, pub_date FROM comments WHERE review_id = $1 ORDER BY pub_date, id OFFSET $2"
	args := []any{reviewID, offset}
	if limit > 0 {
		query += " LIMIT $3"
		args = append(args, limit)
	}
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()

	comments := make([]models.Comment, 0)
	for rows.Next() {
		comment, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, comment)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate comments: %w", err)
	}
	return comments, nil
}

func (r *postgresRepository) UpdateComment(titleID, reviewID, commentID string, update CommentUpdate) (models.Comment, error) {
	ctx, cancel := r.opCtx()
	defer cancel()

	comment, err := r.getCommentScoped(ctx, titleID, reviewID, commentID)
	if err != nil {
		return models.Comment{}, err
	}
	if update.Text != nil {
		if strings.TrimSpace(*update.Text) == "" {
			return models.Comment{}, invalidf("text", "is required")
		}
		if len(*update.Text) > maxCommentTextLength {
			return models.Comment{}, invalidf("text", "must be at most %d characters", maxCommentTextLength)
		}
		comment.Text = *update.Text
	}

	if _, err := r.pool.Exec(ctx,
		"UPDATE comments SET text = $2 WHERE id = $1", comment.ID, comment.Text); err != nil {
		return models.Comment{}, fmt.Errorf("update comment: %w", err)
	}
	return comment, nil
}

func (r *postgresRepository) DeleteComment(titleID, reviewID, commentID string) error {
	ctx, cancel := r.opCtx()
	defer cancel()

	if _, err := r.getReviewScoped(ctx, titleID, reviewID); err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx,
		"DELETE FROM comments WHERE id = $1 AND review_id = $2", commentID, reviewID)
	if err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return notFound("comment", commentID)
	}
	return nil
}
