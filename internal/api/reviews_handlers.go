package api

import (
	"errors"
	"net/http"

	"github.com/Spacemarine1789/yamdb-final/internal/authz"
	"github.com/Spacemarine1789/yamdb-final/internal/models"
	"github.com/Spacemarine1789/yamdb-final/internal/storage"
)

type reviewRequest struct {
	Text  string `json:"text"`
	Score int    `json:"score"`
}

type reviewUpdateRequest struct {
	Text  *string `json:"text,omitempty"`
	Score *int    `json:"score,omitempty"`
}

type reviewResponse struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Author  string `json:"author"`
	Score   int    `json:"score"`
	PubDate string `json:"pubDate"`
}

type commentRequest struct {
	Text string `json:"text"`
}

type commentUpdateRequest struct {
	Text *string `json:"text,omitempty"`
}

type commentResponse struct {
	ID      string `json:"id"`
	Text    string `json:"text"`
	Author  string `json:"author"`
	PubDate string `json:"pubDate"`
}

// authorName resolves an account ID to its username for response shaping.
// Reviews and comments are deleted with their author, so a miss only happens
// on a racing delete.
func (h *Handler) authorName(userID string) string {
	if user, ok := h.Store.GetUser(userID); ok {
		return user.Username
	}
	return ""
}

func (h *Handler) newReviewResponse(review models.Review) reviewResponse {
	return reviewResponse{
		ID:      review.ID,
		Text:    review.Text,
		Author:  h.authorName(review.AuthorID),
		Score:   review.Score,
		PubDate: formatTime(review.PubDate),
	}
}

func (h *Handler) newCommentResponse(comment models.Comment) commentResponse {
	return commentResponse{
		ID:      comment.ID,
		Text:    comment.Text,
		Author:  h.authorName(comment.AuthorID),
		PubDate: formatTime(comment.PubDate),
	}
}

// serveReviews dispatches the review and comment subtree beneath a title:
// reviews, reviews/{id}, reviews/{id}/comments, reviews/{id}/comments/{id}.
func (h *Handler) serveReviews(w http.ResponseWriter, r *http.Request, titleID string, rest []string) {
	switch {
	case len(rest) == 0:
		h.reviewCollection(w, r, titleID)
	case len(rest) == 1:
		h.reviewItem(w, r, titleID, rest[0])
	case rest[1] == "comments" && len(rest) == 2:
		h.commentCollection(w, r, titleID, rest[0])
	case rest[1] == "comments" && len(rest) == 3:
		h.commentItem(w, r, titleID, rest[0], rest[2])
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (h *Handler) reviewCollection(w http.ResponseWriter, r *http.Request, titleID string) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := listParams(r)
		reviews, err := h.Store.ListReviews(titleID, limit, offset)
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		payload := make([]reviewResponse, len(reviews))
		for i, review := range reviews {
			payload[i] = h.newReviewResponse(review)
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		user, ok := h.requireWrite(w, r, authz.RealmContent, "")
		if !ok {
			return
		}
		var req reviewRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		review, err := h.Store.CreateReview(titleID, user.ID, req.Text, req.Score)
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveContentEvent("review_created")
		writeJSON(w, http.StatusCreated, h.newReviewResponse(review))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) reviewItem(w http.ResponseWriter, r *http.Request, titleID, reviewID string) {
	review, err := h.Store.GetReview(titleID, reviewID)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.newReviewResponse(review))
	case http.MethodPatch:
		if _, ok := h.requireWrite(w, r, authz.RealmContent, review.AuthorID); !ok {
			return
		}
		var req reviewUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateReview(titleID, reviewID, storage.ReviewUpdate{Text: req.Text, Score: req.Score})
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.newReviewResponse(updated))
	case http.MethodDelete:
		if _, ok := h.requireWrite(w, r, authz.RealmContent, review.AuthorID); !ok {
			return
		}
		if err := h.Store.DeleteReview(titleID, reviewID); err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveContentEvent("review_deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}

func (h *Handler) commentCollection(w http.ResponseWriter, r *http.Request, titleID, reviewID string) {
	switch r.Method {
	case http.MethodGet:
		limit, offset := listParams(r)
		comments, err := h.Store.ListComments(titleID, reviewID, limit, offset)
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		payload := make([]commentResponse, len(comments))
		for i, comment := range comments {
			payload[i] = h.newCommentResponse(comment)
		}
		writeJSON(w, http.StatusOK, payload)
	case http.MethodPost:
		user, ok := h.requireWrite(w, r, authz.RealmContent, "")
		if !ok {
			return
		}
		var req commentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		comment, err := h.Store.CreateComment(titleID, reviewID, user.ID, req.Text)
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveContentEvent("comment_created")
		writeJSON(w, http.StatusCreated, h.newCommentResponse(comment))
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) commentItem(w http.ResponseWriter, r *http.Request, titleID, reviewID, commentID string) {
	comment, err := h.Store.GetComment(titleID, reviewID, commentID)
	if err != nil {
		h.respondStoreError(w, r, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, h.newCommentResponse(comment))
	case http.MethodPatch:
		if _, ok := h.requireWrite(w, r, authz.RealmContent, comment.AuthorID); !ok {
			return
		}
		var req commentUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateComment(titleID, reviewID, commentID, storage.CommentUpdate{Text: req.Text})
		if err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, h.newCommentResponse(updated))
	case http.MethodDelete:
		if _, ok := h.requireWrite(w, r, authz.RealmContent, comment.AuthorID); !ok {
			return
		}
		if err := h.Store.DeleteComment(titleID, reviewID, commentID); err != nil {
			h.respondStoreError(w, r, err)
			return
		}
		h.metrics().ObserveContentEvent("comment_deleted")
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPatch, http.MethodDelete)
	}
}
