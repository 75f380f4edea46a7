package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sohyunkim/geurim/backend/internal/board"
	"github.com/sohyunkim/geurim/backend/internal/posts"
	"github.com/sohyunkim/geurim/backend/internal/ws"
)

type API struct {
	hub   *ws.Hub
	rooms *board.Store
	posts *posts.Store
	log   *slog.Logger
}

func New(hub *ws.Hub, rooms *board.Store, postStore *posts.Store, log *slog.Logger) *API {
	return &API{
		hub:   hub,
		rooms: rooms,
		posts: postStore,
		log:   log,
	}
}

func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("encoding JSON response", "err", err)
	}
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

func (a *API) HealthHandler(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"active_rooms":   a.rooms.RoomCount(),
		"active_clients": a.hub.ClientCount(),
		"timestamp":      time.Now().UTC().Format(time.RFC3339),
	}

	if count, err := a.posts.Count(); err == nil {
		stats["total_posts"] = count
	}

	jsonResponse(w, http.StatusOK, stats)
}

// Post handlers

type PostRequest struct {
	Title   string        `json:"title"`
	Author  string        `json:"author"`
	Content posts.Content `json:"content"`
}

func (a *API) ListPostsHandler(w http.ResponseWriter, r *http.Request) {
	summaries, err := a.posts.List()
	if err != nil {
		a.log.Error("listing posts", "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to list posts")
		return
	}
	jsonResponse(w, http.StatusOK, summaries)
}

func (a *API) CreatePostHandler(w http.ResponseWriter, r *http.Request) {
	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if req.Title == "" {
		errorResponse(w, http.StatusBadRequest, "Title is required")
		return
	}

	post, err := a.posts.Create(req.Title, req.Author, req.Content)
	if err != nil {
		a.log.Error("creating post", "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to create post")
		return
	}
	jsonResponse(w, http.StatusCreated, post)
}

func (a *API) GetPostHandler(w http.ResponseWriter, r *http.Request, id int) {
	post, err := a.posts.Get(id)
	if errors.Is(err, posts.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.log.Error("getting post", "id", id, "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to get post")
		return
	}
	jsonResponse(w, http.StatusOK, post)
}

func (a *API) UpdatePostHandler(w http.ResponseWriter, r *http.Request, id int) {
	var req PostRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	post, err := a.posts.Update(id, req.Title, req.Author, req.Content)
	if errors.Is(err, posts.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.log.Error("updating post", "id", id, "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to update post")
		return
	}
	jsonResponse(w, http.StatusOK, post)
}

func (a *API) DeletePostHandler(w http.ResponseWriter, r *http.Request, id int) {
	err := a.posts.Delete(id)
	if errors.Is(err, posts.ErrNotFound) {
		errorResponse(w, http.StatusNotFound, "Post not found")
		return
	}
	if err != nil {
		a.log.Error("deleting post", "id", id, "err", err)
		errorResponse(w, http.StatusInternalServerError, "Failed to delete post")
		return
	}
	jsonResponse(w, http.StatusOK, map[string]string{"message": "Post deleted"})
}

// PostsRouter dispatches /api/posts and /api/posts/{id}.
func (a *API) PostsRouter(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/posts")

	// /api/posts or /api/posts/
	if path == "" || path == "/" {
		switch r.Method {
		case http.MethodGet:
			a.ListPostsHandler(w, r)
		case http.MethodPost:
			a.CreatePostHandler(w, r)
		default:
			errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
		return
	}

	// /api/posts/{id}
	idStr := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		errorResponse(w, http.StatusBadRequest, "Invalid post ID")
		return
	}

	switch r.Method {
	case http.MethodGet:
		a.GetPostHandler(w, r, id)
	case http.MethodPut:
		a.UpdatePostHandler(w, r, id)
	case http.MethodDelete:
		a.DeletePostHandler(w, r, id)
	default:
		errorResponse(w, http.StatusMethodNotAllowed, "Method not allowed")
	}
}
