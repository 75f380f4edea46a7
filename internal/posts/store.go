package posts

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var ErrNotFound = errors.New("post not found")

// Content is the drawing payload of a post. The store never looks inside.
type Content struct {
	Elements json.RawMessage `json:"elements"`
	AppState json.RawMessage `json:"appState,omitempty"`
}

type Post struct {
	ID        int     `json:"id"`
	Title     string  `json:"title"`
	Author    string  `json:"author"`
	Views     int     `json:"views"`
	Date      string  `json:"date"`
	UpdatedAt string  `json:"updatedAt,omitempty"`
	Content   Content `json:"content"`
}

// Summary is the list-view shape: everything but the drawing itself.
type Summary struct {
	ID     int    `json:"id"`
	Title  string `json:"title"`
	Author string `json:"author"`
	Views  int    `json:"views"`
	Date   string `json:"date"`
}

// document is the entire on-disk state: one JSON file, posts newest-first.
type document struct {
	Posts  []Post `json:"posts"`
	LastID int    `json:"lastId"`
}

// Store persists posts in a single JSON document. Every operation reads
// and rewrites the whole file under one lock; there are no partial writes.
type Store struct {
	path string
	mu   sync.Mutex
}

// New ensures the data directory and an empty document exist.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, err
	}

	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		empty := document{Posts: []Post{}}
		if err := writeDocument(path, empty); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	return &Store{path: path}, nil
}

func (s *Store) load() (document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return document{}, err
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return document{}, err
	}
	if doc.Posts == nil {
		doc.Posts = []Post{}
	}
	return doc, nil
}

// writeDocument replaces the file atomically via a temp file and rename.
func writeDocument(path string, doc document) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// List returns post summaries, newest first.
func (s *Store) List() ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	summaries := make([]Summary, len(doc.Posts))
	for i, p := range doc.Posts {
		summaries[i] = Summary{
			ID:     p.ID,
			Title:  p.Title,
			Author: p.Author,
			Views:  p.Views,
			Date:   p.Date,
		}
	}
	return summaries, nil
}

// Get returns one post and bumps its view counter.
func (s *Store) Get(id int) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range doc.Posts {
		if doc.Posts[i].ID == id {
			doc.Posts[i].Views++
			if err := writeDocument(s.path, doc); err != nil {
				return nil, err
			}
			post := doc.Posts[i]
			return &post, nil
		}
	}
	return nil, ErrNotFound
}

// Create assigns the next sequential id and prepends the post.
func (s *Store) Create(title, author string, content Content) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	post := Post{
		ID:      doc.LastID + 1,
		Title:   title,
		Author:  author,
		Date:    time.Now().Format("2006. 1. 2."),
		Content: content,
	}

	doc.Posts = append([]Post{post}, doc.Posts...)
	doc.LastID = post.ID

	if err := writeDocument(s.path, doc); err != nil {
		return nil, err
	}
	return &post, nil
}

// Update replaces title, author and content, keeping id, views and the
// original date. UpdatedAt records the edit time.
func (s *Store) Update(id int, title, author string, content Content) (*Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	for i := range doc.Posts {
		if doc.Posts[i].ID == id {
			doc.Posts[i].Title = title
			doc.Posts[i].Author = author
			doc.Posts[i].Content = content
			doc.Posts[i].UpdatedAt = time.Now().UTC().Format(time.RFC3339)

			if err := writeDocument(s.path, doc); err != nil {
				return nil, err
			}
			post := doc.Posts[i]
			return &post, nil
		}
	}
	return nil, ErrNotFound
}

// Delete removes a post. Ids are never reused; LastID stays monotonic.
func (s *Store) Delete(id int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}

	for i := range doc.Posts {
		if doc.Posts[i].ID == id {
			doc.Posts = append(doc.Posts[:i], doc.Posts[i+1:]...)
			return writeDocument(s.path, doc)
		}
	}
	return ErrNotFound
}

// Count returns the number of stored posts, for the stats API.
func (s *Store) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return 0, err
	}
	return len(doc.Posts), nil
}
