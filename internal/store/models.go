package store

import (
	"encoding/json"
	"time"
)

// Now returns the current UTC time at millisecond precision, the resolution
// timestamps are persisted with.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// User is a registered account. On disk timestamps use camelCase keys.
type User struct {
	ID        string
	Username  string
	Email     string
	Password  string // bcrypt hash
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (u User) GetID() string { return u.ID }

type userRecord struct {
	ID           string     `json:"id"`
	Username     string     `json:"username"`
	Email        string     `json:"email"`
	Password     string     `json:"password"`
	CreatedAt    *time.Time `json:"createdAt,omitempty"`
	UpdatedAt    *time.Time `json:"updatedAt,omitempty"`
	CreatedAtOld *time.Time `json:"created_at,omitempty"`
	UpdatedAtOld *time.Time `json:"updated_at,omitempty"`
}

// MarshalJSON writes the on-disk representation.
func (u User) MarshalJSON() ([]byte, error) {
	created, updated := u.CreatedAt, u.UpdatedAt
	return json.Marshal(userRecord{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Password:  u.Password,
		CreatedAt: &created,
		UpdatedAt: &updated,
	})
}

// UnmarshalJSON accepts both createdAt and created_at spellings.
func (u *User) UnmarshalJSON(data []byte) error {
	var rec userRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}
	*u = User{
		ID:        rec.ID,
		Username:  rec.Username,
		Email:     rec.Email,
		Password:  rec.Password,
		CreatedAt: firstTime(rec.CreatedAt, rec.CreatedAtOld),
		UpdatedAt: firstTime(rec.UpdatedAt, rec.UpdatedAtOld),
	}
	return nil
}

func firstTime(candidates ...*time.Time) time.Time {
	for _, t := range candidates {
		if t != nil && !t.IsZero() {
			return *t
		}
	}
	return time.Time{}
}

// PublicUser is the user view returned to clients.
type PublicUser struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Public strips the password hash.
func (u User) Public() PublicUser {
	return PublicUser{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// Notebook groups notes. NoteCount is computed at read time.
type Notebook struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Color       string    `json:"color"`
	UserID      string    `json:"user_id"`
	IsShared    bool      `json:"is_shared"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	NoteCount   int       `json:"note_count"`
}

func (n Notebook) GetID() string { return n.ID }

// NoteMetadata holds values derived from note content.
type NoteMetadata struct {
	WordCount   int `json:"word_count"`
	ReadingTime int `json:"reading_time"`
}

// Note is a user document. Content is either a JSON string or an arbitrary
// JSON value produced by a rich text editor.
type Note struct {
	ID          string          `json:"id"`
	Title       string          `json:"title"`
	Content     json.RawMessage `json:"content"`
	ContentText string          `json:"content_text"`
	Excerpt     string          `json:"excerpt"`
	NotebookID  *string         `json:"notebook_id"`
	UserID      string          `json:"user_id"`
	Tags        []string        `json:"tags"`
	Status      string          `json:"status"`
	IsFavorite  bool            `json:"is_favorite"`
	IsArchived  bool            `json:"is_archived"`
	IsDeleted   bool            `json:"is_deleted"`
	Metadata    NoteMetadata    `json:"metadata"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

func (n Note) GetID() string { return n.ID }

// InNotebook reports whether the note is filed under notebookID.
func (n Note) InNotebook(notebookID string) bool {
	return n.NotebookID != nil && *n.NotebookID == notebookID
}

// Tag is a label. An empty UserID marks a tag shared by all users.
type Tag struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (t Tag) GetID() string { return t.ID }

// Shared reports whether the tag is visible to every user.
func (t Tag) Shared() bool { return t.UserID == "" }

// APIConfig holds a user's credentials for an OpenAI-compatible provider.
// APIKey is stored in plaintext.
type APIConfig struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	BaseURL   string    `json:"baseUrl"`
	APIKey    string    `json:"apiKey"`
	Models    []string  `json:"models"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (c APIConfig) GetID() string { return c.ID }

// SupportsModel reports whether model is listed in the config.
func (c APIConfig) SupportsModel(model string) bool {
	for _, m := range c.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Valid reports whether the record carries every required field.
func (c APIConfig) Valid() bool {
	return c.ID != "" && c.Name != "" && c.BaseURL != "" && c.APIKey != "" && c.UserID != ""
}

// Masked returns a copy safe to send to clients: the key is replaced by
// "***" and its last four characters. Keys of four characters or fewer are
// hidden entirely.
func (c APIConfig) Masked() APIConfig {
	out := c
	out.Models = append([]string{}, c.Models...)
	switch key := []rune(c.APIKey); {
	case len(key) == 0:
		out.APIKey = ""
	case len(key) <= 4:
		out.APIKey = "***"
	default:
		out.APIKey = "***" + string(key[len(key)-4:])
	}
	return out
}
