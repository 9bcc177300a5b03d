package model

import "time"

// Visibility controls whether a song appears in the public feed.
type Visibility string

const (
	VisibilityPrivate Visibility = "private"
	VisibilityPublic  Visibility = "public"
)

// DefaultSongTitle is used when a song is created or patched without a title.
const DefaultSongTitle = "Untitled"

// Valid reports whether v is one of the known visibility states.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Song is one songwriting project: lyrics plus optional beat and recording.
// Each asset is stored as a URL and the media handle needed to delete it;
// both are set or both are nil.
type Song struct {
	ID                string     `json:"id" gorm:"primaryKey;size:36"`
	UserID            *string    `json:"userId" gorm:"size:36;index"`
	Title             string     `json:"title" gorm:"size:255;not null;default:'Untitled'"`
	Lyrics            string     `json:"lyrics" gorm:"type:text"`
	BeatURL           *string    `json:"beatUrl" gorm:"size:1024"`
	BeatPublicID      *string    `json:"beatPublicId" gorm:"size:512"`
	RecordingURL      *string    `json:"recordingUrl" gorm:"size:1024"`
	RecordingPublicID *string    `json:"recordingPublicId" gorm:"size:512"`
	Status            Visibility `json:"status" gorm:"size:16;not null;default:'private';index"`
	CreatedAt         time.Time  `json:"createdAt" gorm:"index"`
	UpdatedAt         time.Time  `json:"updatedAt" gorm:"index"`
}

// TableName sets the table name.
func (Song) TableName() string {
	return "songs"
}

// IsPublic reports whether the song is listed in the public feed.
func (s *Song) IsPublic() bool {
	return s.Status == VisibilityPublic
}

// OwnedBy reports whether userID owns the song. Unowned songs are owned by nobody.
func (s *Song) OwnedBy(userID string) bool {
	return s.UserID != nil && *s.UserID == userID
}

// HasOwner reports whether the song was created by an authenticated caller.
func (s *Song) HasOwner() bool {
	return s.UserID != nil
}

// SongOwner is the only part of a user exposed in the public feed.
type SongOwner struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PublicSong is a feed entry: the song plus its owner's display name.
type PublicSong struct {
	Song
	Owner *SongOwner `json:"owner"`
}
