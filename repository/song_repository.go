package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivansh-Atwal/trackstack/model"

	"gorm.io/gorm"
)

// SongRepository defines the interface for song data operations.
// List methods return songs most recently updated first, ties broken by
// most recently created.
type SongRepository interface {
	CreateSong(ctx context.Context, song *model.Song) error
	GetSongByID(ctx context.Context, id string) (*model.Song, error)
	ListSongsByOwner(ctx context.Context, ownerID string) ([]*model.Song, error)
	ListAllSongs(ctx context.Context) ([]*model.Song, error)
	ListPublicSongs(ctx context.Context) ([]*model.PublicSong, error)
	UpdateSong(ctx context.Context, song *model.Song) error
	DeleteSong(ctx context.Context, id string) error
}

const songOrder = "songs.updated_at DESC, songs.created_at DESC"

// gormSongRepository implements SongRepository on top of gorm/MySQL.
type gormSongRepository struct {
	db *gorm.DB
}

// NewGormSongRepository creates a new gormSongRepository.
func NewGormSongRepository(db *gorm.DB) SongRepository {
	return &gormSongRepository{db: db}
}

// CreateSong inserts a song. gorm fills CreatedAt and UpdatedAt.
func (r *gormSongRepository) CreateSong(ctx context.Context, song *model.Song) error {
	if err := r.db.WithContext(ctx).Create(song).Error; err != nil {
		return fmt.Errorf("failed to create song: %w", err)
	}
	return nil
}

// GetSongByID retrieves a song by id. It returns nil, nil when absent.
func (r *gormSongRepository) GetSongByID(ctx context.Context, id string) (*model.Song, error) {
	var song model.Song
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&song).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get song %s: %w", id, err)
	}
	return &song, nil
}

// ListSongsByOwner returns every song owned by ownerID.
func (r *gormSongRepository) ListSongsByOwner(ctx context.Context, ownerID string) ([]*model.Song, error) {
	songs := make([]*model.Song, 0)
	err := ownerSongsQuery(r.db.WithContext(ctx), ownerID).Find(&songs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list songs for owner %s: %w", ownerID, err)
	}
	return songs, nil
}

// ListAllSongs returns every song regardless of owner or visibility.
func (r *gormSongRepository) ListAllSongs(ctx context.Context) ([]*model.Song, error) {
	songs := make([]*model.Song, 0)
	if err := r.db.WithContext(ctx).Order(songOrder).Find(&songs).Error; err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	return songs, nil
}

func ownerSongsQuery(tx *gorm.DB, ownerID string) *gorm.DB {
	return tx.Model(&model.Song{}).
		Where("user_id = ?", ownerID).
		Order(songOrder)
}

// publicFeedQuery selects public songs with the owner's name only; no other
// user column leaves the database.
func publicFeedQuery(tx *gorm.DB) *gorm.DB {
	return tx.Model(&model.Song{}).
		Select("songs.*, users.name AS owner_name").
		Joins("LEFT JOIN users ON users.id = songs.user_id").
		Where("songs.status = ?", model.VisibilityPublic).
		Order(songOrder)
}

// publicSongRow is the scan target for the feed join.
type publicSongRow struct {
	model.Song
	OwnerName *string
}

// ListPublicSongs returns public songs joined with their owner's name.
func (r *gormSongRepository) ListPublicSongs(ctx context.Context) ([]*model.PublicSong, error) {
	var rows []publicSongRow
	err := publicFeedQuery(r.db.WithContext(ctx)).Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list public songs: %w", err)
	}

	feed := make([]*model.PublicSong, 0, len(rows))
	for i := range rows {
		row := rows[i]
		entry := &model.PublicSong{Song: row.Song}
		if row.UserID != nil && row.OwnerName != nil {
			entry.Owner = &model.SongOwner{ID: *row.UserID, Name: *row.OwnerName}
		}
		feed = append(feed, entry)
	}
	return feed, nil
}

// UpdateSong saves every column of song; gorm bumps UpdatedAt.
func (r *gormSongRepository) UpdateSong(ctx context.Context, song *model.Song) error {
	if err := r.db.WithContext(ctx).Save(song).Error; err != nil {
		return fmt.Errorf("failed to update song %s: %w", song.ID, err)
	}
	return nil
}

// DeleteSong removes the song record.
func (r *gormSongRepository) DeleteSong(ctx context.Context, id string) error {
	if err := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Song{}).Error; err != nil {
		return fmt.Errorf("failed to delete song %s: %w", id, err)
	}
	return nil
}
