package song

import (
	"context"
	"errors"
	"fmt"

	"github.com/Shivansh-Atwal/trackstack/core/auth"
	"github.com/Shivansh-Atwal/trackstack/core/feed"
	"github.com/Shivansh-Atwal/trackstack/logger"
	"github.com/Shivansh-Atwal/trackstack/model"
	"github.com/Shivansh-Atwal/trackstack/repository"

	"github.com/google/uuid"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidInput = errors.New("invalid input")
)

// MediaRelay releases stored assets. Delete must succeed for unknown or
// already deleted handles.
type MediaRelay interface {
	Delete(ctx context.Context, publicID string) error
}

// FeedCache holds the rendered public feed. GetFeed reports the cache
// generation it read; SetFeed stores under that generation so a write racing
// an InvalidateFeed is never served.
type FeedCache interface {
	GetFeed(ctx context.Context) ([]*model.PublicSong, int64, bool, error)
	SetFeed(ctx context.Context, gen int64, songs []*model.PublicSong) error
	InvalidateFeed(ctx context.Context) error
}

// Notifier receives feed change events.
type Notifier interface {
	Publish(event feed.Event)
}

// Options toggles the access policy.
type Options struct {
	// EnforceOwnership restricts update and delete of owned songs to their
	// owner and hides other users' private songs from Get.
	EnforceOwnership bool
	// AnonymousListAll makes List return every song to anonymous callers.
	AnonymousListAll bool
}

// DefaultOptions enforces ownership and gives anonymous callers an empty list.
func DefaultOptions() Options {
	return Options{EnforceOwnership: true}
}

// CleanupOutcome is the result of releasing one asset handle.
type CleanupOutcome struct {
	Handle string
	Err    error
}

// CleanupReport lists every asset release attempted by an operation.
// Failures never change the operation's result.
type CleanupReport struct {
	Outcomes []CleanupOutcome
}

// Failed returns the outcomes that reported an error.
func (r CleanupReport) Failed() []CleanupOutcome {
	var failed []CleanupOutcome
	for _, o := range r.Outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}

// OK reports whether every release succeeded.
func (r CleanupReport) OK() bool {
	return len(r.Failed()) == 0
}

// Service implements song ownership, visibility and asset lifecycle rules.
type Service struct {
	songs    repository.SongRepository
	media    MediaRelay
	cache    FeedCache
	notifier Notifier
	opts     Options
}

// NewService creates a Service. cache and notifier may be nil.
func NewService(songs repository.SongRepository, media MediaRelay, cache FeedCache, notifier Notifier, opts Options) *Service {
	return &Service{
		songs:    songs,
		media:    media,
		cache:    cache,
		notifier: notifier,
		opts:     opts,
	}
}

// List returns the caller's songs. Anonymous callers get an empty list unless
// AnonymousListAll is set.
func (s *Service) List(ctx context.Context, caller auth.Identity) ([]*model.Song, error) {
	if userID, ok := caller.UserID(); ok {
		return s.songs.ListSongsByOwner(ctx, userID)
	}
	if s.opts.AnonymousListAll {
		return s.songs.ListAllSongs(ctx)
	}
	return []*model.Song{}, nil
}

// ListPublic returns the public feed, from the cache when warm.
func (s *Service) ListPublic(ctx context.Context) ([]*model.PublicSong, error) {
	var (
		gen       int64
		cacheable bool
	)
	if s.cache != nil {
		songs, g, ok, err := s.cache.GetFeed(ctx)
		if err != nil {
			logger.Warn("feed cache read failed", logger.ErrorField(err))
		} else if ok {
			return songs, nil
		} else {
			gen, cacheable = g, true
		}
	}

	songs, err := s.songs.ListPublicSongs(ctx)
	if err != nil {
		return nil, err
	}

	if cacheable {
		if err := s.cache.SetFeed(ctx, gen, songs); err != nil {
			logger.Warn("feed cache write failed", logger.ErrorField(err))
		}
	}
	return songs, nil
}

// Create stores a new song owned by caller, or unowned for anonymous callers.
func (s *Service) Create(ctx context.Context, caller auth.Identity, draft Draft) (*model.Song, error) {
	song := &model.Song{
		ID:                uuid.NewString(),
		Title:             model.DefaultSongTitle,
		Status:            model.VisibilityPrivate,
		BeatURL:           nonEmpty(draft.BeatURL),
		BeatPublicID:      nonEmpty(draft.BeatPublicID),
		RecordingURL:      nonEmpty(draft.RecordingURL),
		RecordingPublicID: nonEmpty(draft.RecordingPublicID),
	}
	if userID, ok := caller.UserID(); ok {
		song.UserID = &userID
	}
	if draft.Title != nil && *draft.Title != "" {
		song.Title = *draft.Title
	}
	if draft.Lyrics != nil {
		song.Lyrics = *draft.Lyrics
	}
	if draft.Status != nil && *draft.Status != "" {
		song.Status = *draft.Status
	}

	if !song.Status.Valid() {
		return nil, fmt.Errorf("%w: status must be public or private", ErrInvalidInput)
	}
	if err := checkPair("beat", song.BeatURL, song.BeatPublicID); err != nil {
		return nil, err
	}
	if err := checkPair("recording", song.RecordingURL, song.RecordingPublicID); err != nil {
		return nil, err
	}

	if err := s.songs.CreateSong(ctx, song); err != nil {
		return nil, err
	}

	logger.Info("[Song] created",
		logger.String("songId", song.ID),
		logger.String("caller", caller.String()),
		logger.String("status", string(song.Status)))

	s.afterMutation(ctx, false, song)
	return song, nil
}

// Get returns one song. With ownership enforced, another user's private song
// is reported as ErrNotFound.
func (s *Service) Get(ctx context.Context, caller auth.Identity, id string) (*model.Song, error) {
	song, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !s.canRead(caller, song) {
		return nil, ErrNotFound
	}
	return song, nil
}

// Update applies patch to a song. Asset handles that the patch clears or
// replaces are released before the record is written.
func (s *Service) Update(ctx context.Context, caller auth.Identity, id string, patch Patch) (*model.Song, CleanupReport, error) {
	song, err := s.load(ctx, id)
	if err != nil {
		return nil, CleanupReport{}, err
	}
	if !s.canModify(caller, song) {
		return nil, CleanupReport{}, ErrForbidden
	}

	wasPublic := song.IsPublic()
	next := *song

	if patch.Title.Present {
		if patch.Title.Null {
			next.Title = model.DefaultSongTitle
		} else {
			next.Title = patch.Title.Value
		}
	}
	if patch.Lyrics.Present {
		next.Lyrics = patch.Lyrics.Value
	}
	if patch.Status.Present {
		if patch.Status.Null || !patch.Status.Value.Valid() {
			return nil, CleanupReport{}, fmt.Errorf("%w: status must be public or private", ErrInvalidInput)
		}
		next.Status = patch.Status.Value
	}

	var release []string
	beat, err := applyAsset("beat", song.BeatURL, song.BeatPublicID, patch.BeatURL, patch.BeatPublicID)
	if err != nil {
		return nil, CleanupReport{}, err
	}
	recording, err := applyAsset("recording", song.RecordingURL, song.RecordingPublicID, patch.RecordingURL, patch.RecordingPublicID)
	if err != nil {
		return nil, CleanupReport{}, err
	}
	next.BeatURL, next.BeatPublicID = beat.url, beat.publicID
	next.RecordingURL, next.RecordingPublicID = recording.url, recording.publicID
	release = append(release, beat.release...)
	release = append(release, recording.release...)

	report := s.releaseAll(ctx, song.ID, release)

	if err := s.songs.UpdateSong(ctx, &next); err != nil {
		return nil, report, err
	}

	logger.Info("[Song] updated",
		logger.String("songId", next.ID),
		logger.String("caller", caller.String()))

	s.afterMutation(ctx, wasPublic, &next)
	return &next, report, nil
}

// Remove releases both assets of a song, then deletes its record.
func (s *Service) Remove(ctx context.Context, caller auth.Identity, id string) (CleanupReport, error) {
	song, err := s.load(ctx, id)
	if err != nil {
		return CleanupReport{}, err
	}
	if !s.canModify(caller, song) {
		return CleanupReport{}, ErrForbidden
	}

	var release []string
	if song.BeatPublicID != nil {
		release = append(release, *song.BeatPublicID)
	}
	if song.RecordingPublicID != nil {
		release = append(release, *song.RecordingPublicID)
	}
	report := s.releaseAll(ctx, song.ID, release)

	if err := s.songs.DeleteSong(ctx, song.ID); err != nil {
		return report, err
	}

	logger.Info("[Song] removed",
		logger.String("songId", song.ID),
		logger.String("caller", caller.String()))

	s.afterMutation(ctx, song.IsPublic(), nil)
	if song.IsPublic() {
		s.publish(feed.Event{Type: feed.EventRemoved, SongID: song.ID})
	}
	return report, nil
}

func (s *Service) load(ctx context.Context, id string) (*model.Song, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	song, err := s.songs.GetSongByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if song == nil {
		return nil, ErrNotFound
	}
	return song, nil
}

func (s *Service) canRead(caller auth.Identity, song *model.Song) bool {
	if !s.opts.EnforceOwnership || song.IsPublic() || !song.HasOwner() {
		return true
	}
	userID, ok := caller.UserID()
	return ok && song.OwnedBy(userID)
}

// canModify leaves unowned songs open to any caller.
func (s *Service) canModify(caller auth.Identity, song *model.Song) bool {
	if !s.opts.EnforceOwnership || !song.HasOwner() {
		return true
	}
	userID, ok := caller.UserID()
	return ok && song.OwnedBy(userID)
}

func (s *Service) releaseAll(ctx context.Context, songID string, handles []string) CleanupReport {
	var report CleanupReport
	for _, handle := range handles {
		err := s.media.Delete(ctx, handle)
		if err != nil {
			logger.Warn("asset cleanup failed",
				logger.String("songId", songID),
				logger.String("handle", handle),
				logger.ErrorField(err))
		}
		report.Outcomes = append(report.Outcomes, CleanupOutcome{Handle: handle, Err: err})
	}
	return report
}

// afterMutation drops the cached feed and announces visibility changes.
// current is nil after a delete.
func (s *Service) afterMutation(ctx context.Context, wasPublic bool, current *model.Song) {
	if s.cache != nil {
		if err := s.cache.InvalidateFeed(ctx); err != nil {
			logger.Warn("feed cache invalidation failed", logger.ErrorField(err))
		}
	}
	if current == nil {
		return
	}

	isPublic := current.IsPublic()
	switch {
	case isPublic && !wasPublic:
		s.publish(feed.Event{Type: feed.EventPublished, SongID: current.ID, Song: current})
	case isPublic && wasPublic:
		s.publish(feed.Event{Type: feed.EventUpdated, SongID: current.ID, Song: current})
	case !isPublic && wasPublic:
		s.publish(feed.Event{Type: feed.EventUnpublished, SongID: current.ID})
	}
}

func (s *Service) publish(event feed.Event) {
	if s.notifier != nil {
		s.notifier.Publish(event)
	}
}

type assetState struct {
	url      *string
	publicID *string
	release  []string
}

// applyAsset computes the new URL/handle pair for one asset and the recorded
// handle to release, if any. It performs no remote call.
func applyAsset(name string, curURL, curID *string, urlPatch, idPatch Optional[string]) (assetState, error) {
	if empty(urlPatch) {
		st := assetState{}
		if curID != nil {
			st.release = []string{*curID}
		}
		return st, nil
	}

	st := assetState{url: curURL, publicID: curID}
	if urlPatch.Present {
		v := urlPatch.Value
		st.url = &v
	}
	// A null or empty handle next to a kept URL leaves the recorded handle.
	if idPatch.Present && !empty(idPatch) {
		v := idPatch.Value
		st.publicID = &v
	}

	if err := checkPair(name, st.url, st.publicID); err != nil {
		return assetState{}, err
	}
	if curID != nil && (st.publicID == nil || *st.publicID != *curID) {
		st.release = []string{*curID}
	}
	return st, nil
}

func checkPair(name string, url, publicID *string) error {
	if (url == nil) != (publicID == nil) {
		return fmt.Errorf("%w: %s url and publicId must be set together", ErrInvalidInput, name)
	}
	return nil
}
