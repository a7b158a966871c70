package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/skybrief/skybrief/internal/bsky"
	"github.com/skybrief/skybrief/internal/db"
	"github.com/skybrief/skybrief/internal/globaltime"
)

// ProfileStore is the persistence surface profile sync needs; *db.Pool
// satisfies it.
type ProfileStore interface {
	GetSourceProfile(ctx context.Context, sourceID int64) (db.SourceProfile, error)
	UpdateSourceProfile(ctx context.Context, sourceID int64, handle, displayName, avatarURL *string, now time.Time) error
}

// ProfileLookup resolves a DID to its public profile.
type ProfileLookup interface {
	GetProfile(ctx context.Context, actor string) (*bsky.Profile, error)
}

// ProfileSyncer fills in handle, display name and avatar for a source
// from the public AppView.
type ProfileSyncer struct {
	store  ProfileStore
	lookup ProfileLookup
	logger zerolog.Logger
}

func NewProfileSyncer(store ProfileStore, lookup ProfileLookup, logger zerolog.Logger) *ProfileSyncer {
	return &ProfileSyncer{store: store, lookup: lookup, logger: logger}
}

// Sync fetches the profile for the source's DID and stores it. A profile
// the AppView cannot resolve still marks the source as synced so the unit
// of work is not retried forever.
func (s *ProfileSyncer) Sync(ctx context.Context, sourceID int64) error {
	record, err := s.store.GetSourceProfile(ctx, sourceID)
	if err != nil {
		return err
	}

	profile, err := s.lookup.GetProfile(ctx, record.DID)
	if err != nil {
		return err
	}

	now := globaltime.UTC()
	if profile == nil {
		s.logger.Warn().Int64("source_id", sourceID).Str("did", record.DID).
			Msg("profile not found, marking source synced")
		return s.store.UpdateSourceProfile(ctx, sourceID, record.Handle, record.DisplayName, record.AvatarURL, now)
	}

	handle := optional(profile.Handle)
	displayName := optional(profile.DisplayName)
	avatarURL := optional(profile.Avatar)
	return s.store.UpdateSourceProfile(ctx, sourceID, handle, displayName, avatarURL, now)
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
