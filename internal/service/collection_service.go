package service

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"crystalgate/internal/config"
	"crystalgate/internal/model"
	"crystalgate/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

var ErrInvalidCrystalName = errors.New("crystal name must be 1-100 characters")

const maxNotesRunes = 1000

type CollectionService interface {
	Add(ctx context.Context, userID, tier, crystalName string, identificationID *string, notes string) (*model.CollectionEntry, error)
	List(ctx context.Context, userID string) ([]model.CollectionEntry, error)
}

type collectionService struct {
	repo   repository.CollectionRepository
	limits *config.Limits
	logger zerolog.Logger
}

func NewCollectionService(repo repository.CollectionRepository, limits *config.Limits, logger zerolog.Logger) CollectionService {
	return &collectionService{
		repo:   repo,
		limits: limits,
		logger: logger.With().Str("service", "CollectionService").Logger(),
	}
}

// Add stores a crystal in the user's collection. It returns repository.ErrCollectionFull once the
// tier's collection limit is reached.
func (s *collectionService) Add(ctx context.Context, userID, tier, crystalName string, identificationID *string, notes string) (*model.CollectionEntry, error) {
	crystalName = strings.TrimSpace(crystalName)
	if n := utf8.RuneCountInString(crystalName); n == 0 || n > 100 {
		return nil, ErrInvalidCrystalName
	}
	e := &model.CollectionEntry{
		ID:               uuid.NewString(),
		UserID:           userID,
		CrystalName:      crystalName,
		IdentificationID: identificationID,
		Notes:            truncate(strings.TrimSpace(notes), maxNotesRunes),
	}
	limit := s.limits.Tier(tier).CollectionMax
	if err := s.repo.AddWithLimit(ctx, e, limit); err != nil {
		if errors.Is(err, repository.ErrCollectionFull) {
			s.logger.Info().Str("user_id", userID).Str("tier", tier).Int("limit", limit).Msg("Collection limit reached")
		}
		return nil, err
	}
	return e, nil
}

func (s *collectionService) List(ctx context.Context, userID string) ([]model.CollectionEntry, error) {
	return s.repo.List(ctx, userID)
}
