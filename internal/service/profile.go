package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/pisure/internal/apperror"
	"github.com/sakif/pisure/internal/model"
	"github.com/sakif/pisure/internal/repository"
)

// ProfileInput holds the editable profile fields. The username cannot change.
type ProfileInput struct {
	DisplayName string `json:"displayName" validate:"max=60"`
	Bio         string `json:"bio"         validate:"max=500"`
	AvatarURL   string `json:"avatarUrl"   validate:"omitempty,http_url"`
	Website     string `json:"website"     validate:"omitempty,http_url"`
}

type ProfileService struct {
	profiles repository.ProfileRepository
	logger   *slog.Logger
}

func NewProfileService(profiles repository.ProfileRepository, logger *slog.Logger) *ProfileService {
	return &ProfileService{profiles: profiles, logger: logger}
}

// UpdateOwn replaces the editable fields of the session's own profile.
func (s *ProfileService) UpdateOwn(ctx context.Context, session model.Session, in ProfileInput) (*model.Profile, error) {
	if !session.Authenticated() {
		return nil, apperror.Unauthorized("sign in required")
	}

	in.DisplayName = strings.TrimSpace(in.DisplayName)
	in.Bio = strings.TrimSpace(in.Bio)
	in.AvatarURL = strings.TrimSpace(in.AvatarURL)
	in.Website = strings.TrimSpace(in.Website)
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	profile, err := s.profiles.GetProfileByID(ctx, session.UserID)
	if err != nil {
		return nil, fmt.Errorf("loading own profile: %w", err)
	}
	profile.DisplayName = in.DisplayName
	profile.Bio = in.Bio
	profile.AvatarURL = in.AvatarURL
	profile.Website = in.Website

	if err := s.profiles.UpdateProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("updating profile @%s: %w", profile.Username, err)
	}

	s.logger.Info("profile updated", slog.String("username", profile.Username))
	return profile, nil
}
