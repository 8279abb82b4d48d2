package services

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"go.uber.org/zap"

	"alfredoptarigan/job-agent/internal/models"
	"alfredoptarigan/job-agent/internal/repositories"
)

const extractionTimeout = 60 * time.Second

// ResumeService owns the profile lifecycle: upload replaces it, an explicit
// edit overwrites the structured fields.
type ResumeService interface {
	Upload(ctx context.Context, userID string, file *multipart.FileHeader) (*models.UploadResponse, error)
	UpdateProfile(ctx context.Context, userID string, req *models.ProfileRequest) (*models.Profile, error)
	Reindex(ctx context.Context, userID string) (int, error)
}

type resumeService struct {
	profileRepo repositories.ProfileRepository
	storage     StorageService
	parser      ResumeParser
	extractor   ProfileExtractor
	index       ResumeIndex
	logger      *zap.Logger
}

// NewResumeService accepts a nil extractor or index; those steps are then
// skipped.
func NewResumeService(
	profileRepo repositories.ProfileRepository,
	storage StorageService,
	parser ResumeParser,
	extractor ProfileExtractor,
	index ResumeIndex,
	logger *zap.Logger,
) ResumeService {
	return &resumeService{
		profileRepo: profileRepo,
		storage:     storage,
		parser:      parser,
		extractor:   extractor,
		index:       index,
		logger:      logger.Named("resume"),
	}
}

// Upload implements ResumeService.
func (s *resumeService) Upload(ctx context.Context, userID string, file *multipart.FileHeader) (*models.UploadResponse, error) {
	if !IsSupportedResume(file.Filename) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedResume, file.Filename)
	}

	filePath, err := s.storage.SaveResume(file, userID)
	if err != nil {
		return nil, err
	}

	text, err := s.parser.ExtractText(filePath)
	if err != nil {
		s.storage.Delete(filePath)
		return nil, fmt.Errorf("failed to extract resume text: %w", err)
	}

	previous, err := s.profileRepo.Get(ctx, userID)
	if err != nil && !errors.Is(err, repositories.ErrProfileNotFound) {
		s.storage.Delete(filePath)
		return nil, err
	}

	extracted, usedLLM := s.extract(ctx, userID, text)

	profile := &models.Profile{
		UserID:         userID,
		FullName:       extracted.FullName,
		Email:          extracted.Email,
		Phone:          extracted.Phone,
		Location:       extracted.Location,
		LinkedInURL:    extracted.LinkedInURL,
		PortfolioURL:   extracted.PortfolioURL,
		Summary:        strings.TrimSpace(extracted.Summary),
		Skills:         trimAll(extracted.Skills),
		ResumeText:     text,
		ResumeFilename: file.Filename,
		ResumePath:     filePath,
	}
	if previous != nil {
		// The notification target is an account setting, not résumé data.
		profile.TelegramChatID = previous.TelegramChatID
		profile.CreatedAt = previous.CreatedAt
	}

	if err := s.profileRepo.Replace(ctx, profile); err != nil {
		s.storage.Delete(filePath)
		return nil, err
	}

	if previous != nil && previous.ResumePath != "" && previous.ResumePath != filePath {
		if err := s.storage.Delete(previous.ResumePath); err != nil {
			s.logger.Warn("failed to remove previous resume", zap.String("user_id", userID), zap.Error(err))
		}
	}

	indexed := false
	if s.index != nil {
		if n, err := s.index.Index(ctx, userID, text); err != nil {
			s.logger.Warn("resume indexing failed", zap.String("user_id", userID), zap.Error(err))
		} else {
			indexed = n > 0
		}
	}

	s.logger.Info("resume uploaded",
		zap.String("user_id", userID),
		zap.Int("characters", len(text)),
		zap.Int("skills", len(profile.Skills)),
		zap.Bool("indexed", indexed),
	)

	skills := profile.Skills
	if skills == nil {
		skills = []string{}
	}
	return &models.UploadResponse{
		UserID:         userID,
		ResumeFilename: file.Filename,
		Characters:     len([]rune(text)),
		Skills:         skills,
		Extracted:      usedLLM,
		Indexed:        indexed,
	}, nil
}

// extract prefers the LLM extractor and falls back to contact heuristics.
func (s *resumeService) extract(ctx context.Context, userID, text string) (*ExtractedProfile, bool) {
	fallback := heuristicExtract(text)
	if s.extractor == nil {
		return fallback, false
	}

	ectx, cancel := context.WithTimeout(ctx, extractionTimeout)
	defer cancel()

	extracted, err := s.extractor.Extract(ectx, text)
	if err != nil {
		s.logger.Warn("profile extraction failed, keeping raw text", zap.String("user_id", userID), zap.Error(err))
		return fallback, false
	}

	if extracted.Email == "" {
		extracted.Email = fallback.Email
	}
	if extracted.LinkedInURL == "" {
		extracted.LinkedInURL = fallback.LinkedInURL
	}
	if extracted.Phone == "" {
		extracted.Phone = fallback.Phone
	}
	if extracted.FullName == "" {
		extracted.FullName = fallback.FullName
	}
	return extracted, true
}

// UpdateProfile implements ResumeService. Résumé text and file are kept;
// every structured field is overwritten with the request.
func (s *resumeService) UpdateProfile(ctx context.Context, userID string, req *models.ProfileRequest) (*models.Profile, error) {
	profile, err := s.profileRepo.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, repositories.ErrProfileNotFound) {
			return nil, err
		}
		profile = &models.Profile{UserID: userID}
	}

	profile.FullName = strings.TrimSpace(req.FullName)
	profile.Email = strings.TrimSpace(req.Email)
	profile.Phone = strings.TrimSpace(req.Phone)
	profile.Location = strings.TrimSpace(req.Location)
	profile.LinkedInURL = strings.TrimSpace(req.LinkedInURL)
	profile.PortfolioURL = strings.TrimSpace(req.PortfolioURL)
	profile.Summary = strings.TrimSpace(req.Summary)
	profile.Skills = trimAll(req.Skills)
	profile.TelegramChatID = req.TelegramChatID

	if err := s.profileRepo.Replace(ctx, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

// Reindex implements ResumeService.
func (s *resumeService) Reindex(ctx context.Context, userID string) (int, error) {
	if s.index == nil {
		return 0, nil
	}
	profile, err := s.profileRepo.Get(ctx, userID)
	if err != nil {
		return 0, err
	}
	if strings.TrimSpace(profile.ResumeText) == "" {
		return 0, s.index.Delete(ctx, userID)
	}
	return s.index.Index(ctx, userID, profile.ResumeText)
}
