package service

import (
	"context"
	"errors"

	"cv-search-be/internal/dto"
	"cv-search-be/internal/pkg/logger"
	"cv-search-be/pkg/rag/memory"
	"cv-search-be/pkg/rag/pipeline"
)

var ErrEmailRequired = errors.New("authenticated email is required")

type IQueryService interface {
	Search(ctx context.Context, email string, req dto.QueryRequest) (*dto.QueryResponse, error)
	History(ctx context.Context, email, sessionID string, limit int) (*dto.HistoryResponse, error)
}

type queryService struct {
	pipeline *pipeline.Pipeline
	memory   *memory.Manager
	logger   logger.ILogger
}

func NewQueryService(p *pipeline.Pipeline, mem *memory.Manager, log logger.ILogger) IQueryService {
	return &queryService{
		pipeline: p,
		memory:   mem,
		logger:   log,
	}
}

func (s *queryService) Search(ctx context.Context, email string, req dto.QueryRequest) (*dto.QueryResponse, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}

	result := s.pipeline.Run(ctx, pipeline.Request{
		Query:       req.Query,
		Email:       email,
		SessionID:   req.SessionID,
		TopK:        req.TopK,
		Debug:       req.Debug,
		UserContext: req.Context,
	})

	s.logger.Info("query_service", "query processed", map[string]interface{}{
		"email":      email,
		"success":    result.Success,
		"candidates": len(result.Candidates),
	})

	candidates := make([]dto.CandidateSummaryResponse, 0, len(result.Candidates))
	for _, c := range result.Candidates {
		candidates = append(candidates, dto.CandidateSummaryResponse{
			Name:     c.Name,
			Summary:  c.Summary,
			Metadata: c.Metadata,
			Score:    c.Score,
		})
	}

	return &dto.QueryResponse{
		Success:    result.Success,
		Response:   result.Response,
		Candidates: candidates,
		Sources:    result.Sources,
		Error:      result.Error,
		Debug:      result.Debug,
	}, nil
}

func (s *queryService) History(ctx context.Context, email, sessionID string, limit int) (*dto.HistoryResponse, error) {
	if email == "" {
		return nil, ErrEmailRequired
	}
	if s.memory == nil {
		return &dto.HistoryResponse{Email: email, Entries: []dto.MemoryEntryResponse{}}, nil
	}
	if limit <= 0 {
		limit = 10
	}
	if limit > 50 {
		limit = 50
	}

	entries, err := s.memory.Recent(ctx, email, sessionID, limit)
	if err != nil {
		return nil, err
	}

	out := make([]dto.MemoryEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.MemoryEntryResponse{
			ID:              e.ID,
			SessionID:       e.SessionID,
			Query:           e.Query,
			ResponseSummary: e.ResponseSummary,
			Timestamp:       e.Timestamp,
		})
	}
	return &dto.HistoryResponse{Email: email, Entries: out}, nil
}
