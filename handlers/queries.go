package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"example.com/libraria/services/library/cache"
	"example.com/libraria/services/library/config"
	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/models"
	"example.com/libraria/services/library/projections"
)

// Pagination describes one page of a listing.
type Pagination struct {
	Total   int64 `json:"total"`
	Page    int   `json:"page"`
	Limit   int   `json:"limit"`
	Pages   int   `json:"pages"`
	HasNext bool  `json:"has_next"`
	HasPrev bool  `json:"has_prev"`
}

func newPagination(total int64, page, limit int) Pagination {
	pages := int((total + int64(limit) - 1) / int64(limit))
	return Pagination{
		Total:   total,
		Page:    page,
		Limit:   limit,
		Pages:   pages,
		HasNext: page < pages,
		HasPrev: page > 1,
	}
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}
	return page, limit
}

// QueryHandler serves the read side from the projection tables, with a
// cache-aside Redis layer for single-row lookups and Elasticsearch for
// full-text catalog search.
type QueryHandler struct {
	db            *gorm.DB
	cache         *cache.RedisCache
	elasticClient *elasticsearch.Client
	cfg           config.Config
}

// NewQueryHandler creates a new query handler.
func NewQueryHandler(db *gorm.DB, cache *cache.RedisCache, elasticClient *elasticsearch.Client, cfg config.Config) *QueryHandler {
	return &QueryHandler{db: db, cache: cache, elasticClient: elasticClient, cfg: cfg}
}

// GetBook returns one catalog entry.
func (q *QueryHandler) GetBook(ctx context.Context, aggregateID string) (*models.BookProjection, error) {
	if q.cache != nil {
		if book, err := q.cache.GetBook(ctx, aggregateID); err == nil {
			return book, nil
		}
	}

	var book models.BookProjection
	err := q.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		First(&book).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAggregateNotFound
	}
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		if err := q.cache.SetBook(ctx, &book); err != nil {
			log.Warn().Err(err).Str("aggregateID", aggregateID).Msg("Failed to cache book")
		}
	}
	return &book, nil
}

// ListBooks returns one page of the catalog.
func (q *QueryHandler) ListBooks(ctx context.Context, page, limit int) ([]models.BookProjection, Pagination, error) {
	page, limit = normalizePage(page, limit)

	var total int64
	if err := q.db.WithContext(ctx).Model(&models.BookProjection{}).Count(&total).Error; err != nil {
		return nil, Pagination{}, err
	}

	var books []models.BookProjection
	if err := q.db.WithContext(ctx).
		Order("title ASC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&books).Error; err != nil {
		return nil, Pagination{}, err
	}
	return books, newPagination(total, page, limit), nil
}

// GetReservation returns one loan.
func (q *QueryHandler) GetReservation(ctx context.Context, aggregateID string) (*models.ReservationProjection, error) {
	if q.cache != nil {
		if res, err := q.cache.GetReservation(ctx, aggregateID); err == nil {
			return res, nil
		}
	}

	var res models.ReservationProjection
	err := q.db.WithContext(ctx).
		Where("aggregate_id = ?", aggregateID).
		First(&res).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAggregateNotFound
	}
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		if err := q.cache.SetReservation(ctx, &res); err != nil {
			log.Warn().Err(err).Str("aggregateID", aggregateID).Msg("Failed to cache reservation")
		}
	}
	return &res, nil
}

// ListReservations returns one page of loans, optionally filtered by user
// and status.
func (q *QueryHandler) ListReservations(ctx context.Context, userID, status string, page, limit int) ([]models.ReservationProjection, Pagination, error) {
	page, limit = normalizePage(page, limit)

	query := q.db.WithContext(ctx).Model(&models.ReservationProjection{})
	if userID != "" {
		query = query.Where("user_id = ?", userID)
	}
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, Pagination{}, err
	}

	var rows []models.ReservationProjection
	if err := query.
		Order("created_at DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, Pagination{}, err
	}
	return rows, newPagination(total, page, limit), nil
}

// GetWalletByUser returns the user's wallet balance.
func (q *QueryHandler) GetWalletByUser(ctx context.Context, userID string) (*models.WalletProjection, error) {
	if q.cache != nil {
		if wallet, err := q.cache.GetWallet(ctx, userID); err == nil {
			return wallet, nil
		}
	}

	var wallet models.WalletProjection
	err := q.db.WithContext(ctx).
		Where("user_id = ?", userID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, domain.ErrAggregateNotFound
	}
	if err != nil {
		return nil, err
	}

	if q.cache != nil {
		if err := q.cache.SetWallet(ctx, &wallet); err != nil {
			log.Warn().Err(err).Str("userID", userID).Msg("Failed to cache wallet")
		}
	}
	return &wallet, nil
}

// SearchBooks runs a full-text query over the catalog index.
func (q *QueryHandler) SearchBooks(ctx context.Context, query string, page, limit int) ([]models.BookProjection, Pagination, error) {
	if q.elasticClient == nil {
		return nil, Pagination{}, errors.New("search is not enabled")
	}
	page, limit = normalizePage(page, limit)

	body := map[string]interface{}{
		"from": (page - 1) * limit,
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"title^2", "author", "publisher", "isbn"},
			},
		},
	}
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, Pagination{}, err
	}

	index := projections.FormatIndex(projections.BooksIndex, q.cfg)
	res, err := q.elasticClient.Search(
		q.elasticClient.Search.WithContext(ctx),
		q.elasticClient.Search.WithIndex(index),
		q.elasticClient.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, Pagination{}, fmt.Errorf("search request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, Pagination{}, fmt.Errorf("search returned error: %s", res.String())
	}

	var result struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.BookProjection `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, Pagination{}, fmt.Errorf("failed to decode search response: %w", err)
	}

	books := make([]models.BookProjection, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		books = append(books, hit.Source)
	}
	return books, newPagination(result.Hits.Total.Value, page, limit), nil
}
