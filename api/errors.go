package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"example.com/libraria/services/library/domain"
	"example.com/libraria/services/library/eventstore"
	"example.com/libraria/services/library/handlers"
	"example.com/libraria/services/library/repository"
)

// respondError maps domain and infrastructure errors onto HTTP statuses.
func respondError(c *gin.Context, err error) {
	var (
		vErr      *domain.ValidationError
		fieldErrs validator.ValidationErrors
	)

	switch {
	case errors.As(err, &vErr), errors.As(err, &fieldErrs),
		errors.Is(err, repository.ErrInvalidAggregateID):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAggregateNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrAlreadyDeleted):
		c.JSON(http.StatusGone, gin.H{"error": err.Error()})
	case errors.Is(err, eventstore.ErrConcurrencyConflict),
		errors.Is(err, handlers.ErrDuplicateISBN),
		errors.Is(err, handlers.ErrDuplicateWallet):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
