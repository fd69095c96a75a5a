package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/libraria/services/library/handlers"
	"example.com/libraria/services/library/utils"
)

func (s *Server) createBook(c *gin.Context) {
	var cmd handlers.CreateBookCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	book, err := s.bookHandler.HandleCreateBook(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"aggregate_id": book.ID(),
		"version":      book.Version(),
	})
}

func (s *Server) updateBook(c *gin.Context) {
	var cmd handlers.UpdateBookCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd.AggregateID = c.Param("id")

	book, err := s.bookHandler.HandleUpdateBook(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aggregate_id": book.ID(),
		"version":      book.Version(),
	})
}

func (s *Server) deleteBook(c *gin.Context) {
	cmd := handlers.DeleteBookCommand{AggregateID: c.Param("id")}

	if err := s.bookHandler.HandleDeleteBook(c.Request.Context(), cmd); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getBook(c *gin.Context) {
	id := c.Param("id")
	if !utils.IsValidUUID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid book id"})
		return
	}

	book, err := s.queryHandler.GetBook(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

func (s *Server) listBooks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	books, pagination, err := s.queryHandler.ListBooks(c.Request.Context(), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": books, "pagination": pagination})
}

func (s *Server) searchBooks(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	books, pagination, err := s.queryHandler.SearchBooks(c.Request.Context(), query, page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": books, "pagination": pagination})
}
