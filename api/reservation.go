package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"example.com/libraria/services/library/handlers"
	"example.com/libraria/services/library/utils"
)

func (s *Server) createReservation(c *gin.Context) {
	var cmd handlers.CreateReservationCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := s.reservationHandler.HandleCreateReservation(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}

	// Validation and payment settle asynchronously; the caller polls status
	c.JSON(http.StatusAccepted, gin.H{
		"aggregate_id": res.ID(),
		"status":       res.Status,
		"version":      res.Version(),
	})
}

func (s *Server) cancelReservation(c *gin.Context) {
	cmd := handlers.CancelReservationCommand{AggregateID: c.Param("id")}

	if err := s.reservationHandler.HandleCancelReservation(c.Request.Context(), cmd); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) returnReservation(c *gin.Context) {
	cmd := handlers.ReturnReservationCommand{AggregateID: c.Param("id")}

	res, err := s.reservationHandler.HandleReturnReservation(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aggregate_id": res.ID(),
		"status":       res.Status,
		"version":      res.Version(),
	})
}

func (s *Server) getReservation(c *gin.Context) {
	id := c.Param("id")
	if !utils.IsValidUUID(id) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid reservation id"})
		return
	}

	res, err := s.queryHandler.GetReservation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) listReservations(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))

	rows, pagination, err := s.queryHandler.ListReservations(
		c.Request.Context(), c.Query("user_id"), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": rows, "pagination": pagination})
}
