package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"example.com/libraria/services/library/handlers"
)

func (s *Server) createWallet(c *gin.Context) {
	var cmd handlers.CreateWalletCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	wallet, err := s.walletHandler.HandleCreateWallet(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"aggregate_id": wallet.ID(),
		"version":      wallet.Version(),
	})
}

func (s *Server) updateBalance(c *gin.Context) {
	var cmd handlers.UpdateBalanceCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cmd.AggregateID = c.Param("id")

	wallet, err := s.walletHandler.HandleUpdateBalance(c.Request.Context(), cmd)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"aggregate_id":  wallet.ID(),
		"balance_cents": wallet.Balance.Cents(),
		"version":       wallet.Version(),
	})
}

func (s *Server) deleteWallet(c *gin.Context) {
	cmd := handlers.DeleteWalletCommand{AggregateID: c.Param("id")}

	if err := s.walletHandler.HandleDeleteWallet(c.Request.Context(), cmd); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) getWalletByUser(c *gin.Context) {
	wallet, err := s.queryHandler.GetWalletByUser(c.Request.Context(), c.Param("userID"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wallet)
}
