package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// handleHealth reports liveness and uptime
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(s.startedAt).String(),
	})
}

// handleSubjects serves the subject list with the same built-in
// fallback the socket op uses
func (s *Server) handleSubjects(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"subjects": s.manager.Subjects()})
}

// handleProfile serves (and auto-creates) a profile
func (s *Server) handleProfile(c *gin.Context) {
	userID := c.Param("userId")
	if userID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
		return
	}
	profile, err := s.manager.Profile(userID)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load profile"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": profile})
}

// handleRooms serves the open rooms index
func (s *Server) handleRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"rooms": s.manager.Rooms()})
}

// handleBattles serves the paginated match history
func (s *Server) handleBattles(c *gin.Context) {
	params := GetPaginationParams(c)

	total, err := s.db.CountBattles()
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to count battles"})
		return
	}
	params.Total = total

	battles, err := s.db.ListBattles(params.PageSize, params.CalculateOffset())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list battles"})
		return
	}
	SendPaginatedResponse(c, params, battles)
}

// handleLeaderboard serves the top profiles by rating
func (s *Server) handleLeaderboard(c *gin.Context) {
	limit := 10
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			if n > MaxPageSize {
				n = MaxPageSize
			}
			limit = n
		}
	}

	profiles, err := s.db.GetLeaderboard(limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load leaderboard"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": profiles})
}
