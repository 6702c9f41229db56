package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/types"
)

type Ships struct{ db *gorm.DB }

func NewShips(db *gorm.DB) Ships { return Ships{db: db} }

// Create submits a milestone claim. It starts pending; the external
// certification gateway decides whether it ever enters the voting pool.
func (s Ships) Create(c *gin.Context) {
	var req struct {
		ProjectID uint64  `json:"projectId" binding:"required"`
		Title     string  `json:"title" binding:"required,max=255"`
		Hours     float64 `json:"hours" binding:"required,gt=0"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	vid := voterID(c)
	var project types.Project
	if err := s.db.First(&project, "id = ?", req.ProjectID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "project not found"})
		return
	}
	if project.OwnerID != vid {
		var member int64
		s.db.Model(&types.ProjectMember{}).
			Where("project_id = ? AND voter_id = ?", req.ProjectID, vid).
			Count(&member)
		if member == 0 {
			c.JSON(http.StatusForbidden, gin.H{"err": "not a member of this project"})
			return
		}
	}

	ev := types.ShipEvent{
		ProjectID:           req.ProjectID,
		Title:               req.Title,
		Hours:               req.Hours,
		CertificationStatus: types.CertPending,
	}
	if err := s.db.Create(&ev).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": ev.ID, "status": ev.CertificationStatus})
}

func (s Ships) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad ship event id"})
		return
	}
	var ev types.ShipEvent
	if err := s.db.First(&ev, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "ship event not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":         ev.ID,
		"projectId":  ev.ProjectID,
		"title":      ev.Title,
		"status":     ev.CertificationStatus,
		"votesCount": ev.VotesCount,
		"hours":      ev.Hours,
		"payout":     ev.Payout,
		"multiplier": ev.Multiplier,
		"paidAt":     ev.PaidAt,
	})
}
