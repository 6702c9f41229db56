package webserver

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/data"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/logging"
)

type Admin struct {
	db  *gorm.DB
	rdb *redis.Client
}

func NewAdmin(db *gorm.DB, rdb *redis.Client) Admin {
	return Admin{db: db, rdb: rdb}
}

// Certify records a certification transition delivered by the external
// gateway. Events with an applied payout are terminal here.
func (a Admin) Certify(c *gin.Context) {
	var req struct {
		ShipEventID uint64 `json:"shipEventId" binding:"required"`
		Status      string `json:"status" binding:"required,oneof=approved rejected"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	var ev types.ShipEvent
	if err := a.db.First(&ev, "id = ?", req.ShipEventID).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "ship event not found"})
		return
	}
	if ev.Payout != nil {
		c.JSON(http.StatusConflict, gin.H{"err": "payout already applied"})
		return
	}

	logging.Log.Infof("admin %d: ship event %d -> %s", voterID(c), req.ShipEventID, req.Status)

	if err := a.db.Model(&types.ShipEvent{}).Where("id = ?", req.ShipEventID).
		Update("certification_status", req.Status).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a Admin) ListPriority(c *gin.Context) {
	set, err := data.PriorityProjects(c.Request.Context(), a.rdb)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	ids := make([]uint64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	c.JSON(http.StatusOK, gin.H{"projectIds": ids})
}

func (a Admin) AddPriority(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("projectID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad project id"})
		return
	}
	var project types.Project
	if err := a.db.First(&project, "id = ?", id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"err": "project not found"})
		return
	}
	if err := data.AddPriorityProject(c.Request.Context(), a.rdb, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	logging.Log.Infof("admin %d: project %d added to priority tier", voterID(c), id)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a Admin) RemovePriority(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("projectID"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": "bad project id"})
		return
	}
	if err := data.RemovePriorityProject(c.Request.Context(), a.rdb, id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func AdminMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var voter types.Voter
		if err := db.First(&voter, "id = ?", voterID(c)).Error; err != nil || !voter.Admin {
			c.JSON(http.StatusForbidden, gin.H{"err": "admin access required"})
			c.Abort()
			return
		}
		c.Next()
	}
}
