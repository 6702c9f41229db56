package webserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/matchmaker"
	"github.com/shipfest/ship-votes/src/api/token"
	"github.com/shipfest/ship-votes/src/api/types"
	"github.com/shipfest/ship-votes/src/api/votes"
)

type Voting struct {
	db        *gorm.DB
	mm        *matchmaker.Matchmaker
	guard     matchmaker.Guard
	recorder  *votes.Recorder
	tokens    *token.Service
	sanitizer *bluemonday.Policy
}

func NewVoting(db *gorm.DB, rdb *redis.Client, cfg config.Config, tokens *token.Service) *Voting {
	return &Voting{
		db:        db,
		mm:        matchmaker.New(db, rdb, cfg),
		guard:     matchmaker.NewGuard(db, cfg),
		recorder:  votes.NewRecorder(db, rdb, cfg),
		tokens:    tokens,
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// Next serves "show me something to vote on": matchmake, then hand back
// the event with a suggestion token bound to it.
func (h *Voting) Next(c *gin.Context) {
	vid := voterID(c)
	ev, err := h.mm.Next(c.Request.Context(), vid)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": "matchmaking failed"})
		return
	}
	if ev == nil {
		c.JSON(http.StatusOK, gin.H{"exhausted": true})
		return
	}
	tok, err := h.tokens.Issue(vid, ev.ID, clientFingerprint(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"err": "token issue failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"shipEvent": gin.H{
			"id":         ev.ID,
			"projectId":  ev.ProjectID,
			"title":      ev.Title,
			"hours":      ev.Hours,
			"votesCount": ev.VotesCount,
		},
		"suggestionToken": tok,
	})
}

func (h *Voting) Submit(c *gin.Context) {
	var req struct {
		SuggestionToken string `json:"suggestionToken" binding:"required"`
		Originality     int    `json:"originality" binding:"required,min=1,max=5"`
		Technical       int    `json:"technical" binding:"required,min=1,max=5"`
		Usability       int    `json:"usability" binding:"required,min=1,max=5"`
		Storytelling    int    `json:"storytelling" binding:"required,min=1,max=5"`
		Reason          string `json:"reason"`
		DemoClicked     bool   `json:"demoClicked"`
		RepoClicked     bool   `json:"repoClicked"`
		DecisionTimeMs  uint32 `json:"decisionTimeMs"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"err": err.Error()})
		return
	}

	vid := voterID(c)

	// The token's embedded ship event id is authoritative; a client-named
	// id is never trusted.
	shipID, err := h.tokens.Verify(req.SuggestionToken, vid, clientFingerprint(c))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"err": "invalid suggestion token", "retry": "rematch"})
		return
	}

	if err := h.guard.Check(c.Request.Context(), vid, shipID); err != nil {
		switch {
		case errors.Is(err, types.ErrStaleShipEvent):
			c.JSON(http.StatusConflict, gin.H{"err": "ship event no longer voteable", "retry": "rematch"})
		case errors.Is(err, types.ErrDuplicateVote):
			c.JSON(http.StatusConflict, gin.H{"err": "vote already recorded"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"err": "vote check failed"})
		}
		return
	}

	var ev types.ShipEvent
	if err := h.db.WithContext(c.Request.Context()).First(&ev, "id = ?", shipID).Error; err != nil {
		c.JSON(http.StatusConflict, gin.H{"err": "ship event no longer voteable", "retry": "rematch"})
		return
	}

	v := &types.Vote{
		VoterID:        vid,
		ShipEventID:    shipID,
		ProjectID:      ev.ProjectID,
		Originality:    req.Originality,
		Technical:      req.Technical,
		Usability:      req.Usability,
		Storytelling:   req.Storytelling,
		Reason:         h.sanitizer.Sanitize(req.Reason),
		DemoClicked:    req.DemoClicked,
		RepoClicked:    req.RepoClicked,
		DecisionTimeMs: req.DecisionTimeMs,
	}
	if err := h.recorder.Record(c.Request.Context(), v); err != nil {
		if errors.Is(err, types.ErrDuplicateVote) {
			c.JSON(http.StatusConflict, gin.H{"err": "vote already recorded"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"err": "could not save vote"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"voteId": v.ID})
}
