package webserver

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/shipfest/ship-votes/src/api/config"
	"github.com/shipfest/ship-votes/src/api/token"
)

func attachRoutes(r *gin.Engine, cfg config.Config, db *gorm.DB, rdb *redis.Client) {
	r.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:3000", "https://shipfest.dev"},
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", "X-Client-Fingerprint"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
	}))

	tokens := token.NewService(cfg.TokenSecret, cfg.TokenSecretPrevious, cfg.TokenTTL)
	votingH := NewVoting(db, rdb, cfg, tokens)
	shipH := NewShips(db)
	limiter := NewRateLimiter(30, time.Minute)

	v1 := r.Group("/v1")
	{
		secured := v1.Use(SessionMiddleware([]byte(cfg.SessionSecret)))
		secured.POST("/matchmaking/next", votingH.Next)
		secured.POST("/votes", RateLimitMiddleware(limiter), votingH.Submit)
		secured.POST("/ships", shipH.Create)
		secured.GET("/ships/:id", shipH.Get)
	}

	admin := v1.Group("/admin")
	admin.Use(SessionMiddleware([]byte(cfg.SessionSecret)), AdminMiddleware(db))
	{
		adminH := NewAdmin(db, rdb)
		admin.POST("/certification", adminH.Certify)
		admin.GET("/priority", adminH.ListPriority)
		admin.PUT("/priority/:projectID", adminH.AddPriority)
		admin.DELETE("/priority/:projectID", adminH.RemovePriority)
	}
}
