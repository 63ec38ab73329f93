package ginwvc

import (
	"net/http"

	wvc "github.com/Skryldev/webview-channel"
	"github.com/gin-gonic/gin"
)

// Handler mounts the WebSocket endpoint frames connect to.
func Handler(s *wvc.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		s.ServeHTTP(c.Writer, c.Request)
	}
}

type initDataRequest struct {
	Data map[string]any `json:"data" binding:"required"`
}

// InitDataHandler pushes the posted JSON object as init data to every
// connected frame, or to the frame named by the ":frame" path parameter.
func InitDataHandler(s *wvc.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req initDataRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		if id := c.Param("frame"); id != "" {
			ch, ok := s.Frames().ByID(wvc.FrameID(id))
			if !ok {
				c.JSON(http.StatusNotFound, gin.H{"error": "frame not found"})
				return
			}
			if err := ch.SendInitData(req.Data); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusOK, gin.H{"total": 1, "success": 1})
			return
		}

		report := s.Frames().BroadcastInitData(req.Data)
		c.JSON(http.StatusOK, gin.H{
			"total":   report.Total,
			"success": report.Success,
			"failed":  report.Failed,
		})
	}
}

// FramesHandler lists the connected frame ids.
func FramesHandler(s *wvc.Server) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"frames":   s.Frames().IDs(),
			"versions": s.Registry().Versions(),
		})
	}
}
