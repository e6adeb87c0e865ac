// Package status implements the Status Surface: read-only diagnostics plus
// the operator-triggered force-retire operation.
package status

import (
	"net/http"

	"github.com/winfantasy/draft-proxy-server/internal/v1/registry"
	"github.com/winfantasy/draft-proxy-server/internal/v1/types"
	"github.com/gin-gonic/gin"
)

// Surface serves the diagnostic HTTP endpoints described in spec.md §4.6/§6.
type Surface struct {
	registry *registry.Registry
}

// New constructs a Surface backed by reg.
func New(reg *registry.Registry) *Surface {
	return &Surface{registry: reg}
}

// RegisterRoutes wires the Surface's handlers onto r.
func (s *Surface) RegisterRoutes(r gin.IRoutes) {
	r.GET("/health", s.Health)
	r.GET("/rooms", s.ListRooms)
	r.GET("/rooms/:id/status", s.RoomStatus)
	r.DELETE("/rooms/:id", s.ForceRetire)
}

type healthResponse struct {
	Status       string   `json:"status"`
	ActiveRooms  int      `json:"activeRooms"`
	TotalClients int      `json:"totalClients"`
	Rooms        []string `json:"rooms"`
}

// Health implements GET /health.
func (s *Surface) Health(c *gin.Context) {
	rooms := s.registry.List()

	leagueIDs := make([]string, 0, len(rooms))
	totalClients := 0
	for _, r := range rooms {
		leagueIDs = append(leagueIDs, string(r.GetLeagueID()))
		totalClients += r.Status().ClientsCount
	}

	c.JSON(http.StatusOK, healthResponse{
		Status:       "ok",
		ActiveRooms:  len(rooms),
		TotalClients: totalClients,
		Rooms:        leagueIDs,
	})
}

type roomListResponse struct {
	TotalRooms int                `json:"totalRooms"`
	Rooms      []types.RoomStatus `json:"rooms"`
}

// ListRooms implements GET /rooms.
func (s *Surface) ListRooms(c *gin.Context) {
	rooms := s.registry.List()

	statuses := make([]types.RoomStatus, 0, len(rooms))
	for _, r := range rooms {
		statuses = append(statuses, r.Status())
	}

	c.JSON(http.StatusOK, roomListResponse{
		TotalRooms: len(statuses),
		Rooms:      statuses,
	})
}

// RoomStatus implements GET /rooms/{id}/status.
func (s *Surface) RoomStatus(c *gin.Context) {
	id := types.LeagueIdType(c.Param("id"))
	r, ok := s.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}
	c.JSON(http.StatusOK, r.Status())
}

// ForceRetire implements DELETE /rooms/{id}.
func (s *Surface) ForceRetire(c *gin.Context) {
	id := types.LeagueIdType(c.Param("id"))
	r, ok := s.registry.Get(id)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "room not found"})
		return
	}

	r.Shutdown(1001, "Room force cleanup")
	c.JSON(http.StatusOK, gin.H{"status": "retired"})
}
