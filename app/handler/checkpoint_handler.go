package handler

import (
	"net/http"

	"ckptbench/internal/coordinator"
	"ckptbench/internal/model"
	"ckptbench/pkg/logger"

	"github.com/gin-gonic/gin"
)

// CheckpointHandler exposes the control rank's checkpoint operations
type CheckpointHandler struct {
	coordinator *coordinator.Coordinator
}

// NewCheckpointHandler creates checkpoint handler
func NewCheckpointHandler(coord *coordinator.Coordinator) *CheckpointHandler {
	return &CheckpointHandler{coordinator: coord}
}

// Checkpoint triggers one synchronized checkpoint
// @Summary Run one checkpoint
// @Description Broadcasts the step to every rank, checkpoints in lockstep and returns the measured result
// @Tags checkpoint
// @Accept json
// @Produce json
// @Param request body model.CheckpointRequest true "Checkpoint request"
// @Success 200 {object} model.CheckpointResult
// @Router /checkpoint [post]
func (h *CheckpointHandler) Checkpoint(c *gin.Context) {
	var req model.CheckpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.coordinator.DoCheckpoint(c.Request.Context(), req)
	if err != nil {
		logger.Errorf("checkpoint pass=%d step=%d failed: %v", req.PassNum, req.Step, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Summary reports statistics over the checkpoints taken so far
// @Summary Checkpoint time statistics
// @Produce json
// @Success 200 {object} coordinator.TimesSummary
// @Router /summary [get]
func (h *CheckpointHandler) Summary(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.Summary())
}

// Profiles lists the available workload profiles
// @Summary List workload profiles
// @Produce json
// @Success 200 {object} map[string][]string
// @Router /profiles [get]
func (h *CheckpointHandler) Profiles(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"profiles": model.ProfileNames()})
}

// Health reports the serving rank's identity and workload
func (h *CheckpointHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"rank":   h.coordinator.Rank(),
		"size":   h.coordinator.Size(),
		"model":  h.coordinator.Profile().Name,
	})
}
