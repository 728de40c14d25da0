// Task HTTP handlers.
//
// This file exposes the polling endpoint for asynchronous ingestion tasks:
//   - GET /tasks/{id}
//
// Task records are transient: once a terminal task's TTL expires, polling
// returns 404 even though the indexed paragraphs remain stored.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetTask godoc
// @ID          getTask
// @Summary     Get ingestion task status
// @Description Returns the current state of an ingestion task: pending, running, succeeded (with created paragraph ids), or failed (with retry count and last error).
// @Tags        Tasks
// @Produce     json
//
// @Param       id  path  string  true  "Task ID (UUID)"  format(uuid) example(141add05-4415-4938-b5a1-17e0d3171aff)
//
// @Success     200  {object}  tasks.Task
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "Unknown or expired task"
// @Router      /tasks/{id} [get]
func (h *Handlers) GetTask(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "task id must be a UUID")
		return
	}

	task, found := h.runner.Status(id)
	if !found {
		fail(c, http.StatusNotFound, ErrCodeNotFound, "task not found")
		return
	}
	ok(c, http.StatusOK, task)
}
