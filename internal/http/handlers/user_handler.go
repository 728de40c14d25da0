// User HTTP handlers.
//
// This file exposes REST endpoints for user accounts:
//   - POST /users       (register)
//   - GET  /users/{id}  (fetch)
//
// Accounts gate paragraph ownership and daily digest delivery; there is no
// authentication layer here, identity arrives via the X-User-ID demo header.
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/go-paragraph-backend/internal/repo"
	"github.com/tbourn/go-paragraph-backend/internal/services"
)

// CreateUserRequest is the JSON payload for registering a user.
type CreateUserRequest struct {
	// Name is the display name used in digest emails.
	Name string `json:"name" binding:"required,min=1,max=255" example:"Ada Lovelace"`
	// Email receives the daily writing digest; must be unique.
	Email string `json:"email" binding:"required,email" example:"ada@example.com"`
}

// CreateUser godoc
// @ID          createUser
// @Summary     Register a user
// @Description Creates an active user account. Email addresses must be unique.
// @Tags        Users
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.CreateUserRequest  true  "User payload"
//
// @Success     201  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     409  {object}  handlers.ErrorResponse  "Email already registered"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users [post]
func (h *Handlers) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and valid email required")
		return
	}

	u, err := h.userSvc.Create(c.Request.Context(), req.Name, req.Email)
	if err != nil {
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			fail(c, http.StatusConflict, ErrCodeConflict, "email already registered")
		case errors.Is(err, services.ErrEmptyInput):
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "name and email must not be blank")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeCreateFailed, err.Error())
		}
		return
	}
	ok(c, http.StatusCreated, u)
}

// GetUser godoc
// @ID          getUser
// @Summary     Fetch a user
// @Description Returns the user account by id.
// @Tags        Users
// @Produce     json
//
// @Param       id  path  string  true  "User ID (UUID)"  format(uuid)
//
// @Success     200  {object}  domain.User
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     404  {object}  handlers.ErrorResponse  "User not found"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /users/{id} [get]
func (h *Handlers) GetUser(c *gin.Context) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "user id must be a UUID")
		return
	}

	u, err := h.userSvc.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, services.ErrUserNotFound) {
			fail(c, http.StatusNotFound, ErrCodeNotFound, "user not found")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, u)
}
