package handler

import (
	"github.com/gin-gonic/gin"
	"hostpanel/internal/service"
)

// UserHandler serves the admin user routes.
type UserHandler struct {
	Service *service.Service
}

type createUserBody struct {
	Name      string `json:"name" binding:"required"`
	Email     string `json:"email" binding:"required"`
	Password  string `json:"password" binding:"required"`
	Admin     bool   `json:"admin"`
	Superuser bool   `json:"superuser"`
}

func (h *UserHandler) List(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	users, err := h.Service.ListUsers(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Users fetched successfully", users)
}

func (h *UserHandler) Create(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body createUserBody
	if !bind(c, &body) {
		return
	}
	u, err := h.Service.CreateUser(c.Request.Context(), p, service.CreateUserInput{
		Name:      body.Name,
		Email:     body.Email,
		Password:  body.Password,
		Admin:     body.Admin,
		Superuser: body.Superuser,
	})
	if err != nil {
		fail(c, err)
		return
	}
	created(c, "User created successfully", u)
}

func (h *UserHandler) Delete(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "userId")
	if !valid {
		return
	}
	if err := h.Service.DeleteUser(c.Request.Context(), p, id); err != nil {
		fail(c, err)
		return
	}
	ok(c, "User deleted successfully", nil)
}

func (h *UserHandler) Suspend(c *gin.Context)   { h.setSuspended(c, true) }
func (h *UserHandler) Unsuspend(c *gin.Context) { h.setSuspended(c, false) }

func (h *UserHandler) setSuspended(c *gin.Context, suspended bool) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "userId")
	if !valid {
		return
	}
	if err := h.Service.SetUserSuspended(c.Request.Context(), p, id, suspended); err != nil {
		fail(c, err)
		return
	}
	msg := "User unsuspended successfully"
	if suspended {
		msg = "User suspended successfully"
	}
	ok(c, msg, nil)
}

type editUserBody struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Admin *bool   `json:"admin"`
}

func (h *UserHandler) Edit(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	id, valid := idParam(c, "userId")
	if !valid {
		return
	}
	var body editUserBody
	if !bind(c, &body) {
		return
	}
	u, err := h.Service.EditUser(c.Request.Context(), p, id, service.UserEdit{Name: body.Name, Email: body.Email, Admin: body.Admin})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "User updated successfully", u)
}
