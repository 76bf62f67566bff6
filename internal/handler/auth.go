package handler

import (
	"github.com/gin-gonic/gin"
	"hostpanel/internal/service"
)

type AuthHandler struct {
	Service *service.Service
}

type loginBody struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var body loginBody
	if !bind(c, &body) {
		return
	}
	sess, err := h.Service.Login(c.Request.Context(), body.Email, body.Password)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Logged in successfully", sess)
}

func (h *AuthHandler) Refresh(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	sess, err := h.Service.Refresh(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "Token refreshed successfully", sess)
}

func (h *AuthHandler) Me(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	u, err := h.Service.Me(c.Request.Context(), p)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "User fetched successfully", u)
}

type updateProfileBody struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
}

func (h *AuthHandler) UpdateMe(c *gin.Context) {
	p, found := principal(c)
	if !found {
		return
	}
	var body updateProfileBody
	if !bind(c, &body) {
		return
	}
	u, err := h.Service.UpdateProfile(c.Request.Context(), p, service.ProfileUpdate{Name: body.Name, Email: body.Email})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, "User updated successfully", u)
}
