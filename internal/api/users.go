package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/alexcool68/ST-backend/internal/api/middleware"
	"github.com/alexcool68/ST-backend/internal/store"

	"github.com/gin-gonic/gin"
)

type updateUserRequest struct {
	FirstName *string `json:"firstName"`
	LastName  *string `json:"lastName"`
}

// handleListUsers 返回全部用户（不含密码散列）。
func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.users.List(c.Request.Context())
	if err != nil {
		s.logger.Error("list users failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "list users failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"results": len(users),
		"users":   users,
	})
}

// handleCurrentUser 返回访问者自己的资料。
func (s *Server) handleCurrentUser(c *gin.Context) {
	user, ok := middleware.CurrentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "error": "unauthorized"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "user": user})
}

// handleGetUser 按 ID 返回单个用户。
func (s *Server) handleGetUser(c *gin.Context) {
	user, err := s.users.FindByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "user not found"})
			return
		}
		s.logger.Error("get user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "get user failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "user": user})
}

// handleUpdateUser 更新用户的资料字段，未提供的字段保持不变。
func (s *Server) handleUpdateUser(c *gin.Context) {
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "error": err.Error()})
		return
	}

	user, err := s.users.UpdateProfile(c.Request.Context(), c.Param("id"), req.FirstName, req.LastName)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "user not found"})
			return
		}
		s.logger.Error("update user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "update user failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "user": user})
}

// handleDeleteUser 删除用户并级联清理其操作令牌。
func (s *Server) handleDeleteUser(c *gin.Context) {
	id := c.Param("id")
	if err := s.users.DeleteByID(c.Request.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"status": "error", "error": "user not found"})
			return
		}
		s.logger.Error("delete user failed", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{"status": "error", "error": "delete user failed"})
		return
	}

	s.logger.Info("user deleted", slog.String("user_id", id))
	c.JSON(http.StatusOK, gin.H{"status": "success", "message": "user deleted"})
}
