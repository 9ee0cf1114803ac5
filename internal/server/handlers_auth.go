package server

import (
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/mem"

	"github.com/nexalabs/nexa/internal/auth"
	"github.com/nexalabs/nexa/internal/errs"
)

type loginRequest struct {
	Email            string `json:"email"`
	Password         string `json:"password"`
	ClientIdentifier string `json:"client_identifier"`
	DeviceName       string `json:"device_name"`
	Platform         string `json:"platform"`
	Version          string `json:"version"`
}

// handleLogin authenticates and opens a session. With ?useCookies the token
// is additionally set as a cookie; ?useSessionCookies makes it a session
// cookie instead of one matching the token lifetime.
func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, errs.E(errs.InvalidArgument, "invalid login payload", err))
		return
	}

	result, err := s.Auth.Login(auth.LoginInput{
		Email:            req.Email,
		Password:         req.Password,
		ClientIdentifier: req.ClientIdentifier,
		DeviceName:       req.DeviceName,
		Platform:         req.Platform,
		Version:          req.Version,
	})
	if err != nil {
		fail(c, err)
		return
	}

	s.maybeSetCookie(c, result.Token, result.ExpiresAt)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleRefresh(c *gin.Context) {
	token := requestToken(c)
	if token == "" {
		fail(c, errs.E(errs.Unauthenticated, "missing bearer token"))
		return
	}
	result, err := s.Auth.Refresh(token)
	if err != nil {
		fail(c, err)
		return
	}
	s.maybeSetCookie(c, result.Token, result.ExpiresAt)
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleLogout(c *gin.Context) {
	token := requestToken(c)
	if token == "" {
		fail(c, errs.E(errs.Unauthenticated, "missing bearer token"))
		return
	}
	if err := s.Auth.Logout(token); err != nil {
		fail(c, err)
		return
	}
	c.SetCookie(auth.SessionCookie, "", -1, "/", s.Config.Auth.CookieDomain, s.Config.Auth.CookieSecure, true)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

// handleManageInfo reports the caller's identity and session.
func (s *Server) handleManageInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"user":    auth.CurrentUser(c),
		"session": auth.CurrentSession(c),
	})
}

// handleServerInfo reports server identity and host statistics.
func (s *Server) handleServerInfo(c *gin.Context) {
	info := gin.H{
		"name":       "nexa",
		"go_version": runtime.Version(),
		"num_cpu":    runtime.NumCPU(),
		"time":       time.Now().UTC(),
	}
	if hostInfo, err := host.Info(); err == nil {
		info["hostname"] = hostInfo.Hostname
		info["os"] = hostInfo.OS
		info["platform"] = hostInfo.Platform
		info["uptime_seconds"] = hostInfo.Uptime
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		info["memory_total"] = vm.Total
		info["memory_used_percent"] = vm.UsedPercent
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) maybeSetCookie(c *gin.Context, token string, expires time.Time) {
	if c.Query("useCookies") == "" {
		return
	}
	maxAge := int(time.Until(expires).Seconds())
	if c.Query("useSessionCookies") != "" {
		maxAge = 0
	}
	c.SetCookie(auth.SessionCookie, token, maxAge, "/", s.Config.Auth.CookieDomain, s.Config.Auth.CookieSecure, true)
}

func requestToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		return strings.TrimPrefix(header, "Bearer ")
	}
	if cookie, err := c.Cookie(auth.SessionCookie); err == nil {
		return cookie
	}
	return ""
}
