package handler

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/linksnip/linksnip/internal/model"
	"github.com/linksnip/linksnip/internal/service"
)

//go:embed static/index.html
var indexHTML []byte

// LinkService is the resolution and creation core the handlers sit on
type LinkService interface {
	Create(ctx context.Context, url string, ttlHours *int) (*model.Link, error)
	Resolve(ctx context.Context, code string) (string, error)
	Stats(ctx context.Context, code string) (*model.Link, error)
}

// ClickSink receives click events after a successful redirect
type ClickSink interface {
	Enqueue(code, ip, userAgent, referer string)
}

// LinkHandler handles HTTP requests for link operations
type LinkHandler struct {
	service LinkService
	clicks  ClickSink
	baseURL string
}

// NewLinkHandler creates a link handler
func NewLinkHandler(svc LinkService, clicks ClickSink, baseURL string) *LinkHandler {
	return &LinkHandler{service: svc, clicks: clicks, baseURL: baseURL}
}

// ShortenRequest is the body for POST /shorten
type ShortenRequest struct {
	URL      string `json:"url" binding:"required"`
	TTLHours *int   `json:"ttl_hours,omitempty"`
}

// ShortenResponse is the body returned by POST /shorten
type ShortenResponse struct {
	ShortURL  string    `json:"short_url"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ClickDetail is one entry of the stats click log
type ClickDetail struct {
	ClickedAt time.Time `json:"clicked_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// StatsResponse is the body returned by GET /stats/:code
type StatsResponse struct {
	Code       string        `json:"code"`
	URL        string        `json:"url"`
	CreatedAt  time.Time     `json:"created_at"`
	ExpiresAt  time.Time     `json:"expires_at"`
	ClickCount int64         `json:"click_count"`
	Clicks     []ClickDetail `json:"clicks"`
}

// Shorten handles POST /shorten
func (h *LinkHandler) Shorten(c *gin.Context) {
	var req ShortenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request: " + err.Error()})
		return
	}

	link, err := h.service.Create(c.Request.Context(), req.URL, req.TTLHours)
	if err != nil {
		if errors.Is(err, service.ErrInvalidURL) || errors.Is(err, service.ErrInvalidTTL) {
			c.JSON(http.StatusBadRequest, gin.H{"message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to create short URL"})
		return
	}

	c.JSON(http.StatusCreated, ShortenResponse{
		ShortURL:  fmt.Sprintf("%s/%s", h.baseURL, link.Code),
		Code:      link.Code,
		ExpiresAt: link.ExpiresAt,
	})
}

// Redirect handles GET /:code. The click is enqueued after the redirect
// decision so recording never delays or fails the response.
func (h *LinkHandler) Redirect(c *gin.Context) {
	code := c.Param("code")

	url, err := h.service.Resolve(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Link not found or expired"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to resolve link"})
		return
	}

	h.clicks.Enqueue(code, c.ClientIP(), c.Request.UserAgent(), c.Request.Referer())

	c.Redirect(http.StatusMovedPermanently, url)
}

// Stats handles GET /stats/:code
func (h *LinkHandler) Stats(c *gin.Context) {
	code := c.Param("code")

	link, err := h.service.Stats(c.Request.Context(), code)
	if err != nil {
		if errors.Is(err, service.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"message": "Link not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to load stats"})
		return
	}

	clicks := make([]ClickDetail, 0, len(link.Clicks))
	for _, click := range link.Clicks {
		clicks = append(clicks, ClickDetail{
			ClickedAt: click.ClickedAt,
			IP:        click.IP,
			UserAgent: click.UserAgent,
			Referer:   click.Referer,
		})
	}

	c.JSON(http.StatusOK, StatsResponse{
		Code:       link.Code,
		URL:        link.URL,
		CreatedAt:  link.CreatedAt,
		ExpiresAt:  link.ExpiresAt,
		ClickCount: link.ClickCount,
		Clicks:     clicks,
	})
}

// Health handles GET /health
func (h *LinkHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Index handles GET /, serving the embedded landing page
func (h *LinkHandler) Index(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", indexHTML)
}
