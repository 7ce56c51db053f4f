package httpapi

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/MagnunAVF/shortener-core/internal"
	"github.com/MagnunAVF/shortener-core/internal/shortener"
)

func (s *Server) handleRedirect(c *fiber.Ctx) error {
	target, err := s.svc.Redirect(c.UserContext(), c.Params("code"), requestMeta(c))
	if err != nil {
		return err
	}
	return c.Redirect(target, fiber.StatusFound)
}

func (s *Server) handleShorten(c *fiber.Ctx) error {
	var req shortener.AllocateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request")
	}
	req.OwnerID = owner(c)

	alloc, err := s.svc.Allocate(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(alloc)
}

type bulkRequest struct {
	URLs           []string `json:"urls"`
	ExpirationDays int      `json:"expiration_days"`
}

func (s *Server) handleBulkShorten(c *fiber.Ctx) error {
	var req bulkRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request")
	}
	if len(req.URLs) == 0 {
		return fiber.NewError(fiber.StatusBadRequest, "urls cannot be empty")
	}

	o := owner(c)
	items := make([]shortener.AllocateRequest, 0, len(req.URLs))
	for _, u := range req.URLs {
		items = append(items, shortener.AllocateRequest{LongURL: u, OwnerID: o, ExpiresInDays: req.ExpirationDays})
	}
	res, err := s.svc.BulkAllocate(c.UserContext(), items)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleResolve(c *fiber.Ctx) error {
	res, err := s.svc.Resolve(c.UserContext(), c.Params("code"))
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleListLinks(c *fiber.Ctx) error {
	o, err := requireOwner(c)
	if err != nil {
		return err
	}
	filter, page, err := parseListQuery(c)
	if err != nil {
		return err
	}
	res, err := s.svc.Query(c.UserContext(), o, filter, page)
	if err != nil {
		return err
	}
	return c.JSON(res)
}

func (s *Server) handleUpdateLink(c *fiber.Ctx) error {
	o, err := requireOwner(c)
	if err != nil {
		return err
	}
	var req shortener.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request")
	}
	rec, err := s.svc.Update(c.UserContext(), c.Params("code"), o, req)
	if err != nil {
		return err
	}
	return c.JSON(rec)
}

func (s *Server) handleDeleteLink(c *fiber.Ctx) error {
	o, err := requireOwner(c)
	if err != nil {
		return err
	}
	if err := s.svc.Remove(c.UserContext(), c.Params("code"), o); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleAnalytics(c *fiber.Ctx) error {
	o, err := requireOwner(c)
	if err != nil {
		return err
	}
	report, err := s.svc.Analytics(c.UserContext(), c.Params("code"), o, c.QueryInt("days", 0))
	if err != nil {
		return err
	}
	return c.JSON(report)
}

func (s *Server) handleQRCode(c *fiber.Ctx) error {
	code := c.Params("code")
	png, err := s.svc.QRCode(c.UserContext(), code, c.QueryInt("size", shortener.DefaultQRSize))
	if err != nil {
		return err
	}
	c.Set(fiber.HeaderContentType, "image/png")
	c.Set(fiber.HeaderContentDisposition, `inline; filename="qrcode-`+code+`.png"`)
	return c.Send(png)
}

func (s *Server) handleStats(c *fiber.Ctx) error {
	o, err := requireOwner(c)
	if err != nil {
		return err
	}
	stats, err := s.svc.Stats(c.UserContext(), o)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

var sortAliases = map[string]internal.SortField{
	"":               internal.SortCreatedAt,
	"createdAt":      internal.SortCreatedAt,
	"dateCreated":    internal.SortCreatedAt,
	"code":           internal.SortCode,
	"shortCode":      internal.SortCode,
	"clickCount":     internal.SortClickCount,
	"lastAccessedAt": internal.SortLastAccessedAt,
	"expiresAt":      internal.SortExpiresAt,
}

func parseListQuery(c *fiber.Ctx) (internal.Filter, internal.PageRequest, error) {
	var (
		f internal.Filter
		p internal.PageRequest
	)
	f.Text = c.Query("q")

	var err error
	if f.CreatedFrom, err = optionalTime(c, "created_from"); err != nil {
		return f, p, err
	}
	if f.CreatedTo, err = optionalTime(c, "created_to"); err != nil {
		return f, p, err
	}
	if f.MinClicks, err = optionalInt(c, "min_clicks"); err != nil {
		return f, p, err
	}
	if f.MaxClicks, err = optionalInt(c, "max_clicks"); err != nil {
		return f, p, err
	}

	switch status := internal.ExpirationState(strings.ToLower(c.Query("status"))); status {
	case internal.ExpirationAny, internal.ExpirationActive, internal.ExpirationExpired:
		f.Expiration = status
	default:
		return f, p, fiber.NewError(fiber.StatusBadRequest, "status must be active or expired")
	}

	sortBy, ok := sortAliases[c.Query("sort")]
	if !ok {
		return f, p, fiber.NewError(fiber.StatusBadRequest, "unsupported sort field")
	}
	p = internal.PageRequest{
		Page:   c.QueryInt("page", 1),
		Size:   c.QueryInt("size", internal.DefaultPageSize),
		SortBy: sortBy,
		Asc:    strings.EqualFold(c.Query("direction"), "asc"),
	}
	return f, p, nil
}

func optionalTime(c *fiber.Ctx, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+" must be an RFC3339 timestamp")
	}
	return &t, nil
}

func optionalInt(c *fiber.Ctx, key string) (*int64, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return nil, fiber.NewError(fiber.StatusBadRequest, key+" must be an integer")
	}
	return &n, nil
}
