package validation

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

var xssPattern = regexp.MustCompile(`(?i)(<script|<iframe|javascript:|onerror=|onload=|onclick=)`)

type Config struct {
	MaxTitleLength      int
	MaxAnswerSize       int
	MaxAnswerCount      int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

// Middleware enforces payload hygiene on the write endpoints: content
// type, field sizes, and script injection in free-text fields. Semantic
// validation stays in the handlers.
func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxTitleLength == 0 {
		cfg.MaxTitleLength = 500
	}
	if cfg.MaxAnswerSize == 0 {
		cfg.MaxAnswerSize = 64 * 1024
	}
	if cfg.MaxAnswerCount == 0 {
		cfg.MaxAnswerCount = 200
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() == "POST" || c.Method() == "PUT" {
			contentType := c.Get("Content-Type")
			if contentType != "" {
				allowed := false
				for _, allowedType := range cfg.AllowedContentTypes {
					if strings.Contains(contentType, allowedType) {
						allowed = true
						break
					}
				}
				if !allowed {
					return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
						"error": "Unsupported content type",
					})
				}
			}
		}

		path := c.Path()

		if c.Method() == "POST" && strings.HasSuffix(path, "/surveys") {
			var req map[string]interface{}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			title, _ := req["title"].(string)
			if len(title) > cfg.MaxTitleLength {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Title exceeds maximum length",
				})
			}

			if containsXSS(title) {
				cfg.Logger.Warn("Potential XSS attempt",
					zap.String("ip", c.IP()),
					zap.String("path", path),
				)
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid title content",
				})
			}
		}

		if c.Method() == "POST" && strings.HasSuffix(path, "/responses") {
			var req struct {
				Answers map[string]json.RawMessage `json:"answers"`
			}
			if err := c.BodyParser(&req); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Invalid JSON format",
				})
			}

			if len(req.Answers) > cfg.MaxAnswerCount {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
					"error": "Too many answers",
				})
			}

			for questionID, raw := range req.Answers {
				if len(raw) > cfg.MaxAnswerSize {
					return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
						"error": "Answer exceeds maximum size",
					})
				}
				if containsXSS(string(raw)) {
					cfg.Logger.Warn("Potential XSS attempt in answer",
						zap.String("ip", c.IP()),
						zap.String("question_id", questionID),
					)
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Invalid answer content",
					})
				}
			}
		}

		return c.Next()
	}
}

func containsXSS(input string) bool {
	return xssPattern.MatchString(input)
}
