package handlers

import (
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Zuoqiu-Yingyi/siyuan-bot/internal/pgp"
)

// KeyHandler serves the bot's armored PGP public key so users can
// encrypt settings before sending them.
type KeyHandler struct {
	logger  *slog.Logger
	gateway *pgp.Gateway
}

func NewKeyHandler(log *slog.Logger, gateway *pgp.Gateway) *KeyHandler {
	return &KeyHandler{
		logger:  log.With(slog.String("handler", "key")),
		gateway: gateway,
	}
}

func (h *KeyHandler) Register(e *echo.Echo) {
	e.GET("/api/key", h.Key)
}

func (h *KeyHandler) Key(c echo.Context) error {
	key, err := h.gateway.PublicKey()
	if err != nil {
		h.logger.Error("read public key failed", slog.Any("error", err))
		return c.JSON(http.StatusInternalServerError, map[string]any{
			"code": -1,
			"msg":  "public key unavailable",
			"data": nil,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"code": 0,
		"msg":  "",
		"data": map[string]string{
			"key": key,
		},
	})
}
