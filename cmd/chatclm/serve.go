package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/samuelless/chatclm/internal/infer"
)

// predictRequest/predictResponse are the predictor-to-UI contract over
// HTTP: POST /predict {prompt, depth, width} -> {token} or 204 No Content
// when the driver signals "stop generating".
type predictRequest struct {
	Prompt string `json:"prompt"`
	Depth  int    `json:"depth"`
	Width  int    `json:"width"`
}

type predictResponse struct {
	Token string `json:"token"`
}

// runServe starts the prediction HTTP endpoint and blocks until ctx is
// canceled (Ctrl+C), then shuts down gracefully.
func runServe(ctx context.Context, addr string, driver *infer.Driver) error {
	e := echo.New()
	e.HideBanner = true

	e.POST("/predict", func(c echo.Context) error {
		var req predictRequest
		if err := c.Bind(&req); err != nil {
			return c.String(http.StatusBadRequest, "bad request")
		}
		out, ok := driver.PredictNext(req.Prompt, req.Depth, req.Width)
		if !ok {
			return c.NoContent(http.StatusNoContent)
		}
		return c.JSON(http.StatusOK, predictResponse{Token: out})
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(addr)
	}()

	select {
	case <-ctx.Done():
		fmt.Fprintln(os.Stderr, "\n[chatclm] shutting down…")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return e.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
