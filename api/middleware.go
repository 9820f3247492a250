package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"
)

var errBodyTooLarge = errors.New("Request body too large.")

// BodyMiddleware caps request bodies at limit bytes after inflating
// gzip-encoded ones, so a small compressed payload cannot expand past the
// decoder's budget. Reads beyond the cap fail with errBodyTooLarge.
func BodyMiddleware(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.ContentLength > limit {
				return writeError(c, nil, errBodyTooLarge)
			}
			if !isGzip(req.Header.Get(echo.HeaderContentEncoding)) {
				req.Body = &cappedBody{r: req.Body, left: limit, closers: []io.Closer{req.Body}}
				return next(c)
			}
			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			req.Body = &cappedBody{r: gr, left: limit, closers: []io.Closer{gr, req.Body}}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func isGzip(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type cappedBody struct {
	r       io.Reader
	left    int64
	closers []io.Closer
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.left <= 0 {
		// one byte past the cap distinguishes "exactly at" from "over"
		var extra [1]byte
		n, err := io.ReadFull(b.r, extra[:])
		if n > 0 {
			return 0, errBodyTooLarge
		}
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		return 0, err
	}
	if int64(len(p)) > b.left {
		p = p[:b.left]
	}
	n, err := b.r.Read(p)
	b.left -= int64(n)
	return n, err
}

func (b *cappedBody) Close() error {
	var errs []error
	for _, c := range b.closers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// ErrorHandler renders echo errors (unknown routes, bad methods, middleware
// rejections) in the same {"detail": ...} shape as handler errors.
func ErrorHandler(logger *log.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		status := http.StatusInternalServerError
		detail := "Internal server error."
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			if msg, ok := he.Message.(string); ok {
				detail = msg
			} else {
				detail = http.StatusText(status)
			}
		} else if logger != nil {
			logger.WithError(err).WithField("path", c.Path()).Error("unhandled error")
		}
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(status)
			return
		}
		_ = c.JSON(status, errorResponse{Detail: detail})
	}
}
