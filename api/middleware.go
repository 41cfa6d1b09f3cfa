package api

import (
	"compress/gzip"
	"compress/zlib"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var errUnsupportedEncoding = errors.New("unsupported content encoding")

// bodyDecoders lists the request content codings the API accepts.
var bodyDecoders = map[string]func(io.Reader) (io.ReadCloser, error){
	"gzip":    func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) },
	"deflate": zlib.NewReader,
}

// DecodeRequestBody replaces a compressed request body with its decoded
// stream, capped at limit bytes once inflated. Bodies with a coding outside
// bodyDecoders get a 415, corrupt ones a 400.
func DecodeRequestBody(limit int64) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			coding, err := contentCoding(req.Header.Get(echo.HeaderContentEncoding))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnsupportedMediaType, err.Error())
			}
			if coding == "" {
				return next(c)
			}

			decoded, err := bodyDecoders[coding](req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid "+coding+" body")
			}
			body := io.ReadCloser(decodedBody{ReadCloser: decoded, raw: req.Body})
			if limit > 0 {
				body = http.MaxBytesReader(c.Response(), body, limit)
			}
			req.Body = body
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

// contentCoding returns the single coding named by a Content-Encoding header,
// or "" for identity. Stacked codings are not accepted.
func contentCoding(header string) (string, error) {
	coding := strings.ToLower(strings.TrimSpace(header))
	if coding == "" || coding == "identity" {
		return "", nil
	}
	if _, ok := bodyDecoders[coding]; !ok {
		return "", errUnsupportedEncoding
	}
	return coding, nil
}

// decodedBody closes the decoder and the raw body it reads from.
type decodedBody struct {
	io.ReadCloser
	raw io.Closer
}

func (d decodedBody) Close() error {
	return errors.Join(d.ReadCloser.Close(), d.raw.Close())
}
