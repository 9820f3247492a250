package api

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"github.com/lnbits/scrum/domain"
)

// MaxBodySize is the largest JSON body, after inflation, a handler accepts.
const MaxBodySize = 64 << 10

var (
	boardFilters = []string{"name", "description", "public_assigning"}
	taskFilters  = []string{"task", "assignee", "stage", "notes", "complete", "paid"}
)

func badRequest(msg string) error {
	return &domain.Error{Kind: domain.ErrValidation, Message: msg}
}

// decodeBody strictly decodes a JSON request body of at most MaxBodySize
// bytes into out.
func decodeBody(c echo.Context, out any) error {
	data, err := io.ReadAll(io.LimitReader(c.Request().Body, MaxBodySize+1))
	if err != nil {
		if errors.Is(err, errBodyTooLarge) {
			return err
		}
		return &domain.Error{Kind: domain.ErrValidation, Message: "Invalid request body.", Err: err}
	}
	if len(data) > MaxBodySize {
		return errBodyTooLarge
	}
	dec := sonic.ConfigStd.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return &domain.Error{Kind: domain.ErrValidation, Message: "Invalid request body.", Err: err}
	}
	return nil
}

// parseQuery reads search, sortby, direction, limit, offset and equality
// filters on the given fields from the query string.
func parseQuery(c echo.Context, filterable []string) (domain.Query, error) {
	q := domain.Query{
		Search: strings.TrimSpace(c.QueryParam("search")),
		SortBy: strings.TrimSpace(c.QueryParam("sortby")),
	}
	switch strings.ToLower(strings.TrimSpace(c.QueryParam("direction"))) {
	case "", "asc":
	case "desc":
		q.Desc = true
	default:
		return domain.Query{}, badRequest("Invalid direction, expected asc or desc.")
	}
	var err error
	if q.Limit, err = nonNegative(c.QueryParam("limit"), "limit"); err != nil {
		return domain.Query{}, err
	}
	if q.Offset, err = nonNegative(c.QueryParam("offset"), "offset"); err != nil {
		return domain.Query{}, err
	}
	params := c.QueryParams()
	for _, field := range filterable {
		if v := params.Get(field); v != "" {
			if q.Where == nil {
				q.Where = make(map[string]string)
			}
			q.Where[field] = v
		}
	}
	return q, nil
}

func nonNegative(raw, name string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, badRequest("Invalid " + name + ".")
	}
	return n, nil
}

func parseBool(raw string) (bool, error) {
	if strings.TrimSpace(raw) == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, badRequest("Invalid boolean " + strconv.Quote(raw) + ".")
	}
	return b, nil
}
