package envelope

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fiware/ocpi-core/model"
)

const TotalCountHeader = "X-Total-Count"
const LimitHeader = "X-Limit"
const LinkHeader = "Link"

type PageSettings struct {
	DefaultLimit int
	MaxLimit     int
}

var DefaultPageSettings = PageSettings{DefaultLimit: 50, MaxLimit: 1000}

/**
* Page describes the requested window of a collection. DateFrom is an exclusive, DateTo an inclusive bound.
 */
type Page struct {
	Offset   int
	Limit    int
	DateFrom *time.Time
	DateTo   *time.Time
}

/**
* ParsePage reads offset, limit, date_from and date_to. Every parameter is optional, limits above the maximum
* are clamped.
 */
func ParsePage(c *gin.Context, settings PageSettings) (page Page, httpErr model.HttpError) {
	page = Page{Limit: settings.DefaultLimit}

	if offsetParam := c.Query("offset"); offsetParam != "" {
		offset, err := strconv.Atoi(offsetParam)
		if err != nil || offset < 0 {
			return page, model.BadRequest(model.StatusInvalidParameters, fmt.Sprintf("offset: %q is not a non-negative integer", offsetParam))
		}
		page.Offset = offset
	}
	if limitParam := c.Query("limit"); limitParam != "" {
		limit, err := strconv.Atoi(limitParam)
		if err != nil || limit < 0 {
			return page, model.BadRequest(model.StatusInvalidParameters, fmt.Sprintf("limit: %q is not a non-negative integer", limitParam))
		}
		page.Limit = limit
	}
	if settings.MaxLimit > 0 && page.Limit > settings.MaxLimit {
		logger.Debugf("Requested limit %d exceeds the maximum, use %d.", page.Limit, settings.MaxLimit)
		page.Limit = settings.MaxLimit
	}

	if dateFromParam := c.Query("date_from"); dateFromParam != "" {
		dateFrom, err := model.ParseDateTime(dateFromParam)
		if err != nil {
			return page, model.BadRequest(model.StatusInvalidParameters, fmt.Sprintf("date_from: %v", err))
		}
		page.DateFrom = &dateFrom
	}
	if dateToParam := c.Query("date_to"); dateToParam != "" {
		dateTo, err := model.ParseDateTime(dateToParam)
		if err != nil {
			return page, model.BadRequest(model.StatusInvalidParameters, fmt.Sprintf("date_to: %v", err))
		}
		page.DateTo = &dateTo
	}
	if page.DateFrom != nil && page.DateTo != nil && page.DateTo.Before(*page.DateFrom) {
		return page, model.BadRequest(model.StatusInvalidParameters, "date_to: must not be before date_from")
	}
	return page, httpErr
}

// Includes applies the date filters of the page.
func (p Page) Includes(timestamp time.Time) bool {
	if p.DateFrom != nil && !timestamp.After(*p.DateFrom) {
		return false
	}
	if p.DateTo != nil && timestamp.After(*p.DateTo) {
		return false
	}
	return true
}

// Bounds returns the window [start, end) of a filtered collection with the given length.
func (p Page) Bounds(length int) (start int, end int) {
	start = p.Offset
	if start > length {
		start = length
	}
	end = length
	if p.Limit < length-start {
		end = start + p.Limit
	}
	return start, end
}

/**
* Collection responds with one page of a collection. Total is the number of items matching the date filters,
* a link to the next page is added if items remain.
 */
func Collection(c *gin.Context, page Page, items interface{}, total int) {
	c.Header(TotalCountHeader, strconv.Itoa(total))
	c.Header(LimitHeader, strconv.Itoa(page.Limit))
	// offset and limit are only bounded by the int range, compare without adding them
	if page.Limit > 0 && page.Offset < total && page.Limit < total-page.Offset {
		c.Header(LinkHeader, fmt.Sprintf("<%s>; rel=\"next\"", nextPageUrl(c.Request, page)))
	}
	Success(c, items)
}

func nextPageUrl(request *http.Request, page Page) string {
	next := url.URL{Scheme: "http", Host: request.Host, Path: request.URL.Path}
	if request.TLS != nil {
		next.Scheme = "https"
	}
	if forwardedProto := request.Header.Get("X-Forwarded-Proto"); forwardedProto != "" {
		next.Scheme = forwardedProto
	}
	query := request.URL.Query()
	query.Set("offset", strconv.Itoa(page.Offset+page.Limit))
	query.Set("limit", strconv.Itoa(page.Limit))
	next.RawQuery = query.Encode()
	return next.String()
}
