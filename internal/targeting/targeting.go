// Package targeting enriches a selection request's score context from the
// ambient HTTP signals: device class from the User-Agent and country from
// the client IP. Both land as taxonomy hints so placements can weight them
// like any other taxonomy term.
package targeting

import (
	"net"
	"net/http"
	"strings"

	"github.com/avct/uasurfer"

	"github.com/marketgrid/adengine/internal/geoip"
	"github.com/marketgrid/adengine/internal/models"
)

// DeviceType classifies the User-Agent into desktop/mobile/tablet/other.
func DeviceType(uaString string) string {
	if uaString == "" {
		return ""
	}
	u := uasurfer.Parse(uaString)
	switch u.DeviceType {
	case uasurfer.DeviceComputer:
		return "desktop"
	case uasurfer.DevicePhone:
		return "mobile"
	case uasurfer.DeviceTablet:
		return "tablet"
	default:
		return "other"
	}
}

// ClientIP extracts the originating client IP from the request, preferring
// X-Forwarded-For over RemoteAddr.
func ClientIP(r *http.Request) net.IP {
	ipStr := r.Header.Get("X-Forwarded-For")
	if ipStr != "" {
		// X-Forwarded-For can be comma-separated, take the first hop.
		if idx := strings.Index(ipStr, ","); idx != -1 {
			ipStr = strings.TrimSpace(ipStr[:idx])
		}
	} else {
		ipStr = r.RemoteAddr
		if host, _, err := net.SplitHostPort(ipStr); err == nil {
			ipStr = host
		}
	}
	return net.ParseIP(ipStr)
}

// Enrich resolves device and geo signals from the request and folds them
// into the context's taxonomy hints as "device:<type>" and "geo:<iso>"
// terms. Already-present hints are preserved.
func Enrich(ctx models.ScoreContext, r *http.Request, g *geoip.GeoIP) models.ScoreContext {
	if dt := DeviceType(r.Header.Get("User-Agent")); dt != "" {
		ctx.DeviceType = dt
		ctx.TaxonomyHints = appendUnique(ctx.TaxonomyHints, "device:"+dt)
	}
	if ip := ClientIP(r); ip != nil && g != nil {
		if country := g.Country(ip); country != "" {
			ctx.Country = country
			ctx.TaxonomyHints = appendUnique(ctx.TaxonomyHints, "geo:"+strings.ToLower(country))
		}
	}
	return ctx
}

func appendUnique(hints []string, hint string) []string {
	for _, h := range hints {
		if h == hint {
			return hints
		}
	}
	return append(hints, hint)
}
