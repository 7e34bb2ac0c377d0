package common

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	"github.com/cephasgm/safety-sync/internal/cache"
)

// ErrInvalidDomainParam wraps every rejection from DomainParam.
var ErrInvalidDomainParam = errors.New("invalid domain")

// DomainParam returns the decoded {domain} route parameter. Domain names
// double as cache key segments, so they follow cache key rules.
func DomainParam(r *http.Request) (string, error) {
	name, err := url.PathUnescape(chi.URLParam(r, "domain"))
	if err != nil {
		return "", fmt.Errorf("%w: bad escape sequence", ErrInvalidDomainParam)
	}
	if name == "" {
		return "", fmt.Errorf("%w: name is empty", ErrInvalidDomainParam)
	}
	if cache.ValidateKey(name) != nil {
		return "", fmt.Errorf("%w: %q has characters outside [A-Za-z0-9_.-]", ErrInvalidDomainParam, name)
	}
	return name, nil
}
