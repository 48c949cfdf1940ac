package coordinator

import (
	"context"
	"errors"

	"github.com/kjstillabower/travel-discovery-service/internal/models"
)

// ErrLocationUnavailable is returned by a Locator that cannot supply a position.
var ErrLocationUnavailable = errors.New("device location unavailable")

// Locator supplies the device position once, at Init.
type Locator interface {
	Locate(ctx context.Context) (models.Coordinates, error)
}

// LocatorFunc adapts a function to Locator.
type LocatorFunc func(ctx context.Context) (models.Coordinates, error)

// Locate calls f.
func (f LocatorFunc) Locate(ctx context.Context) (models.Coordinates, error) { return f(ctx) }

// FixedLocator reports a known position, e.g. one sent by the browser.
func FixedLocator(c models.Coordinates) Locator {
	return LocatorFunc(func(context.Context) (models.Coordinates, error) { return c, nil })
}

// DeniedLocator always fails, as when the user refuses geolocation.
var DeniedLocator Locator = LocatorFunc(func(context.Context) (models.Coordinates, error) {
	return models.Coordinates{}, ErrLocationUnavailable
})
