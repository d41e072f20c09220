package echoapi

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	objstore "github.com/elimuhq/elimu/services/storage"
)

type objectsApi struct {
	store *objstore.Store
}

// registerObjectsAPI mounts the raw object surface outside /v1: access is
// authorized by the URL signature alone, not by a session. Keys contain
// slashes, hence the wildcard route.
func registerObjectsAPI(e *echo.Echo, store *objstore.Store) {
	api := objectsApi{store: store}
	e.PUT("/objects/*", api.put)
	e.GET("/objects/*", api.get)
}

func (api *objectsApi) put(ctx echo.Context) error {
	key, err := api.verify(ctx, http.MethodPut)
	if err != nil {
		return err
	}

	size, err := api.store.Put(key, ctx.Request().Body)
	if err != nil {
		return errors.Wrap(err, "storing object")
	}
	return ctx.JSON(http.StatusCreated, ObjectResponse{Key: key, Size: size})
}

func (api *objectsApi) get(ctx echo.Context) error {
	key, err := api.verify(ctx, http.MethodGet)
	if err != nil {
		return err
	}

	rc, err := api.store.Open(key)
	if err != nil {
		if errors.Cause(err) == objstore.ErrObjectNotFound {
			return errHttpNotFound
		}
		return errors.Wrap(err, "opening object")
	}
	defer rc.Close()

	return ctx.Stream(http.StatusOK, echo.MIMEOctetStream, rc)
}

// verify checks the exp/sig query pair against the store's signing key and
// returns the object key on success.
func (api *objectsApi) verify(ctx echo.Context, method string) (string, error) {
	key := ctx.Param("*")
	exp, err := strconv.ParseInt(ctx.QueryParam("exp"), 10, 64)
	if err != nil {
		return "", echo.NewHTTPError(http.StatusBadRequest, "invalid expiry")
	}

	if err := api.store.Verify(method, key, exp, ctx.QueryParam("sig")); err != nil {
		switch errors.Cause(err) {
		case objstore.ErrURLExpired:
			return "", echo.NewHTTPError(http.StatusForbidden, objstore.ErrURLExpired.Error())
		case objstore.ErrInvalidSignature, objstore.ErrInvalidKey:
			return "", echo.NewHTTPError(http.StatusForbidden, objstore.ErrInvalidSignature.Error())
		}
		return "", errors.Wrap(err, "verifying signed URL")
	}
	return key, nil
}

type ObjectResponse struct {
	Key  string `json:"key"`
	Size int64  `json:"size"`
}
