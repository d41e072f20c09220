package echoapi

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/elimuhq/elimu/core"
	"github.com/elimuhq/elimu/core/session"
	"github.com/elimuhq/elimu/core/user"
)

var errNoPermsToSetRoles = "not enough rights to set these roles"

type userApi struct {
	svc user.Service
}

func registerUserAPI(g *echo.Group, authed echo.MiddlewareFunc, svc user.Service) {
	api := userApi{svc: svc}

	manage := requirePermissions(session.PermUsersManage)

	ug := g.Group("/users", authed)
	ug.POST("/register", api.create, manage)
	ug.GET("", api.query, manage)
	ug.DELETE("", api.destroyMultiple, manage)
	ug.GET("/roles", api.queryRoles, manage)

	// detail endpoints; self or manager
	dg := ug.Group("/:id", selfOrManagerMiddleware(api.svc))
	dg.GET("", api.retrieve)
	dg.PUT("", api.update)
	dg.DELETE("", api.destroy, manage)
}

// Handlers

func (api *userApi) create(ctx echo.Context) error {
	var data user.NewUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to NewUser")
	}
	if err := data.Validate(api.svc); err != nil {
		return err
	}

	// caller cannot set a role > their own max role
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(sess.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err := api.svc.Create(ctx.Request().Context(), data)
	if err != nil {
		return errors.Wrap(err, "creating user")
	}

	return ctx.JSON(http.StatusCreated, usr)
}

func (api *userApi) query(ctx echo.Context) error {
	filter := new(user.QueryFilter)
	if err := ctx.Bind(filter); err != nil {
		return errors.Wrap(err, "binding to QueryFilter")
	}
	filter.Clean()
	ordering := new(Ordering)
	ordering.Bind(ctx)

	users, err := api.svc.Query(ctx.Request().Context(), filter, ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying users")
	}
	if users == nil {
		users = []user.User{}
	}
	return ctx.JSON(http.StatusOK, users)
}

func (api *userApi) retrieve(ctx echo.Context) error {
	usr, err := contextObject(ctx)
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) update(ctx echo.Context) error {
	usr, err := contextObject(ctx)
	if err != nil {
		return err
	}

	var data user.UpdateUser
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to UpdateUser")
	}

	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	if !sess.HasAnyPermission(session.PermUsersManage) {
		// `IsActive`, `Roles`, `Username` and `Email` can only be changed by a manager
		if data.IsActive != nil || data.Roles != nil || data.Username != "" || data.Email != "" {
			return errHttpForbidden
		}
	}

	if err := data.Validate(usr, api.svc); err != nil {
		return err
	}

	// caller cannot set a role > their own max role
	if user.MaxRolePriority(data.Roles) > user.MaxRolePriority(sess.Roles) {
		return core.NewValidationError(nil, core.FieldError{Field: "roles", Error: errNoPermsToSetRoles})
	}

	usr, err = api.svc.Update(ctx.Request().Context(), usr.ID, data)
	if err != nil {
		return errors.Wrap(err, "updating user")
	}

	return ctx.JSON(http.StatusOK, usr)
}

func (api *userApi) destroy(ctx echo.Context) error {
	usr, err := contextObject(ctx)
	if err != nil {
		return err
	}

	// caller cannot delete themselves
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	if usr.ID == sess.UserID {
		return errHttpForbidden
	}

	if err := api.svc.Delete(ctx.Request().Context(), usr.ID); err != nil {
		return errors.Wrap(err, "deleting user")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) destroyMultiple(ctx echo.Context) error {
	var query DestroyMultipleRequest
	if err := ctx.Bind(&query); err != nil {
		return errors.Wrap(err, "binding to DestroyMultipleRequest")
	}
	if query.IDs == nil {
		return ctx.NoContent(http.StatusNoContent)
	}

	// caller cannot delete themselves
	sess, err := contextSession(ctx)
	if err != nil {
		return err
	}
	sort.Strings(query.IDs)
	if i := sort.SearchStrings(query.IDs, sess.UserID); i < len(query.IDs) {
		if match := query.IDs[i]; sess.UserID == match {
			return errHttpForbidden
		}
	}

	if err := api.svc.Delete(ctx.Request().Context(), query.IDs...); err != nil {
		return errors.Wrap(err, "deleting users")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *userApi) queryRoles(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, user.Roles)
}

// selfOrManagerMiddleware loads the target user into the context; any user can
// reach their own record, only a user manager can reach someone else's. A
// target the caller may not see is a 404, not a 403.
func selfOrManagerMiddleware(svc user.Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			sess, err := contextSession(ctx)
			if err != nil {
				return err
			}

			if ctx.Param("id") == sess.UserID || sess.HasAnyPermission(session.PermUsersManage) {
				if usr, err := svc.GetByID(ctx.Request().Context(), ctx.Param("id")); err == nil {
					ctx.Set(contextObjectKey, usr)
					return next(ctx)
				} else if errors.Cause(err) != user.ErrNotFound {
					return errors.Wrap(err, "finding user by ID")
				}
			}
			return errHttpNotFound
		}
	}
}

const contextObjectKey = "object"

func contextObject(ctx echo.Context) (user.User, error) {
	if usr, ok := ctx.Get(contextObjectKey).(user.User); ok {
		return usr, nil
	}
	return user.User{}, errors.New("user object not found in echo.Context")
}
