package user

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/elimuhq/elimu/core"
)

var (
	allRolesTag  = "allroles"
	allRolesText = "invalid roles"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"
)

func init() {
	// register validators
	_ = core.Validate.RegisterValidation(allRolesTag, allRolesValidation)
	core.RegisterCustomTranslation(core.Validate, core.Translator, allRolesTag, allRolesText)

	core.Validate.RegisterStructValidation(passwordStructValidation, NewUser{})
	core.Validate.RegisterStructValidation(passwordStructValidation, UpdateUser{})
	core.Validate.RegisterStructValidation(passwordStructValidation, ResetUserPassword{})
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(core.Validate, core.Translator, pwdNotAllNumTag, pwdNotAllNumText)
}

// allRolesValidation checks that all provided roles are known.
func allRolesValidation(fl validator.FieldLevel) bool {
	roles, ok := fl.Field().Interface().([]string)
	if !ok {
		return false
	}
	all := append([]string(nil), AllRoles...)
	sort.Strings(all)
	for _, role := range roles {
		i := sort.SearchStrings(all, role)
		if i >= len(all) || all[i] != role {
			return false
		}
	}
	return true
}

func passwordStructValidation(sl validator.StructLevel) {
	var pwd string
	switch obj := sl.Current().Interface().(type) {
	case NewUser:
		pwd = obj.Password
	case UpdateUser:
		pwd = obj.Password
	case ResetUserPassword:
		pwd = obj.Password
	}
	if pwd == "" {
		return
	}

	if len(pwd) < pwdMinLen {
		sl.ReportError(pwd, "password", "Password", pwdMinLenTag, "")
	}
	if strings.ContainsAny(pwd, " \t\r\n") {
		sl.ReportError(pwd, "password", "Password", pwdNoSpaceTag, "")
	}
	allNum := true
	for _, r := range pwd {
		if !unicode.IsDigit(r) {
			allNum = false
			break
		}
	}
	if allNum {
		sl.ReportError(pwd, "password", "Password", pwdNotAllNumTag, "")
	}
}
