package user

import (
	"fmt"
	"strings"
	"unicode"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/admissions/core"
)

var (
	roleTag  = "role"
	roleText = "invalid role"

	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"
)

// InitValidators registers the user validators & their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(roleTag, roleValidation)
	core.RegisterCustomTranslation(validate, translator, roleTag, roleText)

	validate.RegisterStructValidation(userStructValidation, NewUser{}, ResetUserPassword{})
	core.RegisterCustomTranslation(validate, translator, pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(validate, translator, pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(validate, translator, pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(validate, translator, pwdAttrSimTag, pwdAttrSimText)
}

// Custom Validators

func roleValidation(fl validator.FieldLevel) bool {
	return IsValidRole(fl.Field().String())
}

// userStructValidation applies the password policy on NewUser and ResetUserPassword.
func userStructValidation(sl validator.StructLevel) {
	switch usr := sl.Current().Interface().(type) {
	case NewUser:
		if usr.Password != "" {
			validatePassword(usr.Password, "password", "Password", sl, usr.Name, usr.Email)
		}
	case ResetUserPassword:
		if usr.NewPassword != "" {
			validatePassword(usr.NewPassword, "newPassword", "NewPassword", sl, usr.Email)
		}
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - not all numeric
// - no user attrs similarity
func validatePassword(pwd, fld, structFld string, sl validator.StructLevel, attrs ...string) {
	reportErr := func(tag string) {
		sl.ReportError(pwd, fld, structFld, tag, "")
	}

	var digitCount int
	runes := []rune(pwd)

	// - minLen: 8
	if len(runes) < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range runes {
		// - no whitespace
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
	}

	// - not all numeric
	if digitCount == len(runes) {
		reportErr(pwdNotAllNumTag)
		return
	}

	// - no user attrs similarity
	lpwd := strings.ToLower(pwd)
	for _, attr := range attrs {
		if passwordSimilarity(lpwd, strings.ToLower(attr)) >= pwdMaxSim {
			reportErr(pwdAttrSimTag)
			return
		}
	}
}

func passwordSimilarity(pwd, usrAttr string) float64 {
	if usrAttr == "" {
		return 0
	}
	return difflib.NewMatcher(strings.Split(pwd, ""), strings.Split(usrAttr, "")).QuickRatio()
}
