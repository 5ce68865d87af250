package user

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"github.com/pmezard/go-difflib/difflib"

	"github.com/trezcool/darasa/core"
)

var (
	// password policy
	pwdMinLen     = 8
	pwdMinLenTag  = "pwdminlen"
	pwdMinLenText = fmt.Sprintf("password must contain at least %d characters", pwdMinLen)

	pwdNoSpaceTag  = "pwdnospace"
	pwdNoSpaceText = "password must not contain whitespace"

	pwdNotAllNumTag  = "pwdnotallnum"
	pwdNotAllNumText = "password cannot be entirely numeric"

	pwdComplexityTag  = "pwdcplx"
	pwdComplexityText = "password must contain at least 1 uppercase character, 1 lowercase character, 1 digit and 1 special character"
	specialRegex      = regexp.MustCompile("[^A-Za-z0-9]")

	pwdMaxSim      = .7
	pwdAttrSimTag  = "pwdtoosim"
	pwdAttrSimText = "password cannot be similar to user attributes"

	pwdNoCommonTag  = "pwdnocommon"
	pwdNoCommonText = "password is too common"

	// commonPasswords must stay sorted; binary-searched below.
	commonPasswords = []string{
		"102030", "111111", "121212", "123123", "123321", "1234",
		"12345", "123456", "1234567", "12345678", "123456789",
		"1234567890", "159753", "654321", "666666", "696969",
		"987654321", "abc123", "admin", "baseball", "charlie",
		"dragon", "football", "iloveyou", "letmein", "master",
		"monkey", "mustang", "p@ssw0rd", "passw0rd", "password",
		"password1", "password123", "qwerty", "qwerty123",
		"qwertyuiop", "shadow", "soccer", "sunshine", "superman",
		"trustno1", "welcome", "zaq12wsx",
	}
)

func init() {
	core.Validate.RegisterStructValidation(passwordStructValidation, RegisterForm{})
	core.Validate.RegisterStructValidation(passwordStructValidation, ResetPasswordForm{})
	core.Validate.RegisterStructValidation(passwordStructValidation, ChangePasswordForm{})

	core.RegisterCustomTranslation(pwdMinLenTag, pwdMinLenText)
	core.RegisterCustomTranslation(pwdNoSpaceTag, pwdNoSpaceText)
	core.RegisterCustomTranslation(pwdNotAllNumTag, pwdNotAllNumText)
	core.RegisterCustomTranslation(pwdComplexityTag, pwdComplexityText)
	core.RegisterCustomTranslation(pwdAttrSimTag, pwdAttrSimText)
	core.RegisterCustomTranslation(pwdNoCommonTag, pwdNoCommonText)
}

// passwordStructValidation applies the password policy to every form
// that sets or changes a password.
func passwordStructValidation(sl validator.StructLevel) {
	switch form := sl.Current().Interface().(type) {
	case RegisterForm:
		validatePassword(form.Password, "password", form.Name, form.Email, sl)
	case ResetPasswordForm:
		validatePassword(form.Password, "password", "", "", sl)
	case ChangePasswordForm:
		validatePassword(form.NewPassword, "new_password", "", "", sl)
	}
}

// validatePassword applies the password policy to provided password:
// - minLen: 8
// - no whitespace
// - no all numeric
// - complexity: 1 upper, 1 lower, 1 digit and 1 special
// - no user attrs similarity
// - no common password
func validatePassword(pwd, field, name, email string, sl validator.StructLevel) {
	if pwd == "" {
		return // `required` already reports it
	}
	reportErr := func(tag string) {
		sl.ReportError(pwd, field, "Password", tag, "")
	}

	var (
		digitCount                             int
		hasUpper, hasLower, hasDig, hasSpecial bool
	)

	pwdLen := len(pwd)
	if pwdLen < pwdMinLen {
		reportErr(pwdMinLenTag)
		return
	}
	for _, char := range []rune(pwd) {
		if unicode.IsSpace(char) {
			reportErr(pwdNoSpaceTag)
			return
		}
		if unicode.IsDigit(char) {
			digitCount++
		}
		if !hasUpper && unicode.IsUpper(char) {
			hasUpper = true
		}
		if !hasLower && unicode.IsLower(char) {
			hasLower = true
		}
	}

	if digitCount == pwdLen {
		reportErr(pwdNotAllNumTag)
		return
	}

	hasDig = digitCount > 0
	hasSpecial = specialRegex.MatchString(pwd)
	if !(hasUpper && hasLower && hasDig && hasSpecial) {
		reportErr(pwdComplexityTag)
		return
	}

	getRatio := func(pass, usrAttr string) float64 {
		if usrAttr == "" {
			return 0
		}
		return difflib.NewMatcher(strings.Split(pass, ""), strings.Split(usrAttr, "")).QuickRatio()
	}
	if getRatio(pwd, name) >= pwdMaxSim || getRatio(pwd, email) >= pwdMaxSim {
		reportErr(pwdAttrSimTag)
		return
	}

	lpwd := strings.ToLower(pwd)
	if idx := sort.SearchStrings(commonPasswords, lpwd); idx < len(commonPasswords) {
		if match := commonPasswords[idx]; lpwd == match {
			reportErr(pwdNoCommonTag)
			return
		}
	}
}
