package trigger

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrMissingParameters is returned when a required field is absent or blank.
	ErrMissingParameters = errors.New("Missing required parameters")
	// ErrInvalidParameters is returned when a present field is malformed.
	ErrInvalidParameters = errors.New("Invalid parameters")
)

// Payload is the wire shape of a trigger as sent by the scheduler.
// Pre is a pointer so that an explicit false can be told apart from an
// absent field.
type Payload struct {
	ElectionID    string `json:"electionId" validate:"required"`
	CountryName   string `json:"countryName" validate:"required"`
	ElectionTypes string `json:"types" validate:"required"`
	Year          string `json:"year" validate:"required,numeric"`
	MMDD          string `json:"mmdd" validate:"required,mmdd"`
	Pre           *bool  `json:"pre" validate:"required"`
}

// Request is a validated trigger. Build it with Payload.Validate.
type Request struct {
	ElectionID    string `json:"electionId"`
	CountryName   string `json:"countryName"`
	ElectionTypes string `json:"types"`
	Year          string `json:"year"`
	MMDD          string `json:"mmdd"`
	IsPreEvent    bool   `json:"pre"`
}

// Side names the half of the election window the trigger covers.
func (r Request) Side() string {
	if r.IsPreEvent {
		return "pre"
	}
	return "post"
}

var validate = func() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("mmdd", func(fl validator.FieldLevel) bool {
		return ValidMMDD(fl.Field().String())
	})
	return v
}()

// Validate sanitizes the payload and checks every field for presence.
// For Pre that means "not absent": a false value is accepted.
func (p Payload) Validate() (Request, error) {
	p.ElectionID = Sanitize(p.ElectionID)
	p.CountryName = Sanitize(p.CountryName)
	p.ElectionTypes = Sanitize(p.ElectionTypes)
	p.Year = Sanitize(p.Year)
	p.MMDD = Sanitize(p.MMDD)

	if err := validate.Struct(p); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return Request{}, err
		}
		var invalid []string
		for _, fe := range verrs {
			if fe.Tag() == "required" {
				return Request{}, ErrMissingParameters
			}
			invalid = append(invalid, fieldName(fe.Field()))
		}
		return Request{}, fmt.Errorf("%w: %s", ErrInvalidParameters, strings.Join(invalid, ", "))
	}

	return Request{
		ElectionID:    p.ElectionID,
		CountryName:   p.CountryName,
		ElectionTypes: p.ElectionTypes,
		Year:          p.Year,
		MMDD:          p.MMDD,
		IsPreEvent:    *p.Pre,
	}, nil
}

// ValidMMDD reports whether s is four digits forming a month 01-12 and a
// day 01-31.
func ValidMMDD(s string) bool {
	if len(s) != 4 {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	month, _ := strconv.Atoi(s[:2])
	day, _ := strconv.Atoi(s[2:])
	return month >= 1 && month <= 12 && day >= 1 && day <= 31
}

// Sanitize removes null bytes and control characters and trims spaces.
func Sanitize(input string) string {
	var b strings.Builder
	for _, r := range input {
		if r >= 32 || r == '\t' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSpace(b.String())
}

func fieldName(goName string) string {
	switch goName {
	case "Year":
		return "year"
	case "MMDD":
		return "mmdd (expected MMDD)"
	}
	return goName
}
