package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/secrets/internal/apperror"
)

// maxBodyBytes bounds every request body. The largest legitimate body is a
// secret of service.MaxSecretBytes plus JSON framing.
const maxBodyBytes = 64 << 10

// credentialsRequest is the body of POST /login and POST /register.
// HTML forms post the email as "username", so both names are accepted.
//
// Password length is not checked here. bcrypt's limit is 72 BYTES and the
// validator's max counts runes, so the one check lives in
// auth.PasswordService.Hash and reaches the client as a 400 on "password".
type credentialsRequest struct {
	Email    string `json:"email"    validate:"required,email,max=254"`
	Username string `json:"username" validate:"-"`
	Password string `json:"password" validate:"required"`
}

// secretRequest is the body of POST /submit.
type secretRequest struct {
	Secret string `json:"secret"`
}

// newValidator reports field names the way clients send them (the json
// tag), not the Go struct field name.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// isJSON reports whether the request body is JSON. Anything else is parsed
// as a form.
func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body")
	}
	return nil
}

func parseForm(w http.ResponseWriter, r *http.Request) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := r.ParseForm(); err != nil {
		return apperror.ValidationFailed("body", "invalid form body")
	}
	return nil
}

// decodeCredentials reads email and password from a JSON or form body.
func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentialsRequest, error) {
	var req credentialsRequest
	if isJSON(r) {
		if err := decodeJSON(w, r, &req); err != nil {
			return req, err
		}
	} else {
		if err := parseForm(w, r); err != nil {
			return req, err
		}
		req.Email = r.PostForm.Get("email")
		req.Username = r.PostForm.Get("username")
		req.Password = r.PostForm.Get("password")
	}

	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" {
		req.Email = strings.TrimSpace(req.Username)
	}
	return req, nil
}

func decodeSecret(w http.ResponseWriter, r *http.Request) (secretRequest, error) {
	var req secretRequest
	if isJSON(r) {
		err := decodeJSON(w, r, &req)
		return req, err
	}
	if err := parseForm(w, r); err != nil {
		return req, err
	}
	req.Secret = r.PostForm.Get("secret")
	return req, nil
}

// validationError turns the first validator failure into an apperror so
// writeError can send it as a 400.
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.ValidationFailed("body", err.Error())
	}

	fe := verrs[0]
	var msg string
	switch fe.Tag() {
	case "required":
		msg = fmt.Sprintf("%s is required", fe.Field())
	case "email":
		msg = fmt.Sprintf("%s must be a valid email address", fe.Field())
	case "max":
		msg = fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param())
	default:
		msg = fmt.Sprintf("%s is invalid", fe.Field())
	}
	return apperror.ValidationFailed(fe.Field(), msg)
}
