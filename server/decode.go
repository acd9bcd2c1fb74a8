package server

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	enTranslations "github.com/go-playground/validator/v10/translations/en"
	"github.com/google/uuid"
	"github.com/leebenson/conform"

	errs "github.com/techagentng/spotchat/errors"
	"github.com/techagentng/spotchat/server/response"
)

var (
	translatorOnce sync.Once
	translator     ut.Translator
)

// englishTranslator registers english messages on gin's validator once and reports field
// names by their json tag.
func englishTranslator() ut.Translator {
	translatorOnce.Do(func() {
		english := en.New()
		uni := ut.New(english, english)
		translator, _ = uni.GetTranslator("en")

		validate, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		validate.RegisterTagNameFunc(func(field reflect.StructField) string {
			name := strings.SplitN(field.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
		if err := enTranslations.RegisterDefaultTranslations(validate, translator); err != nil {
			log.Printf("could not register validation messages: %v", err)
		}
	})
	return translator
}

// decode reads a json body into v, trims the fields tagged for it and validates the result.
// The returned messages are ready for the errors field of the response.
func decode(c *gin.Context, v interface{}) []string {
	trans := englishTranslator()

	if err := json.NewDecoder(c.Request.Body).Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return []string{"request body is required"}
		}
		return []string{"request body is not valid json"}
	}
	if err := conform.Strings(v); err != nil {
		return []string{err.Error()}
	}
	if err := binding.Validator.ValidateStruct(v); err != nil {
		return translateError(err, trans)
	}
	return nil
}

func translateError(err error, trans ut.Translator) []string {
	var validatorErrs validator.ValidationErrors
	if !errors.As(err, &validatorErrs) {
		return []string{err.Error()}
	}
	messages := make([]string, 0, len(validatorErrs))
	for _, e := range validatorErrs {
		messages = append(messages, e.Translate(trans))
	}
	return messages
}

// respondError writes err with the status its kind maps to. Foreign errors become a 500.
func respondError(c *gin.Context, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		e = errs.ErrInternalServerError
	}
	if e.Status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}
	response.JSON(c, e.Message, e.Status, nil, e)
}

// pathID parses a uuid path parameter, answering 400 when it is malformed.
func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		response.JSON(c, "", http.StatusBadRequest, nil, errs.Invalid("invalid "+name))
		return uuid.Nil, false
	}
	return id, true
}

// mustUserID returns the caller set by Authorize.
func mustUserID(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := currentUserID(c)
	if !ok {
		response.JSON(c, "", http.StatusUnauthorized, nil, errs.ErrUnauthorized)
		return uuid.Nil, false
	}
	return userID, true
}
