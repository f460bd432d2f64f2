package httpx

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/ARUMANDESU/validation"
	"github.com/BurntSushi/toml"
	"github.com/nicksnyder/go-i18n/v2/i18n"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	"gitlab.com/ucmsv2/idbroker/pkg/errorx"
	"gitlab.com/ucmsv2/idbroker/pkg/otelx"
)

var supportedLanguages = []language.Tag{
	language.English,
	language.Russian,
	language.Kazakh,
}

type ErrorHandler struct {
	bundle     *i18n.Bundle
	matcher    language.Matcher
	localizers map[language.Tag]*i18n.Localizer
}

// NewErrorHandler loads locales/<lang>.toml from fsys for every supported language.
func NewErrorHandler(fsys fs.FS) (*ErrorHandler, error) {
	bundle := i18n.NewBundle(language.English)
	bundle.RegisterUnmarshalFunc("toml", toml.Unmarshal)

	localizers := make(map[language.Tag]*i18n.Localizer, len(supportedLanguages))
	for _, tag := range supportedLanguages {
		path := fmt.Sprintf("locales/%s.toml", tag)
		if _, err := bundle.LoadMessageFileFS(fsys, path); err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", path, err)
		}
		localizers[tag] = i18n.NewLocalizer(bundle, tag.String())
	}

	return &ErrorHandler{
		bundle:     bundle,
		matcher:    language.NewMatcher(supportedLanguages),
		localizers: localizers,
	}, nil
}

// Localizer picks the best supported language for the request's Accept-Language header.
func (h *ErrorHandler) Localizer(r *http.Request) *i18n.Localizer {
	tags, _, _ := language.ParseAcceptLanguage(r.Header.Get("Accept-Language"))
	_, idx, _ := h.matcher.Match(tags...)
	return h.localizers[supportedLanguages[idx]]
}

// Localize renders messageID in the request's language, falling back to the id itself.
func (h *ErrorHandler) Localize(r *http.Request, messageID string, data map[string]any) string {
	msg, err := h.Localizer(r).Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil || msg == "" {
		return messageID
	}
	return msg
}

// HandleError records err on span and writes the localized error response.
func (h *ErrorHandler) HandleError(w http.ResponseWriter, r *http.Request, span trace.Span, err error, msg string) {
	if span != nil {
		otelx.RecordSpanError(span, err, msg)
	}
	localizer := h.Localizer(r)

	var appErr *errorx.I18nError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatusCode()
		logError(r, status, err)
		WriteError(w, r,
			appErr.Code,
			appErr.Localize(localizer),
			status,
		)
		return
	}

	var valErrs validation.Errors
	if errors.As(err, &valErrs) {
		logError(r, http.StatusBadRequest, err)
		fields := make([]string, 0, len(valErrs))
		for field := range valErrs {
			fields = append(fields, field)
		}
		slices.Sort(fields)

		var msg strings.Builder
		for _, field := range fields {
			fmt.Fprintf(&msg, "%s: %s; ", field, localizeValidation(localizer, valErrs[field]))
		}
		WriteError(w, r,
			errorx.CodeValidationFailed,
			strings.TrimSuffix(msg.String(), " "),
			http.StatusBadRequest,
		)
		return
	}

	var valErr validation.Error
	if errors.As(err, &valErr) {
		logError(r, http.StatusBadRequest, err)
		WriteError(w, r,
			errorx.CodeValidationFailed,
			localizeValidation(localizer, valErr),
			http.StatusBadRequest,
		)
		return
	}

	internalErr := errorx.NewInternalError().WithCause(err)
	logError(r, http.StatusInternalServerError, err)
	WriteError(w, r,
		internalErr.Code,
		internalErr.Localize(localizer),
		internalErr.HTTPStatusCode(),
	)
}

func localizeValidation(localizer *i18n.Localizer, err error) string {
	var valErr validation.Error
	if !errors.As(err, &valErr) {
		return err.Error()
	}

	msg, lerr := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    valErr.Code(),
		TemplateData: valErr.Params(),
	})
	if lerr != nil || msg == "" {
		return valErr.Error()
	}
	return msg
}

func logError(r *http.Request, status int, err error) {
	level := slog.LevelInfo
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "HTTP error response", slog.Int("status", status), slog.Any("error", err))
}

func BadRequest(w http.ResponseWriter, r *http.Request, message string) {
	slog.InfoContext(r.Context(), "Bad request", "message", message)
	WriteError(w, r,
		errorx.CodeInvalid,
		message,
		http.StatusBadRequest,
	)
}

func WriteError(w http.ResponseWriter, r *http.Request,
	code errorx.Code,
	message string,
	status int,
) {
	response := Envelope{
		"code":    code,
		"message": message,
		"success": false,
	}

	err := WriteJSON(w, status, response, nil)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to write error response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}
