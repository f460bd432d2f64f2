package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
)

type Envelope map[string]any

// login requests carry three short strings
const maxRequestBodySize = 8 << 10

// ReadJSON decodes a single JSON object from the request body. Unknown fields
// are ignored so relying parties may send the same body they use for other
// providers, matching how query and form parameters are read.
func ReadJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(v); err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.Is(err, io.EOF):
			return fmt.Errorf("body must not be empty: %w", err)
		case errors.As(err, &syntaxError):
			return fmt.Errorf("badly-formed JSON (at character %d): %w", syntaxError.Offset, err)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return fmt.Errorf("body contains badly-formed JSON: %w", err)
		case errors.As(err, &unmarshalTypeError):
			return fmt.Errorf("field %q must be a %s: %w", unmarshalTypeError.Field, unmarshalTypeError.Type, err)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d KB: %w", maxBytesError.Limit>>10, err)
		default:
			return fmt.Errorf("body contains invalid JSON: %w", err)
		}
	}

	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}

	return nil
}

// WriteJSON writes data as compact JSON. Responses carry login state, so they are never cached.
func WriteJSON(w http.ResponseWriter, status int, data Envelope, headers http.Header) error {
	js, err := json.Marshal(data)
	if err != nil {
		return err
	}
	js = append(js, '\n')

	maps.Copy(w.Header(), headers)
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	_, err = w.Write(js)
	return err
}

func Success(w http.ResponseWriter, r *http.Request, status int, message Envelope) {
	if message == nil {
		message = make(Envelope, 1)
	}
	message["success"] = true

	if err := WriteJSON(w, status, message, nil); err != nil {
		slog.ErrorContext(r.Context(), "failed to write success response", "status", status, "error", err)
	}
}
