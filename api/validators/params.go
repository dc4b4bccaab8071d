package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
)

func UUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw, err := StringParam(r, name, 0)
	if err != nil {
		return uuid.Nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+name).
			WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// StringParam returns the trimmed chi URL parameter, cut to maxLen bytes
// when maxLen is positive.
func StringParam(r *http.Request, name string, maxLen int) (string, error) {
	value := strings.TrimSpace(chi.URLParam(r, name))
	if maxLen > 0 && len(value) > maxLen {
		value = value[:maxLen]
	}
	if value == "" {
		return "", pkgerrors.New(pkgerrors.CodeValidation, name+" is required")
	}
	return value, nil
}
