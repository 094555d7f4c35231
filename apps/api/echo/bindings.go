package echoapi

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/esmeraldinha/backend/core"
)

const (
	orderingParam = "ordering"
	yearParam     = "year"
	fileField     = "file"
)

var uploadExtensions = map[string]bool{"png": true, "jpeg": true, "jpg": true, "pdf": true}

type Ordering struct {
	Orderings []core.DBOrdering
}

// Bind reads the comma-separated "ordering" query param, e.g. "-year,processed_at".
func (ord *Ordering) Bind(ctx echo.Context, allowed ...string) error {
	val := ctx.QueryParam(orderingParam)
	if strings.TrimSpace(val) == "" {
		return nil
	}

	for _, expr := range strings.Split(val, ",") {
		o, err := core.ParseOrdering(expr, allowed...)
		if err != nil {
			return core.NewValidationError(err, core.FieldError{
				Field: orderingParam,
				Error: fmt.Sprintf("%s must be one of: %s", orderingParam, strings.Join(allowed, ", ")),
			})
		}
		ord.Orderings = append(ord.Orderings, o)
	}
	return nil
}

// bindYear reads the :year path param; anything but a number is not found.
func bindYear(ctx echo.Context) (int, error) {
	year, err := strconv.Atoi(ctx.Param(yearParam))
	if err != nil {
		return 0, errHttpNotFound
	}
	return year, nil
}

type upload struct {
	Filename string
	Content  []byte
}

// bindUpload reads the "file" part of a multipart request, checking its size and extension.
func bindUpload(ctx echo.Context, maxSize int64) (upload, error) {
	fh, err := ctx.FormFile(fileField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
			return upload{}, core.NewValidationError(err, core.FieldError{Field: fileField, Error: "file is a required field"})
		}
		return upload{}, errors.Wrap(err, "reading multipart form")
	}

	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(fh.Filename)), ".")
	if !uploadExtensions[ext] {
		return upload{}, core.NewValidationError(errors.New("unsupported file extension"), core.FieldError{
			Field: fileField,
			Error: "file must be one of: png, jpeg, jpg, pdf",
		})
	}
	if fh.Size > maxSize {
		return upload{}, core.NewValidationError(errors.New("file too large"), core.FieldError{
			Field: fileField,
			Error: fmt.Sprintf("file must be at most %d MB", maxSize/(1024*1024)),
		})
	}

	f, err := fh.Open()
	if err != nil {
		return upload{}, errors.Wrap(err, "opening uploaded file")
	}
	defer f.Close()

	content, err := io.ReadAll(io.LimitReader(f, maxSize+1))
	if err != nil {
		return upload{}, errors.Wrap(err, "reading uploaded file")
	}
	return upload{Filename: fh.Filename, Content: content}, nil
}
