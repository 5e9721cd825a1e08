package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	pkgerrors "github.com/devDhrubo/MXB2026-Dhaka-Mind-Havoc-EduSense-AI/internal/pkg/errors"
)

const maxBodyBytes = 4 << 20

var validate = validator.New()

// bindJSON decodes and validates the request body into dst, a struct
// pointer. Failures wrap ErrInvalidArgument.
func bindJSON(c *gin.Context, dst any) error {
	if err := decodeJSON(c, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		return invalid("body", err)
	}
	return nil
}

func decodeJSON(c *gin.Context, dst any) error {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	if err := c.ShouldBindJSON(dst); err != nil {
		return invalid("decode body", err)
	}
	return nil
}

func invalid(what string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", what, pkgerrors.ErrInvalidArgument)
	}
	return fmt.Errorf("%s: %v: %w", what, err, pkgerrors.ErrInvalidArgument)
}

func learnerID(c *gin.Context) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("learner id: %v: %w", err, pkgerrors.ErrInvalidArgument)
	}
	return id, nil
}
