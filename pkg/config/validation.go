package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/marmos91/memspace/pkg/mcs"
	"github.com/marmos91/memspace/pkg/memspace"
)

// Validate checks struct tags first, then the constraints tags cannot
// express: parseable node ID, space and ranges, and a path for badger
// images.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return formatValidationErrors(verrs)
		}
		return err
	}

	var errs []error
	if _, err := mcs.ParseNodeID(cfg.Node.ID); err != nil {
		errs = append(errs, fmt.Errorf("node.id: %w", err))
	}
	if _, err := ParseSpace(cfg.Node.Space); err != nil {
		errs = append(errs, fmt.Errorf("node.space: %w", err))
	}
	if cfg.Node.Image == "badger" && cfg.Node.ImagePath == "" {
		errs = append(errs, errors.New("node.image_path: required when node.image is badger"))
	}
	if cfg.Node.Size == 0 {
		errs = append(errs, errors.New("node.size: must be greater than zero"))
	}
	if _, err := parseRanges(cfg.Node.Holes); err != nil {
		errs = append(errs, fmt.Errorf("node.holes: %w", err))
	}
	if _, err := parseRanges(cfg.Node.ReadOnly); err != nil {
		errs = append(errs, fmt.Errorf("node.read_only: %w", err))
	}
	return errors.Join(errs...)
}

// formatValidationErrors renders validator failures one per line.
func formatValidationErrors(verrs validator.ValidationErrors) error {
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s: is required", fe.Namespace()))
		case "oneof":
			msgs = append(msgs, fmt.Sprintf("%s: must be one of [%s], got %v", fe.Namespace(), fe.Param(), fe.Value()))
		case "min", "gte":
			msgs = append(msgs, fmt.Sprintf("%s: must be at least %s, got %v", fe.Namespace(), fe.Param(), fe.Value()))
		case "max", "lte":
			msgs = append(msgs, fmt.Sprintf("%s: must be at most %s, got %v", fe.Namespace(), fe.Param(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s: failed %q validation", fe.Namespace(), fe.Tag()))
		}
	}
	return errors.New(strings.Join(msgs, "\n"))
}

// ParseSpace parses a memory space number such as "0xFD" or "253".
func ParseSpace(s string) (mcs.Space, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid memory space %q: %w", s, err)
	}
	return mcs.Space(v), nil
}

func parseRanges(specs []string) ([]memspace.Range, error) {
	if len(specs) == 0 {
		return nil, nil
	}
	out := make([]memspace.Range, 0, len(specs))
	for _, s := range specs {
		r, err := memspace.ParseRange(s)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}
