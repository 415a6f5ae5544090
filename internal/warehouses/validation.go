package warehouses

import (
	"fmt"
	"strings"

	"github.com/bosunhq/stockroom/internal/shared"
)

func validate(req CreateRequest) error {
	if strings.TrimSpace(req.Name) == "" {
		return fmt.Errorf("%w: warehouse name is required", shared.ErrInvalidInput)
	}
	if len(req.Name) > 255 {
		return fmt.Errorf("%w: warehouse name too long", shared.ErrInvalidInput)
	}
	return nil
}
