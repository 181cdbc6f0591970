package recognition

import (
	"sortvision-gateway/internal/platform/errors"
)

func errNoImage(id int) error {
	return errors.Newf(errors.KindDomain, "recognition.download", "result %d has no image", id)
}
