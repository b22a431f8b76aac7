package source

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	logx "notiflink/pkg/logx"
)

var ErrNoIcon = errors.New("no icon")

// IconDir serves application icons from <dir>/<package>.png.
type IconDir struct {
	dir string
}

func NewIconDir(dir string) *IconDir { return &IconDir{dir: strings.TrimSpace(dir)} }

func (d *IconDir) Icon(ctx context.Context, pkg string, _ int) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if d == nil || d.dir == "" {
		return nil, ErrNoIcon
	}
	name := filepath.Base(strings.TrimSpace(pkg))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return nil, fmt.Errorf("icon %q: %w", pkg, ErrNoIcon)
	}
	f, err := os.Open(filepath.Join(d.dir, name+".png"))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("icon %q: %w", pkg, ErrNoIcon)
		}
		return nil, err
	}
	defer f.Close()

	img, err := png.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode icon %q: %w", pkg, err)
	}
	return img, nil
}

// Pictures stands in for the host picture cache; it only counts and logs
// releases.
type Pictures struct {
	released atomic.Int64
	log      logx.Logger
}

func NewPictures(log logx.Logger) *Pictures {
	return &Pictures{log: log.With(logx.String("comp", "pictures"))}
}

func (p *Pictures) Release(_ context.Context, id int64) error {
	p.released.Add(1)
	p.log.Debug("picture released", logx.Int64("id", id))
	return nil
}

func (p *Pictures) Released() int64 { return p.released.Load() }
