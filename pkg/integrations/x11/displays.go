package x11

import (
	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xinerama"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
)

// Count returns the number of active displays. RandR outputs that are
// connected and driven by a CRTC are counted; Xinerama heads are the
// fallback, and core screens the last resort.
func (c *Client) Count() (int, error) {
	if c.hasRandR {
		n, err := c.countRandROutputs()
		if err == nil && n > 0 {
			return n, nil
		}
		if err != nil {
			c.logger.Debug("RandR output query failed", "error", err)
		}
	}

	if c.hasXinerama {
		active, err := xinerama.IsActive(c.conn).Reply()
		if err != nil {
			return 0, errors.Wrap(err, "failed to query Xinerama state")
		}
		if active.State != 0 {
			screens, err := xinerama.QueryScreens(c.conn).Reply()
			if err != nil {
				return 0, errors.Wrap(err, "failed to query Xinerama screens")
			}
			return int(screens.Number), nil
		}
	}

	return len(xproto.Setup(c.conn).Roots), nil
}

func (c *Client) countRandROutputs() (int, error) {
	res, err := randr.GetScreenResourcesCurrent(c.conn, c.root).Reply()
	if err != nil {
		return 0, errors.Wrap(err, "failed to get screen resources")
	}

	n := 0
	for _, output := range res.Outputs {
		info, err := randr.GetOutputInfo(c.conn, output, res.ConfigTimestamp).Reply()
		if err != nil {
			return 0, errors.Wrapf(err, "failed to get info for output %d", output)
		}
		if activeOutput(info.Connection, info.Crtc) {
			n++
		}
	}
	return n, nil
}

func activeOutput(connection byte, crtc randr.Crtc) bool {
	return connection == randr.ConnectionConnected && crtc != 0
}
