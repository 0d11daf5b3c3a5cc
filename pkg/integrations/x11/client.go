package x11

import (
	"context"
	"log/slog"
	"sync"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/randr"
	"github.com/jezek/xgb/xinerama"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/internal/eventloop"
	"github.com/kiosklock/kiosklock/pkg/surface"
)

var atomNames = []string{
	"WM_PROTOCOLS",
	"WM_DELETE_WINDOW",
	"UTF8_STRING",
	"CLIPBOARD",
	"_NET_WM_NAME",
	"_NET_WM_STATE",
	"_NET_WM_STATE_FULLSCREEN",
	"_NET_WM_STATE_ABOVE",
	"_NET_WM_STATE_SKIP_TASKBAR",
	"_NET_WM_STATE_SKIP_PAGER",
	"_NET_WM_STATE_HIDDEN",
	"_NET_WM_DESKTOP",
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_PID",
}

// Client is a connection to the X server. Events are read on a dedicated
// goroutine and handled on the event loop.
type Client struct {
	conn       *xgb.Conn
	screen     *xproto.ScreenInfo
	root       xproto.Window
	atoms      map[string]xproto.Atom
	dispatcher eventloop.Dispatcher
	logger     *slog.Logger

	hasRandR    bool
	hasXinerama bool

	// loop-owned
	keys      *keymap
	surfaces  map[xproto.Window]*Surface
	clipboard *Clipboard
	serial    uint64

	closeOnce sync.Once
}

// Connect opens display, or $DISPLAY when empty.
func Connect(display string, dispatcher eventloop.Dispatcher, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := xgb.NewConnDisplay(display)
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect to X server")
	}

	setup := xproto.Setup(conn)
	screen := setup.DefaultScreen(conn)

	c := &Client{
		conn:       conn,
		screen:     screen,
		root:       screen.Root,
		atoms:      make(map[string]xproto.Atom),
		dispatcher: dispatcher,
		logger:     logger,
		surfaces:   make(map[xproto.Window]*Surface),
	}

	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, errors.Wrapf(err, "failed to intern atom %s", name)
		}
		c.atoms[name] = reply.Atom
	}

	if err := randr.Init(conn); err != nil {
		logger.Debug("RandR unavailable", "error", err)
	} else {
		c.hasRandR = true
	}
	if err := xinerama.Init(conn); err != nil {
		logger.Debug("Xinerama unavailable", "error", err)
	} else {
		c.hasXinerama = true
	}

	keys, err := c.loadKeymap()
	if err != nil {
		conn.Close()
		return nil, err
	}
	c.keys = keys

	return c, nil
}

func (c *Client) loadKeymap() (*keymap, error) {
	setup := xproto.Setup(c.conn)
	count := byte(setup.MaxKeycode - setup.MinKeycode + 1)
	reply, err := xproto.GetKeyboardMapping(c.conn, setup.MinKeycode, count).Reply()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read keyboard mapping")
	}
	return &keymap{min: setup.MinKeycode, per: int(reply.KeysymsPerKeycode), keysyms: reply.Keysyms}, nil
}

// Run pumps X events until ctx is done or the connection closes.
func (c *Client) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		c.Close()
	}()

	for {
		ev, xerr := c.conn.WaitForEvent()
		if ev == nil && xerr == nil {
			if ctx.Err() != nil {
				return nil
			}
			return errors.New("X connection closed")
		}
		if xerr != nil {
			c.logger.Debug("X error", "error", xerr.Error())
			continue
		}
		c.dispatcher.Post(func() { c.handle(ev) })
	}
}

// Close disconnects from the server.
func (c *Client) Close() {
	c.closeOnce.Do(c.conn.Close)
}

// Beep rings the X bell at the base volume.
func (c *Client) Beep() {
	xproto.Bell(c.conn, 0)
}

func (c *Client) handle(ev xgb.Event) {
	switch e := ev.(type) {
	case xproto.KeyPressEvent:
		c.onKeyPress(e)
	case xproto.ConfigureNotifyEvent:
		if s := c.surfaces[e.Window]; s != nil {
			s.onConfigure(e)
		}
	case xproto.MapNotifyEvent:
		if s := c.surfaces[e.Window]; s != nil {
			s.emit(surface.EventShow)
		}
	case xproto.UnmapNotifyEvent:
		if s := c.surfaces[e.Window]; s != nil {
			s.emit(surface.EventMinimize)
		}
	case xproto.FocusOutEvent:
		// focus moving into the embedded browser or to a passive grab is not a blur
		if e.Mode == xproto.NotifyModeGrab || e.Mode == xproto.NotifyModeUngrab || e.Detail == xproto.NotifyDetailInferior {
			return
		}
		if s := c.surfaces[e.Event]; s != nil {
			s.emit(surface.EventBlur)
		}
	case xproto.ClientMessageEvent:
		if e.Type == c.atoms["WM_PROTOCOLS"] && len(e.Data.Data32) > 0 && xproto.Atom(e.Data.Data32[0]) == c.atoms["WM_DELETE_WINDOW"] {
			if s := c.surfaces[e.Window]; s != nil {
				s.closeByPeer()
			}
		}
	case xproto.DestroyNotifyEvent:
		if s := c.surfaces[e.Window]; s != nil {
			s.closeByPeer()
		}
	case xproto.SelectionRequestEvent:
		if c.clipboard != nil {
			c.clipboard.onRequest(e)
		}
	case xproto.SelectionClearEvent:
		if c.clipboard != nil {
			c.clipboard.onClear(e)
		}
	case xproto.MappingNotifyEvent:
		if keys, err := c.loadKeymap(); err == nil {
			c.keys = keys
		}
	}
}

func (c *Client) onKeyPress(e xproto.KeyPressEvent) {
	s := c.surfaces[e.Event]
	if s == nil {
		// passive grabs on the root deliver to the root window
		s = c.activeSurface()
	}
	if s == nil {
		return
	}
	s.onKey(c.keys.translate(e.Detail, e.State))
}

func (c *Client) activeSurface() *Surface {
	var newest *Surface
	for _, s := range c.surfaces {
		if newest == nil || s.serial > newest.serial {
			newest = s
		}
	}
	return newest
}

// sendRootMessage sends an EWMH client message about win to the window manager.
func (c *Client) sendRootMessage(win xproto.Window, msgType string, data ...uint32) {
	for len(data) < 5 {
		data = append(data, 0)
	}
	ev := xproto.ClientMessageEvent{
		Format: 32,
		Window: win,
		Type:   c.atoms[msgType],
		Data:   xproto.ClientMessageDataUnionData32New(data),
	}
	mask := uint32(xproto.EventMaskSubstructureNotify | xproto.EventMaskSubstructureRedirect)
	xproto.SendEvent(c.conn, false, c.root, mask, string(ev.Bytes()))
}
