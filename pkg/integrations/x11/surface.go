package x11

import (
	"image"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"

	"github.com/kiosklock/kiosklock/pkg/surface"
)

// ErrDestroyed is returned by operations on a destroyed surface.
var ErrDestroyed = errors.New("surface destroyed")

const surfaceEventMask = xproto.EventMaskKeyPress |
	xproto.EventMaskStructureNotify |
	xproto.EventMaskFocusChange |
	xproto.EventMaskPropertyChange

// EWMH _NET_WM_STATE actions.
const (
	stateRemove = 0
	stateAdd    = 1
)

// Factory creates top-level X windows hosting an embedded browser.
type Factory struct {
	Client *Client
	// Browser is the command line of an XEmbed-capable browser. The
	// placeholders {xid}, {url} and {ua} are substituted on load.
	Browser []string
	// Grabs are routed to the active surface regardless of which client
	// holds keyboard focus.
	Grabs  []KeyGrab
	Logger *slog.Logger
}

// Create implements surface.Factory.
func (f *Factory) Create(opts surface.Options) (surface.Surface, error) {
	c := f.Client
	logger := f.Logger
	if logger == nil {
		logger = c.logger
	}

	width, height := uint16(opts.Width), uint16(opts.Height)
	if width == 0 {
		width = c.screen.WidthInPixels
	}
	if height == 0 {
		height = c.screen.HeightInPixels
	}

	win, err := xproto.NewWindowId(c.conn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate window id")
	}

	err = xproto.CreateWindowChecked(c.conn, c.screen.RootDepth, win, c.root,
		0, 0, width, height, 0,
		xproto.WindowClassInputOutput, c.screen.RootVisual,
		xproto.CwBackPixel|xproto.CwEventMask,
		[]uint32{c.screen.BlackPixel, surfaceEventMask}).Check()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create window")
	}

	c.serial++
	s := &Surface{
		client:   c,
		win:      win,
		serial:   c.serial,
		width:    width,
		height:   height,
		browser:  f.Browser,
		handlers: make(map[surface.EventKind][]func()),
		logger:   logger.With("window", uint32(win)),
	}

	s.setProperties(opts)
	s.grabKeys(f.Grabs)
	c.surfaces[win] = s

	return s, nil
}

// Surface is a top-level window. Its methods must be called on the event loop.
type Surface struct {
	client *Client
	win    xproto.Window
	serial uint64
	logger *slog.Logger

	width, height uint16

	browser []string
	proc    *exec.Cmd

	handlers  map[surface.EventKind][]func()
	filter    surface.InputFilter
	grabs     []grab
	destroyed bool
}

type grab struct {
	key  xproto.Keycode
	mods uint16
}

// Window returns the X window id.
func (s *Surface) Window() xproto.Window {
	return s.win
}

func (s *Surface) setProperties(opts surface.Options) {
	c := s.client

	title := []byte(opts.Title)
	xproto.ChangeProperty(c.conn, xproto.PropModeReplace, s.win, xproto.AtomWmName,
		xproto.AtomString, 8, uint32(len(title)), title)
	xproto.ChangeProperty(c.conn, xproto.PropModeReplace, s.win, c.atoms["_NET_WM_NAME"],
		c.atoms["UTF8_STRING"], 8, uint32(len(title)), title)

	s.changeAtoms("WM_PROTOCOLS", xproto.AtomAtom, c.atoms["WM_DELETE_WINDOW"])

	var states []uint32
	if opts.FullScreen {
		states = append(states, uint32(c.atoms["_NET_WM_STATE_FULLSCREEN"]))
	}
	if opts.AlwaysOnTop {
		states = append(states, uint32(c.atoms["_NET_WM_STATE_ABOVE"]))
	}
	if opts.SkipTaskbar {
		states = append(states, uint32(c.atoms["_NET_WM_STATE_SKIP_TASKBAR"]), uint32(c.atoms["_NET_WM_STATE_SKIP_PAGER"]))
	}
	if len(states) > 0 {
		s.changeCardinals("_NET_WM_STATE", xproto.AtomAtom, states...)
	}

	if opts.AllWorkspaces {
		s.changeCardinals("_NET_WM_DESKTOP", xproto.AtomCardinal, 0xFFFFFFFF)
	}
	s.changeCardinals("_NET_WM_PID", xproto.AtomCardinal, uint32(os.Getpid()))
}

func (s *Surface) changeAtoms(prop string, typ xproto.Atom, atoms ...xproto.Atom) {
	vals := make([]uint32, len(atoms))
	for i, a := range atoms {
		vals[i] = uint32(a)
	}
	s.changeCardinals(prop, typ, vals...)
}

func (s *Surface) changeCardinals(prop string, typ xproto.Atom, vals ...uint32) {
	buf := make([]byte, 4*len(vals))
	for i, v := range vals {
		xgb.Put32(buf[4*i:], v)
	}
	xproto.ChangeProperty(s.client.conn, xproto.PropModeReplace, s.win, s.client.atoms[prop],
		typ, 32, uint32(len(vals)), buf)
}

// grabKeys registers passive grabs on the root window. Grabbed keys are
// consumed: the input filter decides what happens to them, nothing is
// replayed to the focused client.
func (s *Surface) grabKeys(grabs []KeyGrab) {
	c := s.client
	for _, g := range grabs {
		code := xproto.Keycode(xproto.GrabAny)
		if g.Key != "" {
			ks, ok := keysymFor(g.Key)
			if !ok {
				s.logger.Warn("Unknown key in grab", "key", g.Key)
				continue
			}
			kc, ok := c.keys.keycode(ks)
			if !ok {
				s.logger.Warn("Key not present on keyboard", "key", g.Key)
				continue
			}
			code = kc
		}
		base := maskFor(g.Modifiers)
		for _, lock := range lockMasks {
			gr := grab{key: code, mods: base | lock}
			xproto.GrabKey(c.conn, true, c.root, gr.mods, gr.key, xproto.GrabModeAsync, xproto.GrabModeAsync)
			s.grabs = append(s.grabs, gr)
		}
	}
}

func (s *Surface) ungrabKeys() {
	for _, gr := range s.grabs {
		xproto.UngrabKey(s.client.conn, gr.key, s.client.root, gr.mods)
	}
	s.grabs = nil
}

// Show maps the window.
func (s *Surface) Show() error {
	if s.destroyed {
		return ErrDestroyed
	}
	return errors.Wrap(xproto.MapWindowChecked(s.client.conn, s.win).Check(), "failed to map window")
}

// Focus asks both the server and the window manager to focus the window.
// A focus request racing the window manager's map is not an error.
func (s *Surface) Focus() error {
	if s.destroyed {
		return ErrDestroyed
	}
	xproto.SetInputFocus(s.client.conn, xproto.InputFocusPointerRoot, s.win, xproto.TimeCurrentTime)
	s.client.sendRootMessage(s.win, "_NET_ACTIVE_WINDOW", 1, xproto.TimeCurrentTime)
	return nil
}

// MoveTop raises the window to the top of the stack.
func (s *Surface) MoveTop() error {
	if s.destroyed {
		return ErrDestroyed
	}
	err := xproto.ConfigureWindowChecked(s.client.conn, s.win,
		xproto.ConfigWindowStackMode, []uint32{xproto.StackModeAbove}).Check()
	return errors.Wrap(err, "failed to raise window")
}

// Restore de-iconifies the window.
func (s *Surface) Restore() error {
	if s.destroyed {
		return ErrDestroyed
	}
	s.setState(false, "_NET_WM_STATE_HIDDEN")
	return s.Show()
}

func (s *Surface) SetFullScreen(on bool) error {
	if s.destroyed {
		return ErrDestroyed
	}
	s.setState(on, "_NET_WM_STATE_FULLSCREEN")
	return nil
}

func (s *Surface) SetAlwaysOnTop(on bool) error {
	if s.destroyed {
		return ErrDestroyed
	}
	s.setState(on, "_NET_WM_STATE_ABOVE")
	return nil
}

func (s *Surface) setState(on bool, state string) {
	action := uint32(stateRemove)
	if on {
		action = stateAdd
	}
	s.client.sendRootMessage(s.win, "_NET_WM_STATE", action, uint32(s.client.atoms[state]), 0, 1)
}

func (s *Surface) Subscribe(kind surface.EventKind, fn func()) {
	s.handlers[kind] = append(s.handlers[kind], fn)
}

func (s *Surface) SetInputFilter(filter surface.InputFilter) {
	s.filter = filter
}

// LoadResource starts the browser embedded into the window, replacing any
// browser started by a previous load.
func (s *Surface) LoadResource(target string, opts surface.LoadOptions) error {
	if s.destroyed {
		return ErrDestroyed
	}
	if len(s.browser) == 0 {
		return errors.New("no browser command configured")
	}

	args := expandBrowserArgs(s.browser, s.win, target, opts.UserAgent)
	path, err := exec.LookPath(args[0])
	if err != nil {
		return errors.Wrapf(err, "browser %s not found", args[0])
	}

	s.stopBrowser()

	cmd := exec.Command(path, args[1:]...)
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start browser")
	}
	s.proc = cmd
	s.logger.Info("Browser started", "pid", cmd.Process.Pid, "target", target)

	go func() {
		err := cmd.Wait()
		s.logger.Debug("Browser exited", "pid", cmd.Process.Pid, "error", err)
	}()
	return nil
}

func (s *Surface) stopBrowser() {
	if s.proc == nil {
		return
	}
	if err := s.proc.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		s.logger.Warn("Failed to stop browser", "error", err)
	}
	s.proc = nil
}

func expandBrowserArgs(tmpl []string, win xproto.Window, url, ua string) []string {
	r := strings.NewReplacer(
		"{xid}", strconv.FormatUint(uint64(win), 10),
		"{url}", url,
		"{ua}", ua,
	)
	args := make([]string, len(tmpl))
	for i, a := range tmpl {
		args[i] = r.Replace(a)
	}
	return args
}

// Snapshot reads back the window contents, embedded browser included.
func (s *Surface) Snapshot() (image.Image, error) {
	if s.destroyed {
		return nil, ErrDestroyed
	}
	c := s.client
	geom, err := xproto.GetGeometry(c.conn, xproto.Drawable(s.win)).Reply()
	if err != nil {
		return nil, errors.Wrap(err, "failed to get window geometry")
	}
	img, err := xproto.GetImage(c.conn, xproto.ImageFormatZPixmap, xproto.Drawable(s.win),
		0, 0, geom.Width, geom.Height, 0xFFFFFFFF).Reply()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read window image")
	}
	rgba, err := bgrxToRGBA(img.Data, int(geom.Width), int(geom.Height))
	if err != nil {
		return nil, err
	}
	return rgba, nil
}

// bgrxToRGBA converts a 32 bits per pixel little-endian ZPixmap.
func bgrxToRGBA(data []byte, width, height int) (*image.RGBA, error) {
	if len(data) < width*height*4 {
		return nil, errors.Errorf("short image data: %d bytes for %dx%d", len(data), width, height)
	}
	out := image.NewRGBA(image.Rect(0, 0, width, height))
	for i := 0; i < width*height; i++ {
		p := i * 4
		out.Pix[p+0] = data[p+2]
		out.Pix[p+1] = data[p+1]
		out.Pix[p+2] = data[p+0]
		out.Pix[p+3] = 0xFF
	}
	return out, nil
}

// Destroy closes the window without emitting EventClosed.
func (s *Surface) Destroy() error {
	if s.destroyed {
		return nil
	}
	s.release()
	return errors.Wrap(xproto.DestroyWindowChecked(s.client.conn, s.win).Check(), "failed to destroy window")
}

func (s *Surface) release() {
	s.destroyed = true
	s.ungrabKeys()
	s.stopBrowser()
	delete(s.client.surfaces, s.win)
}

// closeByPeer handles a close the owner did not ask for.
func (s *Surface) closeByPeer() {
	if s.destroyed {
		return
	}
	s.logger.Info("Window closed externally")
	s.release()
	xproto.DestroyWindow(s.client.conn, s.win)
	s.emit(surface.EventClosed)
}

func (s *Surface) onConfigure(e xproto.ConfigureNotifyEvent) {
	if e.Width == s.width && e.Height == s.height {
		return
	}
	s.width, s.height = e.Width, e.Height
	s.emit(surface.EventResize)
}

func (s *Surface) onKey(ev surface.InputEvent) {
	if s.filter != nil && s.filter(ev) {
		return
	}
	s.logger.Debug("Grabbed key passed through", "modifiers", ev.Modifiers.String(), "key", ev.Key)
}

func (s *Surface) emit(kind surface.EventKind) {
	for _, fn := range s.handlers[kind] {
		fn()
	}
}
