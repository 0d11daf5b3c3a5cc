package x11

import (
	"github.com/jezek/xgb/xproto"
	"github.com/pkg/errors"
)

// Clipboard owns the PRIMARY and CLIPBOARD selections through an unmapped
// window. While claimed every conversion request is refused, so nothing
// can be pasted into or out of the kiosk.
type Clipboard struct {
	client  *Client
	owner   xproto.Window
	claimed bool
}

// NewClipboard creates the selection owner window.
func (c *Client) NewClipboard() (*Clipboard, error) {
	win, err := xproto.NewWindowId(c.conn)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate window id")
	}
	err = xproto.CreateWindowChecked(c.conn, 0, win, c.root,
		-1, -1, 1, 1, 0,
		xproto.WindowClassInputOnly, 0, 0, nil).Check()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create selection owner window")
	}
	cb := &Clipboard{client: c, owner: win}
	c.clipboard = cb
	return cb, nil
}

func (cb *Clipboard) selections() []xproto.Atom {
	return []xproto.Atom{xproto.AtomPrimary, cb.client.atoms["CLIPBOARD"]}
}

// Clear drops whatever the current owners offer. Taking ownership is what
// invalidates their content; ownership is kept only while claimed.
func (cb *Clipboard) Clear() error {
	if err := cb.own(cb.owner); err != nil {
		return err
	}
	if cb.claimed {
		return nil
	}
	return cb.own(xproto.WindowNone)
}

// Claim keeps the selections owned until Release.
func (cb *Clipboard) Claim() error {
	if err := cb.own(cb.owner); err != nil {
		return err
	}
	cb.claimed = true
	return nil
}

// Release gives the selections up.
func (cb *Clipboard) Release() error {
	cb.claimed = false
	return cb.own(xproto.WindowNone)
}

func (cb *Clipboard) own(win xproto.Window) error {
	for _, sel := range cb.selections() {
		err := xproto.SetSelectionOwnerChecked(cb.client.conn, win, sel, xproto.TimeCurrentTime).Check()
		if err != nil {
			return errors.Wrapf(err, "failed to set owner of selection %d", sel)
		}
	}
	return nil
}

// onRequest refuses the conversion: a SelectionNotify with property None.
func (cb *Clipboard) onRequest(e xproto.SelectionRequestEvent) {
	reply := xproto.SelectionNotifyEvent{
		Time:      e.Time,
		Requestor: e.Requestor,
		Selection: e.Selection,
		Target:    e.Target,
		Property:  xproto.AtomNone,
	}
	xproto.SendEvent(cb.client.conn, false, e.Requestor, 0, string(reply.Bytes()))
}

// onClear takes the selection back from a client that grabbed it mid-lock.
func (cb *Clipboard) onClear(e xproto.SelectionClearEvent) {
	if !cb.claimed || e.Owner != cb.owner {
		return
	}
	cb.client.logger.Warn("Selection taken by another client, reclaiming", "selection", uint32(e.Selection))
	xproto.SetSelectionOwner(cb.client.conn, cb.owner, e.Selection, xproto.TimeCurrentTime)
}
