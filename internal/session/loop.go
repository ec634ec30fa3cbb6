package session

import (
	"errors"
	"io"

	ncerr "drinksync/internal/errors"
	"drinksync/util"
)

// readLoop drains the handle in fixed-size chunks.  Each non-empty
// chunk is one message; boundaries are whatever the transport returns.
func (c *Controller) readLoop(lk *link) {
	defer close(lk.readDone)

	bufp := util.GetChunk(c.opts.readSize)
	defer util.PutChunk(bufp)
	buf := *bufp

	for {
		n, err := lk.h.Read(buf)
		if n > 0 {
			text := string(buf[:n])
			c.metrics.MessageReceived(n)
			c.logger.Debug("recv %d bytes from %s", n, lk.peer)
			c.notify(func(l Listener) { l.OnMessageReceived(text) })
			if err == nil {
				continue
			}
		}

		var reason error
		switch {
		case lk.closed.Load():
			c.logger.Verbose("receive loop for %s stopped: closed locally", lk.peer)
			return
		case err == nil, errors.Is(err, io.EOF):
			c.logger.Verbose("%s closed the connection", lk.peer)
			reason = ncerr.ErrPeerClosed
		default:
			reason = ncerr.Wrap("read", lk.peer, err)
			c.metrics.RecordError(reason.Error())
			c.logger.Warn("%v", reason)
		}
		c.shutdown(lk, reason, true)
		return
	}
}

// writeLoop performs queued sends in order.  Sends still queued when
// the connection closes are failed with ErrNotConnected.
func (c *Controller) writeLoop(lk *link) {
	defer close(lk.writeDone)

	for {
		select {
		case text := <-lk.outbox:
			c.write(lk, text)
		case <-lk.ctx.Done():
			for {
				select {
				case text := <-lk.outbox:
					c.metrics.SendFailed()
					c.notify(func(l Listener) { l.OnSendFailed(text, ncerr.ErrNotConnected) })
				default:
					return
				}
			}
		}
	}
}

func (c *Controller) write(lk *link, text string) {
	_, err := io.WriteString(lk.h, text)
	if err != nil {
		if lk.closed.Load() && ncerr.IsClosed(err) {
			err = ncerr.ErrNotConnected
		} else {
			err = ncerr.Wrap("write", lk.peer, err)
			c.metrics.RecordError(err.Error())
			c.logger.Warn("%v", err)
		}
		c.metrics.SendFailed()
		c.notify(func(l Listener) { l.OnSendFailed(text, err) })
		return
	}
	c.metrics.MessageSent(len(text))
	c.logger.Debug("sent %d bytes to %s", len(text), lk.peer)
	c.notify(func(l Listener) { l.OnMessageSent(text) })
}
