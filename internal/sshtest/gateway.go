// Package sshtest runs an in-process SSH gateway that forwards
// direct-tcpip channels, for tests of code that tunnels through one.
package sshtest

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"golang.org/x/crypto/ssh"
)

// Gateway accepts any client and forwards its channels to local TCP
// targets.  It is closed when the test ends.
type Gateway struct {
	Host string
	Port int

	ln     net.Listener
	config *ssh.ServerConfig

	mu       sync.Mutex
	conns    map[*ssh.ServerConn]struct{}
	accepted int
	wg       sync.WaitGroup
}

// NewGateway starts a gateway on a loopback port.
func NewGateway(t testing.TB) *Gateway {
	t.Helper()

	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("host key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("host signer: %v", err)
	}
	cfg := &ssh.ServerConfig{NoClientAuth: true}
	cfg.AddHostKey(signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	g := &Gateway{
		Host:   "127.0.0.1",
		Port:   ln.Addr().(*net.TCPAddr).Port,
		ln:     ln,
		config: cfg,
		conns:  make(map[*ssh.ServerConn]struct{}),
	}
	g.wg.Add(1)
	go g.serve()
	t.Cleanup(g.Close)
	return g
}

// Sessions returns the number of client connections currently open.
func (g *Gateway) Sessions() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.conns)
}

// Accepted returns how many client connections completed a handshake.
func (g *Gateway) Accepted() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.accepted
}

// Drop closes every open client connection, as if the gateway rebooted.
func (g *Gateway) Drop() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for c := range g.conns {
		c.Close()
	}
}

// Close stops accepting and drops every client.
func (g *Gateway) Close() {
	g.ln.Close()
	g.Drop()
	g.wg.Wait()
}

func (g *Gateway) serve() {
	defer g.wg.Done()
	for {
		raw, err := g.ln.Accept()
		if err != nil {
			return
		}
		g.wg.Add(1)
		go g.handle(raw)
	}
}

func (g *Gateway) handle(raw net.Conn) {
	defer g.wg.Done()

	conn, chans, reqs, err := ssh.NewServerConn(raw, g.config)
	if err != nil {
		raw.Close()
		return
	}
	g.mu.Lock()
	g.conns[conn] = struct{}{}
	g.accepted++
	g.mu.Unlock()
	defer func() {
		g.mu.Lock()
		delete(g.conns, conn)
		g.mu.Unlock()
	}()

	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "direct-tcpip" {
			nc.Reject(ssh.UnknownChannelType, "only direct-tcpip is forwarded")
			continue
		}
		go forward(nc)
	}
}

func forward(nc ssh.NewChannel) {
	var req struct {
		Host     string
		Port     uint32
		OrigHost string
		OrigPort uint32
	}
	if err := ssh.Unmarshal(nc.ExtraData(), &req); err != nil {
		nc.Reject(ssh.ConnectionFailed, "malformed direct-tcpip request")
		return
	}
	target, err := net.Dial("tcp", net.JoinHostPort(req.Host, strconv.Itoa(int(req.Port))))
	if err != nil {
		nc.Reject(ssh.ConnectionFailed, err.Error())
		return
	}
	ch, reqs, err := nc.Accept()
	if err != nil {
		target.Close()
		return
	}
	go ssh.DiscardRequests(reqs)

	go func() {
		io.Copy(ch, target)
		ch.Close()
	}()
	io.Copy(target, ch)
	target.Close()
}

// ClientKey writes an unencrypted ed25519 key in OpenSSH format and
// returns its path.
func ClientKey(t testing.TB) string {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("client key: %v", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "id_ed25519")
	if err := os.WriteFile(path, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write client key: %v", err)
	}
	return path
}
