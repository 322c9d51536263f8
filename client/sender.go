// Package client speaks the retro wire protocol to a server over HTTP.
package client

import (
	"bytes"
	"fmt"
	"io"
	"net/http"

	"github.com/bytedance/sonic"

	"github.com/adamwitko/retro/protocol"
)

// Sender delivers frames to a server's frame endpoint on behalf of one
// connection. It stamps every outgoing frame with the connection id before
// sending.
type Sender struct {
	hc     *http.Client
	url    string
	connID string
	token  string
}

// NewSender returns a sender for one connection. url is the server base
// URL without a trailing slash; token is the session token minted at
// sign-in.
func NewSender(hc *http.Client, url, connID, token string) *Sender {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Sender{hc: hc, url: url, connID: connID, token: token}
}

// Send posts one frame. Satisfies protocol.SendFunc via method value.
func (s *Sender) Send(frame []byte) error {
	env, err := protocol.DecodeEnvelope(frame)
	if err != nil {
		return err
	}
	env.ID = s.connID
	stamped, err := sonic.ConfigStd.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode %s frame: %w", env.Op, err)
	}

	req, err := http.NewRequest(http.MethodPost, s.url+"/api/frames", bytes.NewReader(stamped))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.token)

	resp, err := s.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("server rejected %s frame: %s: %s", env.Op, resp.Status, body)
	}
	return nil
}

// Commands returns a frame builder wired to this sender.
func (s *Sender) Commands() protocol.Commands {
	return protocol.NewCommands(s.Send)
}
