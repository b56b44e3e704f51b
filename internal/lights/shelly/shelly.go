// Package shelly drives a Shelly RGBW bulb over its local HTTP API.
package shelly

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/scheerer/crystal-lights/internal/logging"
	"github.com/scheerer/crystal-lights/lights"
)

var logger = logging.New("shelly")

const lightPath = "/light/0"

type Shelly struct {
	client *http.Client
}

var _ lights.Transport = (*Shelly)(nil)

// New returns a transport using client, or a client with timeout when nil.
func New(client *http.Client, timeout time.Duration) *Shelly {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Shelly{client: client}
}

func (s *Shelly) Name() string {
	return "shelly"
}

// Send issues GET http://<address>/light/0?turn=on&mode=color&red=..&white=..
// Only transport errors count as failures. The response is drained and
// discarded without looking at the status, matching what a browser sees from a
// no-cors request.
func (s *Shelly) Send(ctx context.Context, address string, cmd lights.Command) error {
	u, err := deviceURL(address, lightPath)
	if err != nil {
		return err
	}
	logger.With(zap.String("url", u), zap.Any("command", cmd)).Debug("Sending Shelly command")
	return s.get(ctx, u+"?"+cmd.Query().Encode())
}

// Probe checks the device answers at all. An unreadable response still
// counts as reachable.
func (s *Shelly) Probe(ctx context.Context, address string) error {
	u, err := deviceURL(address, lightPath)
	if err != nil {
		return err
	}
	return s.get(ctx, u)
}

func (s *Shelly) get(ctx context.Context, u string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return errors.Wrap(err, "creating request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return errors.Wrap(err, "sending request")
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func deviceURL(address, path string) (string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return "", errors.New("empty device address")
	}
	address = strings.TrimSuffix(address, "/")
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		address = "http://" + address
	}
	return address + path, nil
}
