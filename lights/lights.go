package lights

import (
	"context"
	"net/url"
	"strconv"

	"github.com/scheerer/crystal-lights/internal/color"
)

// Command is one RGBW frame for the device, 0..255 per channel.
type Command struct {
	Red   uint8 `json:"red"`
	Green uint8 `json:"green"`
	Blue  uint8 `json:"blue"`
	White uint8 `json:"white"`
}

// Transport delivers commands to one kind of physical light. Implementations
// report transport level failures only; device responses are not inspected.
type Transport interface {
	Name() string
	Send(ctx context.Context, address string, cmd Command) error
	Probe(ctx context.Context, address string) error
}

func CommandFromColor(c color.Color) Command {
	r, g, b, w := c.ToBytes()
	return Command{Red: r, Green: g, Blue: b, White: w}
}

func (c Command) Color() color.Color {
	return color.FromBytes(c.Red, c.Green, c.Blue, c.White)
}

// Query renders the command as Shelly /light/0 parameters.
func (c Command) Query() url.Values {
	q := url.Values{}
	q.Set("turn", "on")
	q.Set("mode", "color")
	q.Set("red", strconv.Itoa(int(c.Red)))
	q.Set("green", strconv.Itoa(int(c.Green)))
	q.Set("blue", strconv.Itoa(int(c.Blue)))
	q.Set("white", strconv.Itoa(int(c.White)))
	return q
}
